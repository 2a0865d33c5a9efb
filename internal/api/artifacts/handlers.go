// Package artifacts exposes the kind-parameterized artifact endpoints. Agents
// and skills share one handler set; the URL path segment fixes the kind at
// route registration time ("agents" and "skills" mount the same handlers with
// a different kind argument).
package artifacts

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/api/respond"
	"github.com/agent-registry/agent-registry/internal/db/models"
	"github.com/agent-registry/agent-registry/internal/middleware"
	"github.com/agent-registry/agent-registry/internal/services"
)

// KindSegments maps URL path segments to artifact kinds. The router mounts
// one route tree per entry.
func KindSegments() map[string]string {
	return map[string]string{
		"agents": models.KindAgent,
		"skills": models.KindSkill,
	}
}

// Handlers serves artifact endpoints for both kinds.
type Handlers struct {
	svc *services.ArtifactService
}

// NewHandlers creates the artifact handlers.
func NewHandlers(svc *services.ArtifactService) *Handlers {
	return &Handlers{svc: svc}
}

type publishRequest struct {
	Org         string  `json:"org"`
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	Content     string  `json:"content"`
	Description *string `json:"description"`
	Access      string  `json:"access"`
	Checksum    string  `json:"checksum"`
}

// PublishHandler publishes one immutable artifact version.
// Implements: POST /api/v1/{agents|skills}
func (h *Handlers) PublishHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req publishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Org == "" || req.Name == "" || req.Version == "" || req.Content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "org, name, version, and content are required"})
			return
		}

		res, err := h.svc.Publish(c.Request.Context(), services.PublishInput{
			OrgName:     req.Org,
			Kind:        kind,
			Name:        req.Name,
			Version:     req.Version,
			Content:     []byte(req.Content),
			Description: req.Description,
			Access:      req.Access,
			Checksum:    req.Checksum,
			PublisherID: middleware.CallerID(c),
		})
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"organization": res.Organization.Name,
			"artifact":     res.Artifact,
			"version":      res.Version.Version,
			"checksum":     res.Checksum,
			"storage_path": res.StoragePath,
			"created_at":   res.Version.CreatedAt,
		})
	}
}

// GetHandler returns an artifact at its latest published version.
// Implements: GET /api/v1/{agents|skills}/:org/:name
func (h *Handlers) GetHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.svc.Get(c.Request.Context(), c.Param("org"), kind, c.Param("name"), middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		writeView(c, view)
	}
}

// GetVersionHandler returns an artifact at an explicit version.
// Implements: GET /api/v1/{agents|skills}/:org/:name/versions/:version
func (h *Handlers) GetVersionHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.svc.GetVersion(c.Request.Context(), c.Param("org"), kind, c.Param("name"), c.Param("version"), middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		writeView(c, view)
	}
}

// writeView renders a resolved artifact version. The inline content is always
// present; download_url is omitted when signing failed and clients fall back
// to the content field.
func writeView(c *gin.Context, view *services.ArtifactView) {
	body := gin.H{
		"organization": view.Organization.Name,
		"artifact":     view.Artifact,
		"version":      view.Version.Version,
		"content":      view.Version.Content,
		"checksum":     view.Version.Checksum,
		"published_at": view.Version.CreatedAt,
	}
	if view.DownloadURL != "" {
		body["download_url"] = view.DownloadURL
	}
	c.JSON(http.StatusOK, body)
}

// ListVersionsHandler lists an artifact's published versions, newest first.
// Implements: GET /api/v1/{agents|skills}/:org/:name/versions
func (h *Handlers) ListVersionsHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		versions, err := h.svc.ListVersions(c.Request.Context(), c.Param("org"), kind, c.Param("name"), middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}

		// Version listings carry metadata only; content is fetched per version
		list := make([]gin.H, len(versions))
		for i, v := range versions {
			list[i] = gin.H{
				"version":      v.Version,
				"checksum":     v.Checksum,
				"published_at": v.CreatedAt,
			}
			if v.PublishedBy != nil {
				list[i]["published_by"] = *v.PublishedBy
			}
		}
		c.JSON(http.StatusOK, gin.H{"versions": list})
	}
}

// ListAllHandler lists the artifacts of a kind visible to the viewer.
// Implements: GET /api/v1/{agents|skills}
func (h *Handlers) ListAllHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		page, err := h.svc.ListAll(c.Request.Context(), kind, middleware.CallerID(c), limit, offset)
		if err != nil {
			respond.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"artifacts": page.Artifacts,
			"total":     page.Total,
			"limit":     page.Limit,
			"offset":    page.Offset,
		})
	}
}

// ListOrgHandler lists one organization's artifacts of a kind. Members see
// everything; everyone else sees only the public ones.
// Implements: GET /api/v1/{agents|skills}/:org
func (h *Handlers) ListOrgHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		artifacts, err := h.svc.ListOrg(c.Request.Context(), c.Param("org"), kind, middleware.CallerID(c))
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"artifacts": artifacts})
	}
}

type updateRequest struct {
	Description *string `json:"description"`
	Access      *string `json:"access"`
}

// UpdateHandler changes an artifact's description or access flag. Owner only.
// Implements: PATCH /api/v1/{agents|skills}/:org/:name
func (h *Handlers) UpdateHandler(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		artifact, err := h.svc.UpdateMetadata(c.Request.Context(), c.Param("org"), kind, c.Param("name"), middleware.CallerID(c), req.Description, req.Access)
		if err != nil {
			respond.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, artifact)
	}
}
