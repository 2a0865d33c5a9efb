// Package respond maps service-layer errors onto HTTP responses. Handlers
// never inspect error messages; the Kind carried by *services.Error selects
// the status code, and anything unclassified is a 500.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/services"
)

// Error writes err as a JSON error body with the status implied by its Kind.
// Internal errors are logged with their cause but reach the client as a
// generic message so database and storage details never leak.
func Error(c *gin.Context, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		slog.Error("unclassified handler error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	var status int
	switch svcErr.Kind {
	case services.KindBadRequest:
		status = http.StatusBadRequest
	case services.KindUnauthorized:
		status = http.StatusUnauthorized
	case services.KindForbidden:
		status = http.StatusForbidden
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindConflict:
		status = http.StatusConflict
	default:
		slog.Error("internal error", "path", c.FullPath(), "error", svcErr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(status, gin.H{"error": svcErr.Message})
}
