// serve.go handles direct content serving from the local storage backend.
package artifacts

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/storage"
)

// ServeFileHandler streams artifact content straight from storage.
// Implements: GET /v1/files/*filepath
// Registered only when local storage runs with serve_directly enabled; the
// cloud backends hand out signed URLs instead.
func ServeFileHandler(store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("filepath"), "/")
		if path == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file path is required"})
			return
		}

		exists, err := store.Exists(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check file existence"})
			return
		}
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}

		metadata, err := store.GetMetadata(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get file metadata"})
			return
		}

		reader, err := store.Download(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
			return
		}
		defer reader.Close()

		c.Header("X-Checksum-SHA256", metadata.Checksum)
		c.DataFromReader(http.StatusOK, metadata.Size, "text/markdown; charset=utf-8", reader, nil)
	}
}
