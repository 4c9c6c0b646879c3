// Package files serves stored objects over HTTP for the local storage backend.
// S3 deployments hand out presigned URLs that bypass the API entirely; this
// handler is the local-filesystem equivalent, verifying the signed token that
// local.GetURL embeds before streaming the file.
package files

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oneira/oneira/internal/storage/local"
)

// FileHandlers contains the handler serving signed file URLs
type FileHandlers struct {
	store *local.LocalStorage
}

// NewFileHandlers creates file handlers backed by the local storage backend
func NewFileHandlers(store *local.LocalStorage) *FileHandlers {
	return &FileHandlers{store: store}
}

// ServeFileHandler streams a stored object. When a signing secret is
// configured the token query parameter must verify and grant exactly the
// requested path; without one (development) files are served plain.
// GET /v1/files/*path
func (h *FileHandlers) ServeFileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := strings.TrimPrefix(c.Param("path"), "/")
		if path == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		if strings.Contains(path, "..") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path"})
			return
		}

		if signer := h.store.Signer(); signer != nil {
			token := c.Query("token")
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
				return
			}
			granted, err := signer.Verify(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
				return
			}
			if granted != path {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "token does not grant access to this file"})
				return
			}
		}

		reader, err := h.store.Download(c.Request.Context(), path)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		defer reader.Close()

		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		c.Header("Content-Type", contentType)
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, reader); err != nil {
			// Headers are already written; all we can do is log.
			slog.Warn("failed to stream file", "path", path, "error", err)
		}
	}
}
