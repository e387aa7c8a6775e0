package handlers

import (
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/trade-erp-api/internal/errors"
	"github.com/yukikurage/trade-erp-api/internal/storage"
)

// FileHandler serves stored documents by name.
type FileHandler struct {
	store storage.BlobStore
}

func NewFileHandler(store storage.BlobStore) *FileHandler {
	return &FileHandler{store: store}
}

// GetFile streams the document at /files/*name
func (h *FileHandler) GetFile(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")

	data, err := h.store.GetFile(c.Request.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidName):
			apierrors.BadRequest(c, "Invalid file name")
		case errors.Is(err, storage.ErrFileNotFound):
			apierrors.NotFound(c, "File not found")
		default:
			apierrors.ServiceUnavailable(c, "Document storage is unavailable")
		}
		return
	}

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": path.Base(name)}))
	c.Data(http.StatusOK, contentType, data)
}
