package api

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/dicom-import/internal/config"
	"github.com/yourorg/dicom-import/internal/storage"
)

type UploadHandler struct {
	store storage.ObjectStore
	cfg   config.Pipeline
}

func NewUploadHandler(store storage.ObjectStore, cfg config.Pipeline) *UploadHandler {
	return &UploadHandler{store: store, cfg: cfg}
}

// UploadFile accepts one multipart file and writes it under the source
// prefix; the next organize pass will classify and place it.
func (h *UploadHandler) UploadFile(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload error: " + err.Error()})
		return
	}
	defer file.Close()

	name := path.Base(header.Filename)
	if name == "." || name == "/" || name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filename"})
		return
	}
	key := name
	if h.cfg.SourcePrefix != "" {
		key = path.Join(h.cfg.SourcePrefix, name)
	}

	if err := h.store.Put(c.Request.Context(), h.cfg.SourceBucket, key, file); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bucket": h.cfg.SourceBucket,
		"key":    key,
		"size":   header.Size,
	})
}
