package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/dicom-import/internal/config"
	"github.com/yourorg/dicom-import/internal/imaging"
	"github.com/yourorg/dicom-import/internal/organize"
)

type Handler struct {
	org *organize.Organizer
	img *imaging.Client
	cfg config.Pipeline
}

func NewHandler(org *organize.Organizer, img *imaging.Client, cfg config.Pipeline) *Handler {
	return &Handler{org: org, img: img, cfg: cfg}
}

// GetStructure returns the organized patient→study→series tree.
func (h *Handler) GetStructure(c *gin.Context) {
	s, err := h.org.Structure(c.Request.Context(), h.cfg.TargetBucket, h.cfg.TargetPrefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"structure": s, "patients": s.Patients()})
}

// SearchImageSets queries the datastore with optional filters:
// ?patient_id=..., ?study_uid=..., ?study_date_from=YYYYMMDD&study_date_to=YYYYMMDD, ?limit=N
func (h *Handler) SearchImageSets(c *gin.Context) {
	var filters []imaging.Filter
	if pid := c.Query("patient_id"); pid != "" {
		filters = append(filters, imaging.ByPatientID(pid))
	}
	if uid := c.Query("study_uid"); uid != "" {
		filters = append(filters, imaging.ByStudyInstanceUID(uid))
	}
	from, to := c.Query("study_date_from"), c.Query("study_date_to")
	switch {
	case from != "" && to != "":
		filters = append(filters, imaging.ByStudyDateBetween(from, to))
	case from != "":
		filters = append(filters, imaging.ByStudyDate(from))
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	sets, err := h.img.Search(c.Request.Context(), int32(limit), filters...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"image_sets": sets, "count": len(sets)})
}

// GetImageSetMetadata returns the decoded metadata plus the flattened
// series view for one image set.
func (h *Handler) GetImageSetMetadata(c *gin.Context) {
	id := c.Param("id")
	md, err := h.img.Metadata(c.Request.Context(), id, c.Query("version"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": md, "series": md.FlattenSeries()})
}

// GetImageFrame streams one frame's HTJ2K bytes.
func (h *Handler) GetImageFrame(c *gin.Context) {
	id := c.Param("id")
	frameID := c.Param("frameId")
	b, contentType, err := h.img.GetFrame(c.Request.Context(), id, frameID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, b)
}

// DeleteImageSet permanently removes an image set.
func (h *Handler) DeleteImageSet(c *gin.Context) {
	id := c.Param("id")
	state, err := h.img.DeleteImageSet(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"image_set_id": id, "state": state})
}
