package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ReloadFunc reloads the in-memory gallery and returns its entry count.
type ReloadFunc func(ctx context.Context) (int, error)

type GalleryHandler struct {
	reload ReloadFunc
	// broadcast tells peer processes to reload; nil when running alone.
	broadcast func() error
}

func NewGalleryHandler(reload ReloadFunc, broadcast func() error) *GalleryHandler {
	return &GalleryHandler{reload: reload, broadcast: broadcast}
}

func (h *GalleryHandler) Reload(c *gin.Context) {
	n, err := h.reload(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.broadcast != nil {
		if err := h.broadcast(); err != nil {
			slog.Warn("broadcast gallery reload", "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "entries": n})
}
