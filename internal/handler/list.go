package handler

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fruworg/stash/internal/model"
	"github.com/fruworg/stash/internal/utils"
)

// HandleList enumerates a link's files, newest first, with aggregate quota
// usage.
func (h *Handler) HandleList(c echo.Context) error {
	link, ok := h.resolveLink(c)
	if !ok {
		return nil
	}

	files, err := h.store.List(link.ID)
	if err != nil {
		log.Printf("Error: Failed to list storage %s: %v", link.ID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server error"})
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}

	stats := model.StorageStats{
		TotalSize: total,
		FileCount: len(files),
	}
	if ceiling := h.cfg.MaxStorageBytes(); ceiling > 0 {
		stats.UsedPercent = float64(total) / float64(ceiling) * 100
	}

	if files == nil {
		files = []model.FileEntry{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"link_id":    link.ID,
		"expires_at": link.ExpiresAt,
		"files":      files,
		"stats":      stats,
		"total_size": utils.FormatFileSize(total),
	})
}
