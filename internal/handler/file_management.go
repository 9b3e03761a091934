package handler

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fruworg/stash/internal/sanitize"
)

// HandleDeleteFile removes one file from a link's storage. A file that is
// already gone is not an error.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	link, ok := h.resolveLink(c)
	if !ok {
		return nil
	}

	name, err := sanitize.Name(c.Param("filename"), h.cfg.AllowedExtensions)
	if err != nil {
		return h.writeError(c, err)
	}

	if err := h.store.Remove(link.ID, name); err != nil {
		return h.writeError(c, err)
	}

	log.Printf("File deleted: %s under link %s", name, link.ID)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// HandleDeleteAll removes a link's entire storage directory and its registry
// row in one logical operation. If the row deletion fails after the directory
// is gone, the reaper retries on its next pass.
func (h *Handler) HandleDeleteAll(c echo.Context) error {
	link, ok := h.resolveLink(c)
	if !ok {
		return nil
	}

	h.tracker.AbortLink(link.ID)
	if err := h.store.Reclaim(link.ID); err != nil {
		return h.writeError(c, err)
	}
	if err := h.db.DeleteLink(link.ID); err != nil {
		log.Printf("Warning: Storage %s removed but registry row remains: %v", link.ID, err)
	}

	log.Printf("Storage deleted: %s", link.ID)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
