package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fruworg/stash/internal/config"
	"github.com/fruworg/stash/internal/db"
	"github.com/fruworg/stash/internal/model"
	"github.com/fruworg/stash/internal/quota"
	"github.com/fruworg/stash/internal/sanitize"
	"github.com/fruworg/stash/internal/storage"
	"github.com/fruworg/stash/internal/upload"
)

// Handler is the HTTP-facing storage gateway.
type Handler struct {
	cfg     *config.Config
	db      *db.DB
	store   *storage.Store
	quota   *quota.Enforcer
	tracker *upload.Tracker
}

// NewHandler creates the gateway handler.
func NewHandler(cfg *config.Config, database *db.DB, store *storage.Store, enforcer *quota.Enforcer, tracker *upload.Tracker) *Handler {
	return &Handler{
		cfg:     cfg,
		db:      database,
		store:   store,
		quota:   enforcer,
		tracker: tracker,
	}
}

// HandleHealth is the liveness probe.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// resolveLink loads the link and rejects expired or unknown ids with an
// identical not-found outcome. An expired link triggers lazy cleanup so
// correctness never depends on reaper cadence.
func (h *Handler) resolveLink(c echo.Context) (*model.Link, bool) {
	linkID := c.Param("link_id")
	if !sanitize.ValidLinkID(linkID) {
		h.notFound(c)
		return nil, false
	}

	link, err := h.db.GetLink(linkID)
	if err != nil {
		if !errors.Is(err, db.ErrLinkNotFound) {
			log.Printf("Error: Failed to load link %s: %v", linkID, err)
			c.String(http.StatusInternalServerError, "Server error")
			return nil, false
		}
		// Registry row gone; sweep any leftover directory.
		h.reclaim(linkID)
		h.notFound(c)
		return nil, false
	}

	if link.Expired(time.Now()) {
		h.reclaim(linkID)
		h.notFound(c)
		return nil, false
	}
	return link, true
}

// reclaim is the shared best-effort cleanup path: disk, in-flight sessions,
// registry row. Every step treats "already gone" as success; the reaper
// retries whatever failed on its next pass.
func (h *Handler) reclaim(linkID string) {
	h.tracker.AbortLink(linkID)
	if err := h.store.Reclaim(linkID); err != nil {
		log.Printf("Warning: Lazy cleanup of %s left data behind: %v", linkID, err)
		return
	}
	if err := h.db.DeleteLink(linkID); err != nil {
		log.Printf("Warning: Failed to delete registry row for %s: %v", linkID, err)
	}
}

// notFound is the uniform response for unknown and expired links alike, so
// link ids cannot be enumerated.
func (h *Handler) notFound(c echo.Context) {
	c.JSON(http.StatusNotFound, map[string]string{"error": "storage not found or expired"})
}

// writeError translates component outcomes into HTTP responses without
// leaking internals.
func (h *Handler) writeError(c echo.Context, err error) error {
	var quotaErr *quota.QuotaError

	switch {
	case errors.As(err, &quotaErr):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": quotaErr.Error()})
	case errors.Is(err, sanitize.ErrPathEscape):
		log.Printf("Error: Path containment violation from %s: %v", c.RealIP(), err)
		return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, sanitize.ErrInvalidName),
		errors.Is(err, sanitize.ErrExtensionNotAllowed),
		errors.Is(err, upload.ErrBadSessionToken),
		errors.Is(err, upload.ErrBadChunkParams),
		errors.Is(err, upload.ErrUnknownSession),
		errors.Is(err, upload.ErrOutOfOrder),
		errors.Is(err, upload.ErrSizeMismatch):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		log.Printf("Error: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
}
