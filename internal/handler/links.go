package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fruworg/stash/internal/db"
	"github.com/fruworg/stash/internal/sanitize"
	"github.com/fruworg/stash/internal/utils"
)

const linkIDLength = 12

// RequireAPIKey guards the link management endpoints used by the external
// command layer. With no key configured the endpoints are disabled.
func (h *Handler) RequireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.cfg.APIKey == "" {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
			}
			presented := c.Request().Header.Get("X-Api-Key")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(h.cfg.APIKey)) != 1 {
				log.Printf("Warning: Bad API key from %s", c.RealIP())
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// createLinkRequest is the body of a link creation call.
type createLinkRequest struct {
	OwnerID string `json:"owner_id,omitempty"`
	Days    int    `json:"days,omitempty"`
}

// HandleCreateLink mints a new storage link with the requested (or default)
// duration.
func (h *Handler) HandleCreateLink(c echo.Context) error {
	var req createLinkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	days := req.Days
	if days <= 0 {
		days = h.cfg.ExpirationDays
	}

	id, err := generateLinkID()
	if err != nil {
		return h.writeError(c, err)
	}

	var owner *string
	if req.OwnerID != "" {
		owner = &req.OwnerID
	}

	link, err := h.db.CreateLink(id, owner, time.Duration(days)*24*time.Hour)
	if err != nil {
		return h.writeError(c, err)
	}

	log.Printf("Link created: %s, expires %s", link.ID, link.ExpiresAt.Format(time.RFC3339))
	return c.JSON(http.StatusOK, link)
}

// HandleExtendLink moves a link's expiry forward. The new expiry is taken
// from the "expires" form value (hours, unix millis, or a date string) and
// must be in the future.
func (h *Handler) HandleExtendLink(c echo.Context) error {
	linkID := c.Param("link_id")
	if !sanitize.ValidLinkID(linkID) {
		h.notFound(c)
		return nil
	}

	expiresAt, err := utils.ParseExpirationTime(c.FormValue("expires"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid expiration format"})
	}
	if !expiresAt.After(time.Now()) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "expiration must be in the future"})
	}

	if err := h.db.ExtendLink(linkID, expiresAt); err != nil {
		if errors.Is(err, db.ErrLinkNotFound) {
			h.notFound(c)
			return nil
		}
		return h.writeError(c, err)
	}

	log.Printf("Link extended: %s until %s", linkID, expiresAt.UTC().Format(time.RFC3339))
	return c.JSON(http.StatusOK, map[string]any{"success": true, "expires_at": expiresAt.UTC()})
}

func generateLinkID() (string, error) {
	buf := make([]byte, linkIDLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
