package guard

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	csrfCookieName = "stash_csrf"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
	csrfTokenBytes = 32
)

// CSRF returns a middleware issuing a per-client random token on safe
// requests and verifying its echo on every state-changing one. The compare is
// constant-time; a mismatch fails the request and counts toward lockout.
func (g *Guard) CSRF() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !g.cfg.CSRFEnabled {
				return next(c)
			}

			cookie, err := c.Cookie(csrfCookieName)
			hasToken := err == nil && cookie.Value != ""

			if isSafeMethod(c.Request().Method) {
				if !hasToken {
					token, err := mintToken()
					if err != nil {
						return c.String(http.StatusInternalServerError, "Server error")
					}
					c.SetCookie(&http.Cookie{
						Name:     csrfCookieName,
						Value:    token,
						Path:     "/",
						MaxAge:   int((12 * time.Hour).Seconds()),
						HttpOnly: false, // client scripts must echo it back
						SameSite: http.SameSiteLaxMode,
					})
				}
				return next(c)
			}

			presented := c.Request().Header.Get(csrfHeaderName)
			if presented == "" {
				presented = c.FormValue(csrfFormField)
			}

			if !hasToken || !tokensEqual(cookie.Value, presented) {
				log.Printf("Warning: CSRF token mismatch from %s on %s", c.RealIP(), c.Request().URL.Path)
				g.Fail(c.RealIP(), time.Now())
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "invalid or missing CSRF token",
				})
			}
			return next(c)
		}
	}
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

func mintToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func tokensEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
