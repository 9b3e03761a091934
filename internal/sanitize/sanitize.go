package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrInvalidName is returned for names that cannot be made safe.
	ErrInvalidName = errors.New("invalid filename")
	// ErrExtensionNotAllowed is returned for extensions outside the allow-list.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	// ErrPathEscape is returned when a resolved path leaves its storage root.
	ErrPathEscape = errors.New("path escapes storage directory")
)

const maxNameLength = 255

// Markers rejected outright regardless of extension. The allow-list is the
// primary control; this is defense in depth against script and command
// injection through stored names.
var forbiddenMarkers = []string{
	"..", "/", "\\", "\x00",
	"<", ">", ";", "|", "&", "$", "`", "'", "\"",
}

var (
	sessionTokenRe = regexp.MustCompile(`^[A-Za-z0-9_-]*$`)
	linkIDRe       = regexp.MustCompile(`^[A-Za-z0-9]{1,64}$`)
)

// unsafeRune matches every rune that may not appear in an on-disk name.
var unsafeRune = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Name turns an untrusted client-supplied filename into a safe on-disk name,
// or rejects it. The result contains only filesystem-safe characters; two raw
// names may normalize to the same safe name, in which case the later write
// wins within the link's namespace.
func Name(raw string, allowedExts []string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(raw) > maxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}

	for _, marker := range forbiddenMarkers {
		if strings.Contains(raw, marker) {
			return "", fmt.Errorf("%w: forbidden sequence in name", ErrInvalidName)
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(raw), "."))
	if ext == "" {
		return "", fmt.Errorf("%w: missing extension", ErrInvalidName)
	}
	if !extensionAllowed(ext, allowedExts) {
		return "", fmt.Errorf("%w: .%s", ErrExtensionNotAllowed, ext)
	}

	safe := unsafeRune.ReplaceAllString(raw, "_")
	safe = strings.Trim(safe, "._")
	ext = filepath.Ext(safe)
	if ext == "" || strings.TrimSuffix(safe, ext) == "" {
		return "", fmt.Errorf("%w: nothing left after sanitizing", ErrInvalidName)
	}
	return safe, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// ValidSessionToken reports whether a client-supplied upload session token is
// acceptable.
func ValidSessionToken(token string) bool {
	return sessionTokenRe.MatchString(token)
}

// ValidLinkID reports whether an identifier is a plausible link token. Link
// ids become directory names, so anything else fails closed.
func ValidLinkID(id string) bool {
	return linkIDRe.MatchString(id)
}

// WithinRoot verifies that the joined path resolves to a strict descendant of
// root. Every file-path construction must pass through this check; a failure
// is treated as a security violation and the operation fails closed.
func WithinRoot(root, name string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(absRoot, name))
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absPath, absRoot+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return absPath, nil
}
