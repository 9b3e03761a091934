package model

import "time"

// Link represents one temporary storage area addressed by a short public
// identifier. The identifier doubles as the on-disk directory name.
type Link struct {
	ID        string    `json:"link_id"`
	OwnerID   *string   `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the link is past its expiry at the given instant.
func (l *Link) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// FileEntry describes one stored file under a link.
type FileEntry struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	SizeHuman  string    `json:"size_human,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

// StorageStats holds aggregate usage for a link.
type StorageStats struct {
	TotalSize   int64   `json:"total_size"`
	UsedPercent float64 `json:"used_percent"`
	FileCount   int     `json:"file_count"`
}
