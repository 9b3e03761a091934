package storage

import (
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/fruworg/stash/internal/model"
	"github.com/fruworg/stash/internal/sanitize"
	"github.com/fruworg/stash/internal/utils"
)

// Store manages the on-disk layout: one directory per link id directly under
// the root, file entries flat inside it.
type Store struct {
	root string
}

// NewStore creates the storage root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory for a link after containment checking the id.
func (s *Store) Dir(linkID string) (string, error) {
	return sanitize.WithinRoot(s.root, linkID)
}

// FilePath resolves a sanitized filename inside a link's directory, verifying
// the result stays contained.
func (s *Store) FilePath(linkID, name string) (string, error) {
	dir, err := s.Dir(linkID)
	if err != nil {
		return "", err
	}
	return sanitize.WithinRoot(dir, name)
}

// EnsureDir creates a link's directory if missing.
func (s *Store) EnsureDir(linkID string) (string, error) {
	dir, err := s.Dir(linkID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// List enumerates a link's files sorted by modification time descending.
// Partial uploads (".part" targets) are never listed.
func (s *Store) List(linkID string) ([]model.FileEntry, error) {
	dir, err := s.Dir(linkID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []model.FileEntry
	for _, entry := range entries {
		if entry.IsDir() || isInternalName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, model.FileEntry{
			Name:       entry.Name(),
			Size:       info.Size(),
			SizeHuman:  utils.FormatFileSize(info.Size()),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})
	return files, nil
}

// Usage sums the on-disk sizes of a link's committed files. A missing
// directory counts as zero.
func (s *Store) Usage(linkID string) (int64, error) {
	files, err := s.List(linkID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}

// FileSize returns the size of one committed file, or 0 if absent.
func (s *Store) FileSize(linkID, name string) (int64, error) {
	path, err := s.FilePath(linkID, name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes one file. Absence is success so concurrent deletes and
// reaper races stay quiet.
func (s *Store) Remove(linkID, name string) error {
	path, err := s.FilePath(linkID, name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Reclaim removes a link's entire directory. It is the single cleanup path
// shared by lazy expiry, delete-all, and the reaper; a directory that is
// already gone is a no-op.
func (s *Store) Reclaim(linkID string) error {
	dir, err := s.Dir(linkID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Printf("Error: Failed to reclaim storage for %s: %v", linkID, err)
		return err
	}
	return nil
}

// isInternalName hides in-flight upload artifacts from listings and usage.
func isInternalName(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".part" || ext == ".tmp"
}
