package quota

import (
	"fmt"

	"github.com/fruworg/stash/internal/config"
	"github.com/fruworg/stash/internal/storage"
	"github.com/fruworg/stash/internal/utils"
)

// QuotaError reports a rejected reservation with the remaining capacity hint.
type QuotaError struct {
	Remaining int64
	Reason    string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s (%s remaining)", e.Reason, utils.FormatFileSize(e.Remaining))
}

// Enforcer checks upload reservations against the per-link ceiling.
type Enforcer struct {
	store *storage.Store
	cfg   *config.Config
}

// NewEnforcer creates a quota enforcer.
func NewEnforcer(store *storage.Store, cfg *config.Config) *Enforcer {
	return &Enforcer{store: store, cfg: cfg}
}

// Reserve validates that an upload of declaredTotal bytes for the given name
// fits under the link's ceiling. It is checked once, on the first chunk;
// later chunks trust the reservation and the final size is re-verified on
// commit. Overwriting an existing name re-uses that file's budget.
func (e *Enforcer) Reserve(linkID, name string, declaredTotal int64) error {
	if declaredTotal <= 0 {
		return &QuotaError{Remaining: 0, Reason: "declared size must be positive"}
	}
	if declaredTotal > e.cfg.MaxFileBytes() {
		return &QuotaError{
			Remaining: e.cfg.MaxFileBytes(),
			Reason:    "file exceeds per-file size limit",
		}
	}

	usage, err := e.store.Usage(linkID)
	if err != nil {
		return err
	}

	existing, err := e.store.FileSize(linkID, name)
	if err != nil {
		return err
	}
	usage -= existing

	ceiling := e.cfg.MaxStorageBytes()
	if usage+declaredTotal > ceiling {
		remaining := ceiling - usage
		if remaining < 0 {
			remaining = 0
		}
		return &QuotaError{Remaining: remaining, Reason: "storage limit exceeded"}
	}

	if e.cfg.MaxFilesPerStorage > 0 && existing == 0 {
		files, err := e.store.List(linkID)
		if err != nil {
			return err
		}
		if len(files) >= e.cfg.MaxFilesPerStorage {
			return &QuotaError{
				Remaining: remainingBytes(ceiling, usage),
				Reason:    fmt.Sprintf("file count limit reached (%d)", e.cfg.MaxFilesPerStorage),
			}
		}
	}

	return nil
}

func remainingBytes(ceiling, usage int64) int64 {
	if r := ceiling - usage; r > 0 {
		return r
	}
	return 0
}
