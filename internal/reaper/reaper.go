package reaper

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fruworg/stash/internal/config"
	"github.com/fruworg/stash/internal/db"
	"github.com/fruworg/stash/internal/storage"
	"github.com/fruworg/stash/internal/upload"
)

const (
	leaseFileName  = ".reaper.lease"
	leaseStaleness = 30 * time.Minute
	orphanMaxIdle  = 30 * time.Minute
)

// Reaper is the background garbage collector: it deletes expired links from
// disk and registry, and sweeps orphaned upload sessions. A lease marker on
// the shared storage root keeps two reapers from racing on the same tree.
type Reaper struct {
	cfg      *config.Config
	db       *db.DB
	store    *storage.Store
	tracker  *upload.Tracker
	stopChan chan struct{}
}

// New creates a reaper.
func New(cfg *config.Config, database *db.DB, store *storage.Store, tracker *upload.Tracker) *Reaper {
	return &Reaper{
		cfg:      cfg,
		db:       database,
		store:    store,
		tracker:  tracker,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop. The first pass runs immediately so expired
// storages left over from a previous run are reclaimed at boot.
func (r *Reaper) Start() {
	interval := time.Duration(r.cfg.SweepIntervalSeconds) * time.Second

	go func() {
		r.RunPass()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.RunPass()
			case <-r.stopChan:
				log.Println("Reaper stopped")
				return
			}
		}
	}()
	log.Printf("Reaper started, sweeping every %s", interval)
}

// Stop halts the sweep loop.
func (r *Reaper) Stop() {
	close(r.stopChan)
}

// RunPass executes one sweep. Re-running a pass is idempotent: a missing
// directory is a no-op delete and row deletion of absent rows succeeds.
func (r *Reaper) RunPass() {
	if !r.acquireLease() {
		log.Println("Reaper pass skipped: another reaper holds the lease")
		return
	}
	defer r.releaseLease()

	now := time.Now()
	expired, err := r.db.ListExpired(now)
	if err != nil {
		log.Printf("Error: Failed to list expired links: %v", err)
		return
	}

	var reclaimed []string
	for _, id := range expired {
		r.tracker.AbortLink(id)
		if err := r.store.Reclaim(id); err != nil {
			// Log and continue; the row stays so the next pass retries.
			log.Printf("Error: Failed to reclaim storage %s: %v", id, err)
			continue
		}
		reclaimed = append(reclaimed, id)
	}

	// One commit per pass, not per row.
	if err := r.db.DeleteExpired(reclaimed); err != nil {
		log.Printf("Error: Failed to delete expired registry rows: %v", err)
	}

	if swept := r.tracker.SweepIdle(orphanMaxIdle); swept > 0 {
		log.Printf("Swept %d orphaned upload sessions", swept)
	}

	if len(reclaimed) > 0 {
		log.Printf("Reaper pass complete: reclaimed %d of %d expired storages", len(reclaimed), len(expired))
	}
}

// acquireLease writes a timestamp marker unless a sufficiently fresh one
// already exists. An unreadable or stale marker is overwritten.
func (r *Reaper) acquireLease() bool {
	path := r.leasePath()

	data, err := os.ReadFile(path)
	if err == nil {
		if stamp, perr := time.Parse(time.RFC3339, string(data)); perr == nil {
			if time.Since(stamp) < leaseStaleness {
				return false
			}
		}
	}

	if err := os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		log.Printf("Warning: Failed to write reaper lease: %v", err)
		// Proceed anyway; losing the lease only risks duplicate idempotent work.
	}
	return true
}

func (r *Reaper) releaseLease() {
	if err := os.Remove(r.leasePath()); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Failed to remove reaper lease: %v", err)
	}
}

func (r *Reaper) leasePath() string {
	return filepath.Join(r.store.Root(), leaseFileName)
}
