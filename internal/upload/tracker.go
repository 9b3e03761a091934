package upload

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fruworg/stash/internal/config"
	"github.com/fruworg/stash/internal/quota"
	"github.com/fruworg/stash/internal/sanitize"
	"github.com/fruworg/stash/internal/storage"
)

var (
	// ErrUnknownSession is returned for a chunk whose session token was never
	// seen (or was already aborted or committed).
	ErrUnknownSession = errors.New("unknown upload session")
	// ErrOutOfOrder is returned when a chunk index does not match the next
	// expected index for its session.
	ErrOutOfOrder = errors.New("chunk out of order")
	// ErrSizeMismatch is returned when actual bytes disagree with declared
	// sizes; the session is aborted and the partial file removed.
	ErrSizeMismatch = errors.New("chunk size mismatch")
	// ErrBadSessionToken is returned for tokens outside ^[A-Za-z0-9_-]*$.
	ErrBadSessionToken = errors.New("invalid upload session token")
	// ErrBadChunkParams is returned for nonsensical chunk/chunks/total values.
	ErrBadChunkParams = errors.New("invalid chunk parameters")
)

// partSuffix marks an in-flight reassembly target. The file is renamed to its
// final name only when the last chunk commits, so partial uploads are never
// listable and an abort leaves nothing behind.
const partSuffix = ".part"

// session tracks one in-flight chunked upload. Chunk processing for a given
// session is serialized on its mutex; the protocol assumes sequential
// delivery by the client.
type session struct {
	mu            sync.Mutex
	linkID        string
	token         string
	name          string
	declaredTotal int64
	totalChunks   int
	chunkSize     int64 // first chunk's declared length, the client's chunk size
	nextChunk     int
	lastActivity  time.Time
}

func (s *session) key() string {
	return s.linkID + "/" + s.token
}

// Result reports the outcome of an accepted chunk.
type Result struct {
	Committed bool   `json:"committed"`
	Progress  int    `json:"progress"`
	Name      string `json:"name,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// Tracker is the in-memory table of in-progress chunked uploads.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*session

	store    *storage.Store
	enforcer *quota.Enforcer
	cfg      *config.Config
}

// NewTracker creates an upload session tracker.
func NewTracker(store *storage.Store, enforcer *quota.Enforcer, cfg *config.Config) *Tracker {
	return &Tracker{
		sessions: make(map[string]*session),
		store:    store,
		enforcer: enforcer,
		cfg:      cfg,
	}
}

// HandleChunk drives the session state machine for one delivered chunk.
// chunkLen is the chunk's declared byte length; src streams its payload.
//
// Chunk 0 starts (or restarts) a session: the name is sanitized, the quota
// reserved, and the reassembly target truncated. Re-delivery of chunk 0 for
// an accepted session restarts it with overwrite semantics. Any rejection
// after chunk 0 aborts the session and removes the partial file; Aborted is
// terminal and the client must restart from chunk 0.
func (t *Tracker) HandleChunk(linkID, token, rawName string, chunkIndex, totalChunks int, declaredTotal int64, src io.Reader, chunkLen int64) (*Result, error) {
	if !sanitize.ValidSessionToken(token) {
		return nil, ErrBadSessionToken
	}
	if totalChunks <= 0 || chunkIndex < 0 || chunkIndex >= totalChunks || chunkLen < 0 {
		return nil, ErrBadChunkParams
	}

	if chunkIndex == 0 {
		return t.startSession(linkID, token, rawName, totalChunks, declaredTotal, src, chunkLen)
	}

	t.mu.Lock()
	s, ok := t.sessions[linkID+"/"+token]
	t.mu.Unlock()
	if !ok {
		return nil, ErrUnknownSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if chunkIndex != s.nextChunk || totalChunks != s.totalChunks || declaredTotal != s.declaredTotal {
		t.abort(s)
		return nil, fmt.Errorf("%w: got chunk %d, expected %d", ErrOutOfOrder, chunkIndex, s.nextChunk)
	}

	if err := t.appendChunk(s, src, chunkLen); err != nil {
		t.abort(s)
		return nil, err
	}

	s.nextChunk++
	s.lastActivity = time.Now()

	if chunkIndex == s.totalChunks-1 {
		return t.commit(s)
	}
	return &Result{Progress: progress(s.nextChunk, s.totalChunks)}, nil
}

// startSession handles chunk 0: validation, reservation, and target creation.
func (t *Tracker) startSession(linkID, token, rawName string, totalChunks int, declaredTotal int64, src io.Reader, chunkLen int64) (*Result, error) {
	name, err := sanitize.Name(rawName, t.cfg.AllowedExtensions)
	if err != nil {
		return nil, err
	}

	if err := t.enforcer.Reserve(linkID, name, declaredTotal); err != nil {
		return nil, err
	}

	if _, err := t.store.EnsureDir(linkID); err != nil {
		return nil, err
	}
	partPath, err := t.store.FilePath(linkID, name+partSuffix)
	if err != nil {
		return nil, err
	}

	s := &session{
		linkID:        linkID,
		token:         token,
		name:          name,
		declaredTotal: declaredTotal,
		totalChunks:   totalChunks,
		chunkSize:     chunkLen,
		lastActivity:  time.Now(),
	}

	t.mu.Lock()
	if prev, ok := t.sessions[s.key()]; ok {
		// A repeated chunk 0 replaces the previous session wrapper.
		log.Printf("Warning: restarting upload session %s for link %s", token, linkID)
		t.removePartial(prev)
	}
	t.sessions[s.key()] = s
	t.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	dst, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		t.abort(s)
		return nil, err
	}
	dst.Close()

	if err := t.appendChunk(s, src, chunkLen); err != nil {
		t.abort(s)
		return nil, err
	}

	s.nextChunk = 1
	if s.totalChunks == 1 {
		return t.commit(s)
	}
	return &Result{Progress: progress(1, s.totalChunks)}, nil
}

// appendChunk implements the temp-file-then-append technique: the chunk is
// written to a fresh temp file first, its length verified against the
// declared chunk length, and only then appended to the reassembly target.
// An interrupted transfer therefore never corrupts the target.
func (t *Tracker) appendChunk(s *session, src io.Reader, chunkLen int64) error {
	dir, err := t.store.Dir(s.linkID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, s.name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, io.LimitReader(src, chunkLen+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if written != chunkLen {
		return fmt.Errorf("%w: chunk declared %d bytes, received %d", ErrSizeMismatch, chunkLen, written)
	}

	partPath, err := t.store.FilePath(s.linkID, s.name+partSuffix)
	if err != nil {
		return err
	}
	target, err := os.OpenFile(partPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer target.Close()

	tmpFile, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer tmpFile.Close()

	if _, err := io.Copy(target, tmpFile); err != nil {
		return err
	}

	info, err := target.Stat()
	if err != nil {
		return err
	}
	return t.checkCumulativeSize(s, info.Size())
}

// checkCumulativeSize verifies the target's size after an append. Non-final
// chunks allow a ±10% tolerance around the expected cumulative size (the
// client's chunk size times chunks received, capped at the declared total) to
// absorb chunking boundary slack; the final chunk is checked exactly on
// commit.
func (t *Tracker) checkCumulativeSize(s *session, actual int64) error {
	chunksDone := s.nextChunk + 1
	if chunksDone >= s.totalChunks {
		if actual > s.declaredTotal {
			return fmt.Errorf("%w: %d bytes on disk exceed declared total %d", ErrSizeMismatch, actual, s.declaredTotal)
		}
		return nil
	}

	expected := s.chunkSize * int64(chunksDone)
	if expected > s.declaredTotal {
		expected = s.declaredTotal
	}
	tolerance := expected / 10
	if actual < expected-tolerance || actual > expected+tolerance {
		return fmt.Errorf("%w: %d bytes on disk, expected about %d after %d chunks",
			ErrSizeMismatch, actual, expected, chunksDone)
	}
	return nil
}

// commit finalizes a session: the on-disk size must equal the declared total
// exactly, then the target is renamed into place and becomes listable.
// Called with the session lock held.
func (t *Tracker) commit(s *session) (*Result, error) {
	partPath, err := t.store.FilePath(s.linkID, s.name+partSuffix)
	if err != nil {
		t.abort(s)
		return nil, err
	}

	info, err := os.Stat(partPath)
	if err != nil {
		t.abort(s)
		return nil, err
	}
	if info.Size() != s.declaredTotal {
		t.abort(s)
		return nil, fmt.Errorf("%w: final size %d, declared %d", ErrSizeMismatch, info.Size(), s.declaredTotal)
	}

	finalPath, err := t.store.FilePath(s.linkID, s.name)
	if err != nil {
		t.abort(s)
		return nil, err
	}
	if err := os.Rename(partPath, finalPath); err != nil {
		t.abort(s)
		return nil, err
	}

	t.mu.Lock()
	delete(t.sessions, s.key())
	t.mu.Unlock()

	log.Printf("Upload committed: %s under link %s (%d bytes, %d chunks)",
		s.name, s.linkID, s.declaredTotal, s.totalChunks)
	return &Result{Committed: true, Progress: 100, Name: s.name, Size: s.declaredTotal}, nil
}

// abort discards a session and its partial file. Terminal.
func (t *Tracker) abort(s *session) {
	t.removePartial(s)
	t.mu.Lock()
	delete(t.sessions, s.key())
	t.mu.Unlock()
}

func (t *Tracker) removePartial(s *session) {
	if err := t.store.Remove(s.linkID, s.name+partSuffix); err != nil {
		log.Printf("Warning: Failed to remove partial upload for %s/%s: %v", s.linkID, s.name, err)
	}
}

// AbortLink discards every in-flight session for a link. Used when the link
// itself is reclaimed.
func (t *Tracker) AbortLink(linkID string) {
	t.mu.Lock()
	var stale []*session
	for key, s := range t.sessions {
		if s.linkID == linkID {
			stale = append(stale, s)
			delete(t.sessions, key)
		}
	}
	t.mu.Unlock()

	for _, s := range stale {
		t.removePartial(s)
	}
}

// SweepIdle removes sessions with no activity for longer than maxIdle along
// with their partial files, and returns how many were reclaimed.
func (t *Tracker) SweepIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	t.mu.Lock()
	var stale []*session
	for key, s := range t.sessions {
		if s.lastActivity.Before(cutoff) {
			stale = append(stale, s)
			delete(t.sessions, key)
		}
	}
	t.mu.Unlock()

	for _, s := range stale {
		t.removePartial(s)
		log.Printf("Removed orphaned upload session %s for link %s", s.token, s.linkID)
	}
	return len(stale)
}

// Active returns the number of in-flight sessions.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func progress(done, total int) int {
	if total == 0 {
		return 0
	}
	return done * 100 / total
}
