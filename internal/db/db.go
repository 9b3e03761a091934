package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fruworg/stash/internal/config"
	"github.com/fruworg/stash/internal/model"
	_ "github.com/mattn/go-sqlite3"
)

// ErrLinkNotFound is returned when no registry row exists for a link id.
var ErrLinkNotFound = errors.New("link not found")

// DB wraps a single long-lived SQLite handle shared by the request handlers
// and the reaper.
type DB struct {
	*sql.DB
}

// NewDB opens the link registry, creating the schema if needed.
func NewDB(cfg *config.Config) (*DB, error) {
	db, err := sql.Open("sqlite3", cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS temp_links (
			link_id    TEXT PRIMARY KEY,
			owner_id   TEXT,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// CreateLink inserts a new link expiring after the given duration.
func (db *DB) CreateLink(id string, ownerID *string, ttl time.Duration) (*model.Link, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("link ttl must be positive")
	}

	now := time.Now().UTC()
	link := &model.Link{
		ID:        id,
		OwnerID:   ownerID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	stmt, err := db.Prepare(`
		INSERT INTO temp_links (link_id, owner_id, created_at, expires_at) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	var owner sql.NullString
	if ownerID != nil {
		owner = sql.NullString{String: *ownerID, Valid: true}
	}

	_, err = stmt.Exec(link.ID, owner, link.CreatedAt.Format(time.RFC3339), link.ExpiresAt.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return link, nil
}

// GetLink retrieves a link by id.
func (db *DB) GetLink(id string) (*model.Link, error) {
	var (
		owner     sql.NullString
		createdAt string
		expiresAt string
	)

	err := db.QueryRow(`
		SELECT owner_id, created_at, expires_at FROM temp_links WHERE link_id = ?
	`, id).Scan(&owner, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	link := &model.Link{ID: id}
	if owner.Valid {
		link.OwnerID = &owner.String
	}
	if link.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at for link %s: %w", id, err)
	}
	if link.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return nil, fmt.Errorf("corrupt expires_at for link %s: %w", id, err)
	}
	return link, nil
}

// ExtendLink moves a link's expiry to the given time.
func (db *DB) ExtendLink(id string, expiresAt time.Time) error {
	stmt, err := db.Prepare("UPDATE temp_links SET expires_at = ? WHERE link_id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	res, err := stmt.Exec(expiresAt.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// DeleteLink removes a link's registry row. Deleting a missing row is not an
// error so that cleanup paths stay idempotent.
func (db *DB) DeleteLink(id string) error {
	stmt, err := db.Prepare("DELETE FROM temp_links WHERE link_id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(id)
	return err
}

// ListExpired returns the ids of all links past their expiry.
func (db *DB) ListExpired(now time.Time) ([]string, error) {
	rows, err := db.Query(`
		SELECT link_id FROM temp_links WHERE expires_at <= ?
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteExpired removes the given registry rows in one transaction, so a
// reaper pass commits once rather than per row.
func (db *DB) DeleteExpired(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("DELETE FROM temp_links WHERE link_id = ?")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
