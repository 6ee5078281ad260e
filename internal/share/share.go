// Package share persists completed generations so they can be fetched
// later through a stable link. Shares outlive the in-memory task state,
// so they live in sqlite.
package share

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// Share is one persisted generation output.
type Share struct {
	ID         string
	TargetType string
	Content    string
	URL        string
	CreatedAt  string
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init runs migrations using PRAGMA user_version.
func (s *Store) Init() error {
	var ver int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&ver); err != nil {
		return err
	}
	if ver >= 1 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// v1 schema
	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS shares (
  share_id TEXT PRIMARY KEY,
  target_type TEXT NOT NULL,
  content TEXT NOT NULL,
  created_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1`); err != nil {
		return err
	}

	return tx.Commit()
}

// Put stores a finished generation under a fresh id and returns the share.
func (s *Store) Put(targetType, content string) (*Share, error) {
	sh := &Share{
		ID:         uuid.NewString(),
		TargetType: targetType,
		Content:    content,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	sh.URL = URLFor(sh.ID)
	if _, err := s.db.Exec(
		`INSERT INTO shares (share_id, target_type, content, created_at) VALUES (?, ?, ?, ?)`,
		sh.ID, sh.TargetType, sh.Content, sh.CreatedAt,
	); err != nil {
		return nil, err
	}
	return sh, nil
}

// Publish satisfies the stream producer's Publisher interface.
func (s *Store) Publish(targetType, content string) (string, error) {
	sh, err := s.Put(targetType, content)
	if err != nil {
		return "", err
	}
	return sh.URL, nil
}

func (s *Store) Get(shareID string) (*Share, error) {
	row := s.db.QueryRow(`SELECT share_id, target_type, content, created_at FROM shares WHERE share_id = ?`, shareID)
	var sh Share
	if err := row.Scan(&sh.ID, &sh.TargetType, &sh.Content, &sh.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	sh.URL = URLFor(sh.ID)
	return &sh, nil
}

// Delete removes a share. Returns ErrNotFound if no row matched.
func (s *Store) Delete(shareID string) error {
	res, err := s.db.Exec(`DELETE FROM shares WHERE share_id = ?`, shareID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// URLFor is the canonical share path served by the HTTP API.
func URLFor(shareID string) string {
	return "/v1/shares/" + shareID
}
