package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mcoot/relsync/internal/model"
	"github.com/mcoot/relsync/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Storage is a SQLite-backed profile cache. Records are stored as JSON with
// the self marker held in an indexed column.
type Storage struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and applies the
// schema. Safe to call on an existing database.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ensure Storage implements the interface
var _ storage.ProfileCache = (*Storage)(nil)

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Peer operations

// PutProfile upserts a peer record. Overwriting the record marked as self
// keeps the marker and, unless the new record carries one, its self block.
func (s *Storage) PutProfile(ctx context.Context, profile *model.PeerProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		isMe bool
		data string
	)
	err = tx.QueryRowContext(ctx, `SELECT is_me, data FROM profiles WHERE id = ?`, int64(profile.ID)).Scan(&isMe, &data)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("put profile: %w", err)
	}

	rec := *profile
	rec.IsMe = isMe
	if isMe && rec.Self == nil {
		existing, err := decode(data)
		if err != nil {
			return fmt.Errorf("put profile: %w", err)
		}
		rec.Self = existing.Self
	}
	if err := upsert(ctx, tx, &rec); err != nil {
		return fmt.Errorf("put profile: %w", err)
	}
	return tx.Commit()
}

func (s *Storage) GetProfile(ctx context.Context, id model.PeerID) (*model.PeerProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE id = ?`, int64(id)).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrPeerNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return decode(data)
}

// Self marker operations

func (s *Storage) GetSelf(ctx context.Context) (*model.PeerProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM profiles WHERE is_me = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrSelfNotFound
		}
		return nil, fmt.Errorf("get self: %w", err)
	}
	return decode(data)
}

func (s *Storage) ClearSelfMarker(ctx context.Context, id model.PeerID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear self marker: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearMarker(ctx, tx, id); err != nil {
		return fmt.Errorf("clear self marker: %w", err)
	}
	return tx.Commit()
}

func (s *Storage) PutSelf(ctx context.Context, profile *model.PeerProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put self: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM profiles WHERE is_me = 1`).Scan(&prevID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("put self: %w", err)
	case model.PeerID(prevID) != profile.ID:
		if err := clearMarker(ctx, tx, model.PeerID(prevID)); err != nil {
			return fmt.Errorf("put self: %w", err)
		}
	}

	rec := *profile
	rec.IsMe = true
	if err := upsert(ctx, tx, &rec); err != nil {
		return fmt.Errorf("put self: %w", err)
	}
	return tx.Commit()
}

func clearMarker(ctx context.Context, tx *sql.Tx, id model.PeerID) error {
	var data string
	err := tx.QueryRowContext(ctx, `SELECT data FROM profiles WHERE id = ?`, int64(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	rec, err := decode(data)
	if err != nil {
		return err
	}
	rec.IsMe = false
	return upsert(ctx, tx, rec)
}

func upsert(ctx context.Context, tx *sql.Tx, rec *model.PeerProfile) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (id, data, is_me, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			is_me = excluded.is_me,
			updated_at = excluded.updated_at
	`, int64(rec.ID), string(data), rec.IsMe, time.Now().UnixMilli())
	return err
}

func decode(data string) (*model.PeerProfile, error) {
	var profile model.PeerProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}
