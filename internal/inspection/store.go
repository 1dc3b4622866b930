// Package inspection is the data-access collaborator: inspection records
// plus an append-only event log, backed by SQLite.
package inspection

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fieldlink/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound indicates the requested inspection record does not exist.
var ErrNotFound = errors.New("inspection not found")

// Record is one inspection bound to a realtime session.
type Record struct {
	ID        string
	Title     string
	Equipment string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is one append-only entry in an inspection's history.
type Event struct {
	ID                  int64
	InspectionID        string
	Action              string
	Status              string
	Message             string
	ExternalReferenceID string
	Source              string
	CreatedAt           time.Time
}

// Store manages inspection persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the inspection database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "fieldlink.db"))
}

// OpenPath opens the store at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// CreateInspection inserts a new inspection record.
func (s *Store) CreateInspection(ctx context.Context, id, title, equipment string) (*Record, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inspections (id, title, equipment, status, created_at, updated_at)
         VALUES (?, ?, ?, 'open', ?, ?)`,
		id, title, equipment, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert inspection: %w", err)
	}
	return s.GetInspection(ctx, id)
}

// GetInspection fetches one inspection record; ErrNotFound when absent.
func (s *Store) GetInspection(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, equipment, status, created_at, updated_at
         FROM inspections WHERE id = ?`, id)

	var rec Record
	var createdAt, updatedAt string
	err := row.Scan(&rec.ID, &rec.Title, &rec.Equipment, &rec.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inspection %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan inspection: %w", err)
	}
	rec.CreatedAt = parseTimestamp(createdAt)
	rec.UpdatedAt = parseTimestamp(updatedAt)
	return &rec, nil
}

// AppendEvent appends one entry to the inspection event log.
func (s *Store) AppendEvent(ctx context.Context, event Event) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inspection_events
            (inspection_id, action, status, message, external_reference_id, source, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.InspectionID,
		event.Action,
		event.Status,
		event.Message,
		nullableString(event.ExternalReferenceID),
		event.Source,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert inspection event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ListEvents returns the event log for one inspection in append order.
func (s *Store) ListEvents(ctx context.Context, inspectionID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, inspection_id, action, status, message, external_reference_id, source, created_at
         FROM inspection_events WHERE inspection_id = ? ORDER BY id ASC`, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("query inspection events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var reference sql.NullString
		var createdAt string
		if err := rows.Scan(&event.ID, &event.InspectionID, &event.Action, &event.Status,
			&event.Message, &reference, &event.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scan inspection event: %w", err)
		}
		event.ExternalReferenceID = reference.String
		event.CreatedAt = parseTimestamp(createdAt)
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
