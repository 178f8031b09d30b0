// Package store persists provider credentials, the calendar cache, and
// the dispatch activity log in a single SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"calagent/internal/models"
)

// Store wraps the SQLite database. It implements provider.CredentialStore
// and dispatch.ActivityRecorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS credentials (
			provider   TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS calendars (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			provider   TEXT NOT NULL,
			email      TEXT,
			color      TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS activity (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			action_type TEXT NOT NULL,
			calendar_id TEXT,
			event_id    TEXT,
			succeeded   BOOLEAN NOT NULL,
			error       TEXT,
			result      TEXT,
			created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Load returns the stored credential blob for a provider, or nil if none
// has been saved yet.
func (s *Store) Load(provider models.ProviderTag) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM credentials WHERE provider = ?", provider).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return data, nil
}

// Save stores (or replaces) the credential blob for a provider.
func (s *Store) Save(provider models.ProviderTag, data []byte) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO credentials (provider, data, updated_at) VALUES (?, ?, ?)",
		provider, data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// SaveCalendars replaces the cached calendar list.
func (s *Store) SaveCalendars(calendars []models.Calendar) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM calendars"); err != nil {
		return fmt.Errorf("failed to clear calendar cache: %w", err)
	}
	for _, cal := range calendars {
		_, err := tx.Exec(
			"INSERT INTO calendars (id, name, provider, email, color) VALUES (?, ?, ?, ?, ?)",
			cal.ID, cal.Name, cal.Provider, cal.Email, cal.Color,
		)
		if err != nil {
			return fmt.Errorf("failed to cache calendar %s: %w", cal.ID, err)
		}
	}
	return tx.Commit()
}

// Calendars returns the cached calendar list.
func (s *Store) Calendars() ([]models.Calendar, error) {
	rows, err := s.db.Query("SELECT id, name, provider, email, color FROM calendars ORDER BY provider, name")
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar cache: %w", err)
	}
	defer rows.Close()

	var calendars []models.Calendar
	for rows.Next() {
		var cal models.Calendar
		var email, color sql.NullString
		if err := rows.Scan(&cal.ID, &cal.Name, &cal.Provider, &email, &color); err != nil {
			return nil, fmt.Errorf("failed to scan calendar row: %w", err)
		}
		cal.Email = email.String
		cal.Color = color.String
		calendars = append(calendars, cal)
	}
	return calendars, rows.Err()
}

// RecordOutcome appends one dispatch outcome to the activity log.
func (s *Store) RecordOutcome(o models.Outcome) error {
	_, err := s.db.Exec(
		"INSERT INTO activity (action_type, calendar_id, event_id, succeeded, error, result) VALUES (?, ?, ?, ?, ?, ?)",
		o.Action.Type, o.Action.CalendarID, o.Action.EventID, o.Succeeded, o.Error, o.Result,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// ActivityEntry is one row of the activity log.
type ActivityEntry struct {
	ID         int64
	ActionType string
	CalendarID string
	EventID    string
	Succeeded  bool
	Error      string
	Result     string
	CreatedAt  time.Time
}

// RecentActivity returns the most recent activity entries, newest first.
func (s *Store) RecentActivity(limit int) ([]ActivityEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, action_type, calendar_id, event_id, succeeded, error, result, created_at
		 FROM activity ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read activity log: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var calID, eventID, errMsg, result sql.NullString
		if err := rows.Scan(&e.ID, &e.ActionType, &calID, &eventID, &e.Succeeded, &errMsg, &result, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		e.CalendarID = calID.String
		e.EventID = eventID.String
		e.Error = errMsg.String
		e.Result = result.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
