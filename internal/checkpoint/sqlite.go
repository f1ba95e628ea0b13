package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite journal
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one writer at a time; the crawl is sequential anyway
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &SQLiteStore{
		db:     db,
		closed: false,
	}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		item_index INTEGER NOT NULL,
		source_url TEXT NOT NULL,
		identifier TEXT NOT NULL,
		outcome TEXT NOT NULL,
		kind TEXT,
		attempt INTEGER DEFAULT 0,
		detail TEXT,
		files TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_item ON attempts(item_index);
	CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
	`

	_, err := s.db.Exec(query)
	return err
}

// RecordAttempt appends a journal entry with retry mechanism
func (s *SQLiteStore) RecordAttempt(record *AttemptRecord) error {
	if s.closed {
		return fmt.Errorf("database store is closed")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	files, err := json.Marshal(record.Files)
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}

	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(`
		INSERT INTO attempts
		(run_id, item_index, source_url, identifier, outcome, kind, attempt, detail, files, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			record.RunID,
			record.Index,
			record.SourceURL,
			record.Identifier,
			record.Outcome,
			record.Kind,
			record.Attempt,
			record.Detail,
			string(files),
			record.StartedAt,
			record.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to execute insert: %w", err)
		}
		return nil
	})
}

// ListAttempts returns the journal of one item, oldest first
func (s *SQLiteStore) ListAttempts(index int) ([]*AttemptRecord, error) {
	if s.closed {
		return nil, fmt.Errorf("database store is closed")
	}

	query := `
	SELECT run_id, item_index, source_url, identifier, outcome, kind, attempt, detail, files, started_at, finished_at
	FROM attempts WHERE item_index = ?
	ORDER BY id ASC
	`

	rows, err := s.db.Query(query, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*AttemptRecord

	for rows.Next() {
		var record AttemptRecord
		var kind, detail, files sql.NullString

		err := rows.Scan(
			&record.RunID,
			&record.Index,
			&record.SourceURL,
			&record.Identifier,
			&record.Outcome,
			&kind,
			&record.Attempt,
			&detail,
			&files,
			&record.StartedAt,
			&record.FinishedAt,
		)
		if err != nil {
			return nil, err
		}

		record.Kind = kind.String
		record.Detail = detail.String
		if files.Valid && files.String != "" {
			if err := json.Unmarshal([]byte(files.String), &record.Files); err != nil {
				return nil, fmt.Errorf("failed to decode files of item %d: %w", index, err)
			}
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}

// retryOnBusy retries the operation if SQLite is busy
func (s *SQLiteStore) retryOnBusy(operation func() error) error {
	maxRetries := 10
	baseDelay := 50 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if isSQLiteBusyError(err) && attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<uint(attempt))
			jitter := time.Duration(attempt*10) * time.Millisecond
			time.Sleep(delay + jitter)
			continue
		}

		return err
	}

	return nil
}

// isSQLiteBusyError checks if the error is a SQLite busy error
func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
