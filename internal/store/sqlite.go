package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chuchurex/papaia.cl/internal/domain"
)

// SQLite persists captures in a single-file database. The record is stored
// as a JSON blob with the columns needed for lookup and sweeping broken out.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLite(dbPath string, logger *slog.Logger) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLite{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS captures (
		address     TEXT PRIMARY KEY,
		id          TEXT NOT NULL,
		channel     TEXT NOT NULL,
		state       TEXT NOT NULL,
		data        TEXT NOT NULL,
		updated_at  DATETIME NOT NULL,
		expires_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_captures_expires ON captures(expires_at);

	CREATE TABLE IF NOT EXISTS publish_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		capture_id  TEXT NOT NULL,
		destination TEXT NOT NULL,
		success     INTEGER NOT NULL,
		listing_id  TEXT,
		error       TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_publish_capture ON publish_log(capture_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Get(ctx context.Context, address string) (*domain.CaptureRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM captures WHERE address = ?`, address,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rec domain.CaptureRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode capture for %s: %w", address, err)
	}
	return &rec, nil
}

func (s *SQLite) Put(ctx context.Context, rec *domain.CaptureRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode capture %s: %w", rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO captures (address, id, channel, state, data, updated_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET
		   id=excluded.id, channel=excluded.channel, state=excluded.state,
		   data=excluded.data, updated_at=excluded.updated_at, expires_at=excluded.expires_at`,
		rec.ChannelAddress, rec.ID, rec.Channel, string(rec.State), string(data),
		rec.UpdatedAt, rec.ExpiresAt,
	)
	return err
}

func (s *SQLite) Delete(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE address = ?`, address)
	return err
}

func (s *SQLite) List(ctx context.Context) ([]*domain.CaptureRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM captures ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.CaptureRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec domain.CaptureRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, err
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func (s *SQLite) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM captures WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("swept expired captures", "count", n)
	}
	return int(n), nil
}

// LogPublish records the outcome of one publication fan-out for auditing.
func (s *SQLite) LogPublish(ctx context.Context, captureID string, results []domain.PublishResult) error {
	for _, r := range results {
		success := 0
		if r.Success {
			success = 1
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO publish_log (capture_id, destination, success, listing_id, error)
			 VALUES (?, ?, ?, ?, ?)`,
			captureID, r.Destination, success, r.ID, r.Error,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
