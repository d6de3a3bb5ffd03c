// Package catalog keeps a SQLite history of finalized capture sessions.
package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	started INTEGER NOT NULL,
	finalized INTEGER NOT NULL,
	frames INTEGER NOT NULL,
	archive TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS frames (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	idx INTEGER NOT NULL,
	timestamp INTEGER NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	PRIMARY KEY (session_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_sessions_finalized ON sessions(finalized);
`

// Session is one finalized capture session.
type Session struct {
	ID        string    `json:"session_id"`
	Started   time.Time `json:"started"`
	Finalized time.Time `json:"finalized"`
	Frames    int       `json:"frames"`
	Archive   string    `json:"archive,omitempty"`
}

// Frame is one retained frame of a session.
type Frame struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Record is a session with its frames, as written.
type Record struct {
	Session
	FrameList []Frame
}

// Catalog is the SQLite store.
type Catalog struct {
	db      *sql.DB
	breaker *resilience.Breaker
}

// Open opens (creating if needed) the catalog at path. ":memory:" is allowed.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Configuration, "catalog dir")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Configuration, "open catalog")
	}
	// modernc sqlite serialises writers; one connection keeps :memory: shared
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(err, apperrors.Internal, "apply catalog schema")
	}
	return &Catalog{db: db, breaker: resilience.New("catalog", resilience.StoreConfig())}, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// WriteBatch stores records in one transaction. Re-finalizing a session
// replaces its rows.
func (c *Catalog) WriteBatch(ctx context.Context, records []Record) (int, error) {
	return resilience.ExecuteWithResult(c.breaker, func() (int, error) {
		return c.writeBatch(ctx, records)
	})
}

func (c *Catalog) writeBatch(ctx context.Context, records []Record) (int, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.StoreFailed, "begin tx")
	}
	defer tx.Rollback()

	for _, r := range records {
		if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE session_id = ?`, r.ID); err != nil {
			return 0, apperrors.Wrap(err, apperrors.StoreFailed, "clear frames")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO sessions (id, started, finalized, frames, archive) VALUES (?, ?, ?, ?, ?)`,
			r.ID, r.Started.UnixNano(), r.Finalized.UnixNano(), len(r.FrameList), r.Archive)
		if err != nil {
			return 0, apperrors.Wrap(err, apperrors.StoreFailed, "insert session")
		}
		for _, f := range r.FrameList {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO frames (session_id, idx, timestamp, width, height) VALUES (?, ?, ?, ?, ?)`,
				r.ID, f.Index, f.Timestamp.UnixNano(), f.Width, f.Height)
			if err != nil {
				return 0, apperrors.Wrap(err, apperrors.StoreFailed, "insert frame")
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.StoreFailed, "commit")
	}
	return len(records), nil
}

// Sessions lists the most recently finalized sessions first.
func (c *Catalog) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, started, finalized, frames, archive FROM sessions ORDER BY finalized DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "query sessions")
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var started, finalized int64
		if err := rows.Scan(&s.ID, &started, &finalized, &s.Frames, &s.Archive); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "scan session")
		}
		s.Started = time.Unix(0, started).UTC()
		s.Finalized = time.Unix(0, finalized).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Frames lists a session's frames in retention order.
func (c *Catalog) Frames(ctx context.Context, sessionID string) ([]Frame, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT idx, timestamp, width, height FROM frames WHERE session_id = ? ORDER BY idx`, sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "query frames")
	}
	defer rows.Close()

	var out []Frame
	for rows.Next() {
		var f Frame
		var ts int64
		if err := rows.Scan(&f.Index, &ts, &f.Width, &f.Height); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "scan frame")
		}
		f.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
