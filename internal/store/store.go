// Package store persists pending approvals and session summaries in SQLite.
//
// All confirm/deny operations are conditional writes guarded by id and
// current status, so duplicate requests racing each other affect 0 or 1
// rows and never corrupt a record. Time and ids are injected for
// deterministic TTL testing.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"kiosk-orchestrator-service/internal/clock"
	"kiosk-orchestrator-service/internal/models"

	_ "modernc.org/sqlite"
)

const (
	// ItemTTL bounds how long a pending item waits for staff sign-off.
	ItemTTL = 24 * time.Hour
	// SummaryTTL bounds how long a pending session summary waits.
	SummaryTTL = 7 * 24 * time.Hour

	summarySchemaVersion = 1
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_items (
	id            TEXT PRIMARY KEY,
	personal_name TEXT NOT NULL,
	kind          TEXT NOT NULL,
	value         TEXT NOT NULL,
	source_quote  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at_ms INTEGER NOT NULL,
	expires_at_ms INTEGER
);
CREATE TABLE IF NOT EXISTS pending_session_summaries (
	id             TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	"trigger"      TEXT NOT NULL,
	title          TEXT NOT NULL,
	summary_json   TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	created_at_ms  INTEGER NOT NULL,
	updated_at_ms  INTEGER NOT NULL,
	expires_at_ms  INTEGER
);
`

// Store is the durable pending-approval store.
type Store struct {
	db  *sql.DB
	clk clock.Clock
	ids clock.IDGenerator
	log zerolog.Logger
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string, clk clock.Clock, ids clock.IDGenerator, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{
		db:  db,
		clk: clk,
		ids: ids,
		log: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close releases the database handle. Idempotent.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) nowMs() int64 {
	return s.clk.Now().UnixMilli()
}

// CreatePending stores item as pending with the default 24h TTL and
// returns its id.
func (s *Store) CreatePending(item models.PendingItem) (string, error) {
	id := s.ids.NewID()
	now := s.nowMs()
	expires := now + ItemTTL.Milliseconds()

	_, err := s.db.Exec(
		`INSERT INTO pending_items (id, personal_name, kind, value, source_quote, status, created_at_ms, expires_at_ms)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)`,
		id, item.PersonalName, item.Kind, item.Value, item.SourceQuote, now, expires,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert pending item: %w", err)
	}
	return id, nil
}

// ConfirmItem confirms a pending item: status becomes confirmed, the TTL
// and source quote are cleared. Returns false if no pending row matched.
func (s *Store) ConfirmItem(id string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE pending_items SET status='confirmed', expires_at_ms=NULL, source_quote=''
		 WHERE id=? AND status='pending'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to confirm item: %w", err)
	}
	return oneRow(res)
}

// DenyItem rejects a pending item: the source quote is cleared and a fresh
// TTL is set so housekeeping eventually reaps the rejection record.
func (s *Store) DenyItem(id string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE pending_items SET status='rejected', source_quote='', expires_at_ms=?
		 WHERE id=? AND status='pending'`,
		s.nowMs()+ItemTTL.Milliseconds(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deny item: %w", err)
	}
	return oneRow(res)
}

// ListPendingItems returns pending items oldest first.
func (s *Store) ListPendingItems() ([]models.PendingItem, error) {
	rows, err := s.db.Query(
		`SELECT id, personal_name, kind, value, source_quote, status, created_at_ms, expires_at_ms
		 FROM pending_items WHERE status='pending' ORDER BY created_at_ms`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()

	items := make([]models.PendingItem, 0)
	for rows.Next() {
		var it models.PendingItem
		var expires sql.NullInt64
		if err := rows.Scan(&it.ID, &it.PersonalName, &it.Kind, &it.Value, &it.SourceQuote, &it.Status, &it.CreatedAtMs, &expires); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if expires.Valid {
			v := expires.Int64
			it.ExpiresAtMs = &v
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return items, nil
}

// CountPendingItems returns the number of pending items.
func (s *Store) CountPendingItems() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_items WHERE status='pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending items: %w", err)
	}
	return n, nil
}

// HousekeepExpired deletes items whose TTL has lapsed and returns how many.
func (s *Store) HousekeepExpired() (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM pending_items WHERE expires_at_ms IS NOT NULL AND expires_at_ms <= ?`,
		s.nowMs(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to housekeep items: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("Expired pending items removed")
	}
	return int(n), nil
}

// CreateSessionSummary stores a pending conversation digest with the 7-day
// TTL. A summary value that cannot be serialized is rejected outright.
func (s *Store) CreateSessionSummary(trigger, title string, summary any) (string, error) {
	blob, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("summary_json is not serializable: %w", err)
	}

	id := s.ids.NewID()
	now := s.nowMs()
	expires := now + SummaryTTL.Milliseconds()

	_, err = s.db.Exec(
		`INSERT INTO pending_session_summaries (id, schema_version, "trigger", title, summary_json, status, created_at_ms, updated_at_ms, expires_at_ms)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?)`,
		id, summarySchemaVersion, trigger, title, string(blob), now, now, expires,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert session summary: %w", err)
	}
	return id, nil
}

// ConfirmSessionSummary confirms a pending summary and clears its TTL
// permanently. Returns false if no pending row matched.
func (s *Store) ConfirmSessionSummary(id string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE pending_session_summaries SET status='confirmed', expires_at_ms=NULL, updated_at_ms=?
		 WHERE id=? AND status='pending'`,
		s.nowMs(), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to confirm session summary: %w", err)
	}
	return oneRow(res)
}

// DenySessionSummary hard-deletes a pending summary.
func (s *Store) DenySessionSummary(id string) (bool, error) {
	res, err := s.db.Exec(
		`DELETE FROM pending_session_summaries WHERE id=? AND status='pending'`, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deny session summary: %w", err)
	}
	return oneRow(res)
}

// ListPendingSessionSummaries returns pending summaries oldest first. The
// summary blob is always read back through the fixed redacted shape; a
// malformed blob normalizes to the empty shape instead of failing the read.
func (s *Store) ListPendingSessionSummaries() ([]models.PendingSessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT id, schema_version, "trigger", title, summary_json, status, created_at_ms, updated_at_ms, expires_at_ms
		 FROM pending_session_summaries WHERE status='pending' ORDER BY created_at_ms`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query session summaries: %w", err)
	}
	defer rows.Close()

	out := make([]models.PendingSessionSummary, 0)
	for rows.Next() {
		var rec models.PendingSessionSummary
		var blob string
		var expires sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.SchemaVersion, &rec.Trigger, &rec.Title, &blob, &rec.Status, &rec.CreatedAtMs, &rec.UpdatedAtMs, &expires); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if expires.Valid {
			v := expires.Int64
			rec.ExpiresAtMs = &v
		}
		rec.Summary = redactSummary(blob)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// CountPendingSessionSummaries returns the number of pending summaries.
func (s *Store) CountPendingSessionSummaries() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_session_summaries WHERE status='pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count session summaries: %w", err)
	}
	return n, nil
}

// HousekeepExpiredSessionSummaries deletes summaries whose TTL has lapsed.
func (s *Store) HousekeepExpiredSessionSummaries() (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM pending_session_summaries WHERE expires_at_ms IS NOT NULL AND expires_at_ms <= ?`,
		s.nowMs(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to housekeep session summaries: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("Expired session summaries removed")
	}
	return int(n), nil
}

// redactSummary parses a stored blob into the fixed payload shape,
// dropping any embedded fields the shape does not name.
func redactSummary(blob string) models.SummaryPayload {
	var p models.SummaryPayload
	if err := json.Unmarshal([]byte(blob), &p); err != nil {
		return models.EmptySummaryPayload()
	}
	if p.Topics == nil {
		p.Topics = []string{}
	}
	if p.StaffNotes == nil {
		p.StaffNotes = []string{}
	}
	return p
}

func oneRow(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}
