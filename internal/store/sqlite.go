package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS funnels (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'draft',
    definition TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_funnels_state ON funnels(state);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    funnel_id TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'active',
    score INTEGER NOT NULL DEFAULT 0,
    device TEXT,
    source TEXT,
    data TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    last_activity_at INTEGER NOT NULL,
    completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_sessions_funnel ON sessions(funnel_id);
CREATE INDEX IF NOT EXISTS idx_sessions_activity ON sessions(status, last_activity_at);

CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    funnel_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    contact TEXT NOT NULL,
    answers TEXT NOT NULL,
    score INTEGER NOT NULL DEFAULT 0,
    completion_seconds INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_submissions_funnel ON submissions(funnel_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_session ON submissions(funnel_id, session_id);

CREATE TABLE IF NOT EXISTS variant_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    funnel_id TEXT NOT NULL,
    step_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    session_id TEXT NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_variant_events_step ON variant_events(funnel_id, step_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_variant_events_dedup ON variant_events(funnel_id, step_id, variant_id, event_type, session_id);
`

// Open opens (or creates) the database at dbPath. Pragmas go in the DSN so
// every pooled connection gets WAL mode and the busy timeout.
func Open(dbPath string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	dsn := dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// SaveFunnel inserts a definition or replaces an existing one, keeping its state.
func (s *SQLiteStore) SaveFunnel(ctx context.Context, f *funnel.Funnel) (*FunnelRecord, error) {
	if f.ID == "" {
		return nil, errors.New("funnel id is required")
	}
	def, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal funnel: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO funnels (id, name, state, definition, created_at, updated_at)
		 VALUES (?, ?, 'draft', ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, definition = excluded.definition, updated_at = excluded.updated_at`,
		f.ID, f.Name, string(def), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save funnel: %w", err)
	}

	return s.GetFunnel(ctx, f.ID)
}

const funnelColumns = `id, name, state, definition, created_at, updated_at`

func scanFunnel(row interface{ Scan(...any) error }) (*FunnelRecord, error) {
	var rec FunnelRecord
	var def string
	var createdAt, updatedAt int64

	if err := row.Scan(&rec.ID, &rec.Name, &rec.State, &def, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	f, err := funnel.Parse([]byte(def))
	if err != nil {
		return nil, fmt.Errorf("failed to decode funnel %s: %w", rec.ID, err)
	}
	rec.Definition = f
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return &rec, nil
}

func (s *SQLiteStore) GetFunnel(ctx context.Context, id string) (*FunnelRecord, error) {
	rec, err := scanFunnel(s.db.QueryRowContext(ctx,
		`SELECT `+funnelColumns+` FROM funnels WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get funnel: %w", err)
	}
	return rec, nil
}

// GetPublishedFunnel returns ErrNotFound for drafts as well as missing funnels.
func (s *SQLiteStore) GetPublishedFunnel(ctx context.Context, id string) (*FunnelRecord, error) {
	rec, err := s.GetFunnel(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.State != StatePublished {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *SQLiteStore) ListFunnels(ctx context.Context) ([]*FunnelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+funnelColumns+` FROM funnels ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list funnels: %w", err)
	}
	defer rows.Close()

	var funnels []*FunnelRecord
	for rows.Next() {
		rec, err := scanFunnel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan funnel: %w", err)
		}
		funnels = append(funnels, rec)
	}
	return funnels, rows.Err()
}

func (s *SQLiteStore) SetFunnelState(ctx context.Context, id string, state FunnelState) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE funnels SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update funnel state: %w", err)
	}
	return requireRow(result)
}

func (s *SQLiteStore) DeleteFunnel(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"variant_events", "submissions", "sessions"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE funnel_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM funnels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete funnel: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertSession writes the full session document. The indexed columns mirror
// the fields the reaper and aggregate queries filter on.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" || sess.FunnelID == "" {
		return errors.New("session id and funnel id are required")
	}
	if sess.Status == "" {
		sess.Status = SessionActive
	}
	if sess.LastActivityAt.IsZero() {
		sess.LastActivityAt = sess.StartedAt
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var completedAt sql.NullInt64
	if sess.CompletedAt != nil {
		completedAt = sql.NullInt64{Int64: sess.CompletedAt.Unix(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, funnel_id, status, score, device, source, data, started_at, last_activity_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   score = excluded.score,
		   data = excluded.data,
		   last_activity_at = excluded.last_activity_at,
		   completed_at = excluded.completed_at`,
		sess.ID, sess.FunnelID, string(sess.Status), sess.Score, sess.Device, sess.Source, string(data),
		sess.StartedAt.Unix(), sess.LastActivityAt.Unix(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

const sessionColumns = `data, status`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var data, status string
	if err := row.Scan(&data, &status); err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	// The reaper only touches the column.
	sess.Status = SessionStatus(status)
	return &sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, funnelID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE funnel_id = ? ORDER BY started_at DESC, id`,
		funnelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// MarkAbandoned flags active sessions whose last activity is older than
// idleSince and returns how many were flagged.
func (s *SQLiteStore) MarkAbandoned(ctx context.Context, idleSince time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE status = ? AND last_activity_at < ?`,
		string(SessionAbandoned), string(SessionActive), idleSince.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark abandoned sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// RecordSubmission stores one submission per session; repeats are ignored.
func (s *SQLiteStore) RecordSubmission(ctx context.Context, sub *Submission) error {
	if sub.FunnelID == "" || sub.SessionID == "" {
		return errors.New("submission needs funnel id and session id")
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	contact, err := json.Marshal(sub.Contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}
	answers, err := json.Marshal(sub.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO submissions (id, funnel_id, session_id, contact, answers, score, completion_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.FunnelID, sub.SessionID, string(contact), string(answers),
		sub.Score, sub.CompletionTimeSeconds, sub.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSubmissions(ctx context.Context, funnelID string) ([]*Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, funnel_id, session_id, contact, answers, score, completion_seconds, created_at
		 FROM submissions WHERE funnel_id = ? ORDER BY created_at DESC, id`,
		funnelID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		var sub Submission
		var contact, answers string
		var createdAt int64
		if err := rows.Scan(&sub.ID, &sub.FunnelID, &sub.SessionID, &contact, &answers,
			&sub.Score, &sub.CompletionTimeSeconds, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		if err := json.Unmarshal([]byte(contact), &sub.Contact); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contact: %w", err)
		}
		if err := json.Unmarshal([]byte(answers), &sub.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
		sub.CreatedAt = time.Unix(createdAt, 0)
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// RecordVariantEvent appends to the variant log. A session counts at most
// once per (step, variant, event type).
func (s *SQLiteStore) RecordVariantEvent(ctx context.Context, ev VariantEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO variant_events (funnel_id, step_id, variant_id, event_type, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ev.FunnelID, ev.StepID, ev.VariantID, string(ev.EventType), ev.SessionID, ev.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record variant event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVariantStats(ctx context.Context, funnelID, stepID string) ([]VariantStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant_id,
			COUNT(DISTINCT CASE WHEN event_type = 'view' THEN session_id END) AS views,
			COUNT(DISTINCT CASE WHEN event_type = 'convert' THEN session_id END) AS conversions
		FROM variant_events
		WHERE funnel_id = ? AND step_id = ?
		GROUP BY variant_id
		ORDER BY variant_id
	`, funnelID, stepID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant stats: %w", err)
	}
	defer rows.Close()

	var stats []VariantStats
	for rows.Next() {
		var vs VariantStats
		if err := rows.Scan(&vs.VariantID, &vs.Views, &vs.Conversions); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, vs)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) GetFunnelStats(ctx context.Context, funnelID string) (*FunnelStats, error) {
	var fs FunnelStats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'abandoned' THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN status = 'completed' THEN score END)
		FROM sessions WHERE funnel_id = ?
	`, funnelID).Scan(&fs.Sessions, &fs.Active, &fs.Completed, &fs.Abandoned, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to get funnel stats: %w", err)
	}
	fs.AvgScore = avg.Float64

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions WHERE funnel_id = ?`, funnelID,
	).Scan(&fs.Submissions); err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	return &fs, nil
}

// CountByStatus returns session counts per funnel and status, for metrics.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[string]map[SessionStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT funnel_id, status, COUNT(*) FROM sessions GROUP BY funnel_id, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]map[SessionStatus]int)
	for rows.Next() {
		var funnelID string
		var status SessionStatus
		var n int
		if err := rows.Scan(&funnelID, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan session count: %w", err)
		}
		if counts[funnelID] == nil {
			counts[funnelID] = make(map[SessionStatus]int)
		}
		counts[funnelID][status] = n
	}
	return counts, rows.Err()
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
