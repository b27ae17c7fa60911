// Package queue provides the durable offline queue backed by SQLite.
//
// Records are appended unsynced, marked synced after a confirmed remote
// write, and only then eligible for compaction. The queue never deletes an
// unsynced record, so a crash between send and mark cannot lose data.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/perchdata/membank/internal/model"
)

// timeFormat is fixed-width so lexicographic ordering of stored timestamps
// matches chronological ordering (RFC3339Nano trims trailing zeros).
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Queue is the SQLite-backed offline record store.
type Queue struct {
	db      *sql.DB
	path    string
	mu      sync.Mutex
	entropy *rand.Rand
}

// New opens or creates the queue database at the given path.
func New(dbPath string) (*Queue, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	q := &Queue{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := q.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return q, nil
}

func (q *Queue) newID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), q.entropy).String()
}

func (q *Queue) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		payload    TEXT NOT NULL,
		text       TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		synced_at  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_records_unsynced ON records(synced_at) WHERE synced_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(kind, created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := q.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (q *Queue) Close() error { return q.db.Close() }

// Path returns the database file path.
func (q *Queue) Path() string { return q.path }

// EnqueueMemory appends a memory item as an unsynced record.
func (q *Queue) EnqueueMemory(ctx context.Context, item model.MemoryItem) (*model.OfflineRecord, error) {
	rec := model.OfflineRecord{Kind: model.RecordMemory, Memory: &item}
	if err := q.Enqueue(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// EnqueueFeedback appends feedback signals as unsynced records, one per
// signal, in a single transaction.
func (q *Queue) EnqueueFeedback(ctx context.Context, signals []model.FeedbackSignal) error {
	recs := make([]*model.OfflineRecord, len(signals))
	for i := range signals {
		recs[i] = &model.OfflineRecord{Kind: model.RecordFeedback, Feedback: &signals[i]}
	}
	return q.EnqueueBatch(ctx, recs)
}

// Enqueue appends one unsynced record, assigning its id and timestamp.
// Safe to call while a sync pass is in flight; the new record is simply
// picked up by the next pass.
func (q *Queue) Enqueue(ctx context.Context, rec *model.OfflineRecord) error {
	return q.EnqueueBatch(ctx, []*model.OfflineRecord{rec})
}

// EnqueueBatch appends records atomically.
func (q *Queue) EnqueueBatch(ctx context.Context, recs []*model.OfflineRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range recs {
		if rec.ID == "" {
			rec.ID = q.newID()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}

		payload, text, err := encodePayload(rec)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO records (id, kind, payload, text, created_at, synced_at)
			 VALUES (?, ?, ?, ?, ?, NULL)`,
			rec.ID, string(rec.Kind), payload, text, rec.CreatedAt.Format(timeFormat))
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	return tx.Commit()
}

func encodePayload(rec *model.OfflineRecord) (payload, text string, err error) {
	switch rec.Kind {
	case model.RecordMemory:
		if rec.Memory == nil {
			return "", "", fmt.Errorf("memory record without payload")
		}
		b, err := json.Marshal(rec.Memory)
		if err != nil {
			return "", "", fmt.Errorf("encode memory: %w", err)
		}
		return string(b), rec.Memory.Text, nil
	case model.RecordFeedback:
		if rec.Feedback == nil {
			return "", "", fmt.Errorf("feedback record without payload")
		}
		b, err := json.Marshal(rec.Feedback)
		if err != nil {
			return "", "", fmt.Errorf("encode feedback: %w", err)
		}
		return string(b), "", nil
	default:
		return "", "", fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

// Unsynced returns a snapshot of unsynced records of the given kind, oldest
// first, preserving delivery order. An empty kind returns all records.
func (q *Queue) Unsynced(ctx context.Context, kind model.RecordKind) ([]model.OfflineRecord, error) {
	query := `SELECT id, kind, payload, created_at, synced_at FROM records
	          WHERE synced_at IS NULL`
	var args []any
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return q.queryRecords(ctx, query, args...)
}

// All returns every record, oldest first, for inspection.
func (q *Queue) All(ctx context.Context) ([]model.OfflineRecord, error) {
	return q.queryRecords(ctx,
		`SELECT id, kind, payload, created_at, synced_at FROM records
		 ORDER BY created_at ASC, id ASC`)
}

func (q *Queue) queryRecords(ctx context.Context, query string, args ...any) ([]model.OfflineRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.OfflineRecord
	for rows.Next() {
		var (
			rec       model.OfflineRecord
			kind      string
			payload   string
			createdAt string
			syncedAt  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &kind, &payload, &createdAt, &syncedAt); err != nil {
			return nil, err
		}
		rec.Kind = model.RecordKind(kind)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if syncedAt.Valid {
			t, _ := time.Parse(time.RFC3339Nano, syncedAt.String)
			rec.SyncedAt = &t
		}
		if err := decodePayload(&rec, payload); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func decodePayload(rec *model.OfflineRecord, payload string) error {
	switch rec.Kind {
	case model.RecordMemory:
		rec.Memory = &model.MemoryItem{}
		return json.Unmarshal([]byte(payload), rec.Memory)
	case model.RecordFeedback:
		rec.Feedback = &model.FeedbackSignal{}
		return json.Unmarshal([]byte(payload), rec.Feedback)
	default:
		return fmt.Errorf("unknown record kind %q", rec.Kind)
	}
}

// MarkSynced sets synced_at for the given ids. Idempotent: re-marking an
// already-synced id is a no-op.
func (q *Queue) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(timeFormat)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, now)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE records SET synced_at = ? WHERE id IN (%s) AND synced_at IS NULL`, placeholders),
		args...)
	return err
}

// ClearSynced removes synced records, reclaiming space. Synced records are
// never re-read, so this is safe at any time. Returns the removed count.
func (q *Queue) ClearSynced(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM records WHERE synced_at IS NOT NULL`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const lastSyncAttemptKey = "last_sync_attempt"

// RecordSyncAttempt timestamps a sync attempt, regardless of its outcome.
func (q *Queue) RecordSyncAttempt(ctx context.Context) error {
	now := time.Now().UTC().Format(timeFormat)
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastSyncAttemptKey, now)
	return err
}

// LastSyncAttempt returns the most recent sync attempt time, or nil if none
// was ever recorded.
func (q *Queue) LastSyncAttempt(ctx context.Context) (*time.Time, error) {
	var v string
	err := q.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, lastSyncAttemptKey).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
