package queue

import (
	"context"
	"os"
	"time"
)

// Stats holds queue statistics for CLI reporting.
type Stats struct {
	DBPath          string     `json:"db_path"`
	DBSizeBytes     int64      `json:"db_size_bytes"`
	TotalRecords    int        `json:"total_records"`
	UnsyncedRecords int        `json:"unsynced_records"`
	SyncedRecords   int        `json:"synced_records"`
	UnsyncedByKind  []KindStat `json:"unsynced_by_kind,omitempty"`
	LastSyncAttempt *time.Time `json:"last_sync_attempt,omitempty"`
}

// KindStat holds per-kind unsynced counts.
type KindStat struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
}

// Stats returns queue statistics.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: q.path}

	if info, err := os.Stat(q.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&st.TotalRecords)
	q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE synced_at IS NULL`).Scan(&st.UnsyncedRecords)
	st.SyncedRecords = st.TotalRecords - st.UnsyncedRecords

	rows, err := q.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) as cnt
		FROM records WHERE synced_at IS NULL
		GROUP BY kind ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ks KindStat
		rows.Scan(&ks.Kind, &ks.Count)
		st.UnsyncedByKind = append(st.UnsyncedByKind, ks)
	}

	st.LastSyncAttempt, _ = q.LastSyncAttempt(ctx)

	return st, nil
}
