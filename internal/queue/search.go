package queue

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/perchdata/membank/internal/model"
)

// likeEscaper neutralizes LIKE wildcards so user queries match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchParams narrows a fallback search over queued memory items.
type SearchParams struct {
	Query    string
	FactType model.FactType
	Limit    int
}

// Search performs a best-effort substring search over unsynced memory
// items for degraded-mode recall. Results rank by recency decay plus a
// small bonus for matches in the context field, and are labeled as
// offline-sourced so callers can tell them apart from backend ranking.
func (q *Queue) Search(ctx context.Context, p SearchParams) ([]model.RecalledItem, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 10
	}

	like := "%" + likeEscaper.Replace(p.Query) + "%"
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, payload, created_at FROM records
		 WHERE kind = ? AND synced_at IS NULL
		   AND (text LIKE ? ESCAPE '\' OR payload LIKE ? ESCAPE '\')
		 ORDER BY created_at DESC LIMIT 200`,
		string(model.RecordMemory), like, like)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var results []model.RecalledItem
	for rows.Next() {
		var id, payload, createdAt string
		if err := rows.Scan(&id, &payload, &createdAt); err != nil {
			return nil, err
		}

		rec := model.OfflineRecord{ID: id, Kind: model.RecordMemory}
		if err := decodePayload(&rec, payload); err != nil {
			return nil, err
		}
		if p.FactType != "" && rec.Memory.FactType != p.FactType {
			continue
		}

		created, _ := time.Parse(time.RFC3339Nano, createdAt)

		// Recency: exponential decay, half-life of roughly a week.
		age := now.Sub(created).Hours() / 24.0
		score := math.Exp(-0.1 * age)
		if p.Query != "" && strings.Contains(strings.ToLower(rec.Memory.Context), strings.ToLower(p.Query)) {
			score += 0.2
		}

		results = append(results, model.RecalledItem{
			ID:       id,
			Text:     rec.Memory.Text,
			Context:  rec.Memory.Context,
			FactType: rec.Memory.FactType,
			Score:    math.Round(score*100) / 100,
			Source:   "offline-queue",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Recent returns the newest unsynced memory items, newest first, for
// session-start context while degraded.
func (q *Queue) Recent(ctx context.Context, limit int) ([]model.MemoryItem, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT payload FROM records
		 WHERE kind = ? AND synced_at IS NULL
		 ORDER BY created_at DESC LIMIT ?`,
		string(model.RecordMemory), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.MemoryItem
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		rec := model.OfflineRecord{Kind: model.RecordMemory}
		if err := decodePayload(&rec, payload); err != nil {
			return nil, err
		}
		items = append(items, *rec.Memory)
	}
	return items, rows.Err()
}
