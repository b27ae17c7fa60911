package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/perchdata/membank/internal/model"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := New(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func memItem(text string) model.MemoryItem {
	return model.MemoryItem{Text: text, FactType: model.FactExperience, CreatedAt: time.Now().UTC()}
}

func TestEnqueueAndUnsynced(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	rec, err := q.EnqueueMemory(ctx, memItem("remember this"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if rec.ID == "" {
		t.Error("expected generated id")
	}
	if rec.SyncedAt != nil {
		t.Error("new record must be unsynced")
	}

	recs, err := q.Unsynced(ctx, model.RecordMemory)
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(recs) != 1 || recs[0].Memory.Text != "remember this" {
		t.Fatalf("expected the queued item back, got %+v", recs)
	}
}

func TestUnsyncedPreservesOrder(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for _, text := range []string{"first", "second", "third"} {
		if _, err := q.EnqueueMemory(ctx, memItem(text)); err != nil {
			t.Fatalf("enqueue %s: %v", text, err)
		}
	}

	recs, err := q.Unsynced(ctx, model.RecordMemory)
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if recs[i].Memory.Text != want {
			t.Errorf("position %d: got %q, want %q", i, recs[i].Memory.Text, want)
		}
	}
}

func TestMarkSyncedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	rec, _ := q.EnqueueMemory(ctx, memItem("once"))

	if err := q.MarkSynced(ctx, []string{rec.ID}); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	all, _ := q.All(ctx)
	first := *all[0].SyncedAt

	if err := q.MarkSynced(ctx, []string{rec.ID}); err != nil {
		t.Fatalf("re-mark synced: %v", err)
	}
	all, _ = q.All(ctx)
	if !all[0].SyncedAt.Equal(first) {
		t.Error("re-marking must not change the synced timestamp")
	}
}

func TestSyncedRecordsNeverReappear(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	rec, _ := q.EnqueueMemory(ctx, memItem("deliver me"))
	q.MarkSynced(ctx, []string{rec.ID})

	recs, err := q.Unsynced(ctx, model.RecordMemory)
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("synced record must not appear in unsynced snapshot, got %d", len(recs))
	}
}

func TestEnqueueDuringSyncNotSweptByThatPass(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	q.EnqueueMemory(ctx, memItem("old"))
	snapshot, _ := q.Unsynced(ctx, model.RecordMemory)

	// A new record arrives while the pass is in flight.
	q.EnqueueMemory(ctx, memItem("new arrival"))

	ids := make([]string, len(snapshot))
	for i, r := range snapshot {
		ids[i] = r.ID
	}
	q.MarkSynced(ctx, ids)

	remaining, _ := q.Unsynced(ctx, model.RecordMemory)
	if len(remaining) != 1 || remaining[0].Memory.Text != "new arrival" {
		t.Fatalf("late arrival must stay unsynced for the next pass, got %+v", remaining)
	}
}

func TestClearSynced(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	r1, _ := q.EnqueueMemory(ctx, memItem("keep"))
	r2, _ := q.EnqueueMemory(ctx, memItem("drop"))
	q.MarkSynced(ctx, []string{r2.ID})

	n, err := q.ClearSynced(ctx)
	if err != nil {
		t.Fatalf("clear synced: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}

	all, _ := q.All(ctx)
	if len(all) != 1 || all[0].ID != r1.ID {
		t.Errorf("unsynced record must survive compaction, got %+v", all)
	}
}

func TestFeedbackRecords(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	signals := []model.FeedbackSignal{
		{FactID: "f1", SignalType: "helpful", SessionID: "s1"},
		{FactID: "f2", SignalType: "unhelpful", SessionID: "s1", Weight: 0.5},
	}
	if err := q.EnqueueFeedback(ctx, signals); err != nil {
		t.Fatalf("enqueue feedback: %v", err)
	}

	recs, err := q.Unsynced(ctx, model.RecordFeedback)
	if err != nil {
		t.Fatalf("unsynced: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 feedback records, got %d", len(recs))
	}
	if recs[0].Feedback.FactID != "f1" || recs[1].Feedback.Weight != 0.5 {
		t.Errorf("feedback payloads mangled: %+v", recs)
	}

	// Kind filters are disjoint.
	mems, _ := q.Unsynced(ctx, model.RecordMemory)
	if len(mems) != 0 {
		t.Errorf("feedback must not appear under the memory kind")
	}
}

func TestSyncAttemptTimestamp(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	got, err := q.LastSyncAttempt(ctx)
	if err != nil {
		t.Fatalf("last sync attempt: %v", err)
	}
	if got != nil {
		t.Error("expected no attempt recorded yet")
	}

	if err := q.RecordSyncAttempt(ctx); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	got, err = q.LastSyncAttempt(ctx)
	if err != nil {
		t.Fatalf("last sync attempt: %v", err)
	}
	if got == nil || time.Since(*got) > time.Minute {
		t.Errorf("expected a fresh attempt timestamp, got %v", got)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	r1, _ := q.EnqueueMemory(ctx, memItem("a"))
	q.EnqueueMemory(ctx, memItem("b"))
	q.EnqueueFeedback(ctx, []model.FeedbackSignal{{FactID: "f", SignalType: "used"}})
	q.MarkSynced(ctx, []string{r1.ID})

	st, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalRecords != 3 || st.UnsyncedRecords != 2 || st.SyncedRecords != 1 {
		t.Errorf("unexpected counts: %+v", st)
	}
}

func TestSearchMatchesUnsyncedOnly(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	r1, _ := q.EnqueueMemory(ctx, memItem("the retry policy uses exponential backoff"))
	q.EnqueueMemory(ctx, memItem("unrelated note about lunch"))
	q.MarkSynced(ctx, []string{r1.ID})

	hits, err := q.Search(ctx, SearchParams{Query: "backoff"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("synced records are owned by the backend, expected 0 hits, got %d", len(hits))
	}

	hits, _ = q.Search(ctx, SearchParams{Query: "lunch"})
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Source != "offline-queue" {
		t.Errorf("fallback results must be labeled offline-queue, got %q", hits[0].Source)
	}
}

func TestSearchWildcardsMatchLiterally(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	q.EnqueueMemory(ctx, memItem("coverage target is 100% of packages"))
	q.EnqueueMemory(ctx, memItem("one two three"))

	hits, err := q.Search(ctx, SearchParams{Query: "100%"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Text != "coverage target is 100% of packages" {
		t.Errorf("%% must match only a literal percent, got %+v", hits)
	}

	// Unescaped, _ would match the space in "e t".
	hits, err = q.Search(ctx, SearchParams{Query: "e_t"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("_ must not act as a single-char wildcard, got %+v", hits)
	}
}

func TestSearchFactTypeFilter(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	q.EnqueueMemory(ctx, model.MemoryItem{Text: "prefers tabs", FactType: model.FactOpinion, CreatedAt: time.Now().UTC()})
	q.EnqueueMemory(ctx, model.MemoryItem{Text: "prefers spaces", FactType: model.FactObservation, CreatedAt: time.Now().UTC()})

	hits, err := q.Search(ctx, SearchParams{Query: "prefers", FactType: model.FactOpinion})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Text != "prefers tabs" {
		t.Errorf("expected only the opinion, got %+v", hits)
	}
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for _, text := range []string{"one", "two", "three"} {
		q.EnqueueMemory(ctx, memItem(text))
		time.Sleep(2 * time.Millisecond)
	}

	items, err := q.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].Text != "three" || items[1].Text != "two" {
		t.Errorf("expected newest first, got %+v", items)
	}
}
