package session

import (
	"context"
	"fmt"

	"github.com/perchdata/membank/internal/backend"
	"github.com/perchdata/membank/internal/model"
	"github.com/perchdata/membank/internal/retry"
)

// SyncResult reports the outcome of a recovery attempt.
type SyncResult struct {
	Recovered      bool `json:"recovered"`
	MemoriesSynced int  `json:"memories_synced"`
	SignalsSynced  int  `json:"signals_synced"`
	Remaining      int  `json:"remaining"`
}

// AttemptRecovery re-probes backend health and, on success, re-ensures the
// bank exists and drains the offline queue: memory items first, then
// feedback signals. Safe to invoke repeatedly; records leave the queue only
// after a confirmed MarkSynced, so double delivery cannot happen.
func (m *Manager) AttemptRecovery(ctx context.Context) (*SyncResult, error) {
	res := &SyncResult{}

	if err := m.queue.RecordSyncAttempt(ctx); err != nil {
		m.emit(EventQueueError, "record sync attempt", err)
	}

	if _, err := m.backend.Health(ctx); err != nil {
		switch backend.KindOf(err) {
		case backend.KindUnavailable, backend.KindTimeout:
			m.markDegraded("health probe failed", err)
		}
		res.Remaining = m.unsyncedCount(ctx)
		return res, fmt.Errorf("health probe: %w", err)
	}

	m.markOnline()
	res.Recovered = true

	if err := retry.Run(ctx, m.retry, func(ctx context.Context) error {
		return m.backend.EnsureBank(ctx)
	}); err != nil {
		if backend.KindOf(err) == backend.KindUnavailable {
			m.markDegraded("ensure bank failed", err)
		}
		res.Remaining = m.unsyncedCount(ctx)
		return res, fmt.Errorf("ensure bank %q: %w", m.backend.Bank(), err)
	}

	n, err := m.drainMemories(ctx)
	res.MemoriesSynced = n
	if err != nil {
		res.Remaining = m.unsyncedCount(ctx)
		return res, err
	}

	n, err = m.drainFeedback(ctx)
	res.SignalsSynced = n
	res.Remaining = m.unsyncedCount(ctx)
	if err != nil {
		return res, err
	}

	m.log.Info("offline queue drained",
		"memories", res.MemoriesSynced, "signals", res.SignalsSynced)
	return res, nil
}

// drainMemories delivers queued memory items one at a time, oldest first,
// marking each synced only after the backend confirms it. A failed delivery
// stops the pass so a persistently failing record is never silently
// bypassed by later ones.
func (m *Manager) drainMemories(ctx context.Context) (int, error) {
	recs, err := m.queue.Unsynced(ctx, model.RecordMemory)
	if err != nil {
		m.emit(EventQueueError, "read unsynced memories", err)
		return 0, fmt.Errorf("read unsynced memories: %w", err)
	}

	synced := 0
	for _, rec := range recs {
		_, err := retry.Do(ctx, m.retry, func(ctx context.Context) (int, error) {
			return m.backend.Retain(ctx, []model.MemoryItem{*rec.Memory})
		})
		if err != nil {
			if backend.KindOf(err) == backend.KindUnavailable {
				m.markDegraded("drain delivery failed", err)
			}
			return synced, fmt.Errorf("deliver record %s: %w", rec.ID, err)
		}
		if err := m.queue.MarkSynced(ctx, []string{rec.ID}); err != nil {
			m.emit(EventQueueError, "mark synced", err)
			return synced, fmt.Errorf("mark record %s synced: %w", rec.ID, err)
		}
		synced++
	}
	return synced, nil
}

// drainFeedback delivers queued feedback as a single batched request: the
// batch is confirmed or fails as a whole, so partial-batch ambiguity never
// arises.
func (m *Manager) drainFeedback(ctx context.Context) (int, error) {
	recs, err := m.queue.Unsynced(ctx, model.RecordFeedback)
	if err != nil {
		m.emit(EventQueueError, "read unsynced feedback", err)
		return 0, fmt.Errorf("read unsynced feedback: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	signals := make([]model.FeedbackSignal, len(recs))
	ids := make([]string, len(recs))
	for i, rec := range recs {
		signals[i] = *rec.Feedback
		ids[i] = rec.ID
	}

	if err := retry.Run(ctx, m.retry, func(ctx context.Context) error {
		return m.backend.Signal(ctx, signals)
	}); err != nil {
		if backend.KindOf(err) == backend.KindUnavailable {
			m.markDegraded("drain delivery failed", err)
		}
		return 0, fmt.Errorf("deliver %d signals: %w", len(signals), err)
	}

	if err := m.queue.MarkSynced(ctx, ids); err != nil {
		m.emit(EventQueueError, "mark synced", err)
		return 0, fmt.Errorf("mark signals synced: %w", err)
	}
	return len(ids), nil
}

func (m *Manager) unsyncedCount(ctx context.Context) int {
	recs, err := m.queue.Unsynced(ctx, "")
	if err != nil {
		return 0
	}
	return len(recs)
}
