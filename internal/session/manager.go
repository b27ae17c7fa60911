// Package session implements the orchestrator: the online/degraded state
// machine that routes every memory operation to the backend or the offline
// queue and reconciles the queue when connectivity returns.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/perchdata/membank/internal/backend"
	"github.com/perchdata/membank/internal/config"
	"github.com/perchdata/membank/internal/filter"
	"github.com/perchdata/membank/internal/model"
	"github.com/perchdata/membank/internal/queue"
	"github.com/perchdata/membank/internal/retry"
)

// State is the orchestrator's connectivity state.
type State int

const (
	Online State = iota
	Degraded
)

func (s State) String() string {
	if s == Degraded {
		return "degraded"
	}
	return "online"
}

// ErrRequiresConnection marks operations that have no local equivalent and
// cannot run while degraded. Distinct from "succeeded with no results".
var ErrRequiresConnection = errors.New("operation requires a backend connection")

// ErrSessionActive is returned when a session is started while another is
// still active.
var ErrSessionActive = errors.New("a session is already active")

// errQueueWrite marks a local queue failure. Session-end reports these via
// the event channel instead of aborting; explicit operations return them.
var errQueueWrite = errors.New("offline queue write failed")

// Backend is the narrow contract the orchestrator consumes from the remote
// memory service.
type Backend interface {
	Health(ctx context.Context) (string, error)
	EnsureBank(ctx context.Context) error
	Retain(ctx context.Context, items []model.MemoryItem) (int, error)
	Recall(ctx context.Context, query string, opts backend.RecallOptions) ([]model.RecalledItem, error)
	Reflect(ctx context.Context, query string) (*model.Reflection, error)
	Signal(ctx context.Context, signals []model.FeedbackSignal) error
	Bank() string
}

// Manager is the session orchestrator. It is designed for single-goroutine
// use: callers must not run two session-ending operations concurrently on
// the same instance. The queue it owns tolerates concurrent enqueues.
type Manager struct {
	cfg     config.Config
	backend Backend
	queue   *queue.Queue
	retry   retry.Options
	log     *slog.Logger

	state   State
	current *model.SessionContext
	events  chan Event
}

// NewManager creates an orchestrator. It performs no I/O; call Startup to
// run the mandatory health probe.
func NewManager(cfg config.Config, b Backend, q *queue.Queue, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	opts := retry.FromConfig(cfg.Retry)
	m := &Manager{
		cfg:     cfg,
		backend: b,
		queue:   q,
		retry:   opts,
		log:     log,
		state:   Online,
		events:  make(chan Event, 16),
	}
	m.retry.OnRetry = func(err error, attempt int, delay time.Duration) {
		log.Debug("retrying backend call", "attempt", attempt, "delay", delay, "error", err)
	}
	return m
}

// IsDegraded reports whether the orchestrator is in degraded mode. Read at
// call time by every operation, never cached.
func (m *Manager) IsDegraded() bool { return m.state == Degraded }

// State returns the current connectivity state.
func (m *Manager) State() State { return m.state }

// Queue exposes the offline queue for inspection and CLI reporting only.
// Callers must not mutate it directly.
func (m *Manager) Queue() *queue.Queue { return m.queue }

// Startup runs the mandatory startup health probe. A timeout here counts
// the same as a connection failure: the orchestrator begins degraded.
func (m *Manager) Startup(ctx context.Context) {
	if _, err := m.backend.Health(ctx); err != nil {
		switch backend.KindOf(err) {
		case backend.KindUnavailable, backend.KindTimeout:
			m.markDegraded("startup health probe failed", err)
		default:
			m.log.Warn("startup health probe error", "error", err)
		}
	}
}

// markDegraded flips Online -> Degraded, emitting the degradation event
// exactly once per transition.
func (m *Manager) markDegraded(reason string, err error) {
	if m.state == Degraded {
		return
	}
	m.state = Degraded
	m.log.Warn("backend unavailable, entering degraded mode", "reason", reason, "error", err)
	m.emit(EventDegraded, reason, err)
}

// markOnline flips Degraded -> Online.
func (m *Manager) markOnline() {
	if m.state == Online {
		return
	}
	m.state = Online
	m.log.Info("backend reachable, back online")
	m.emit(EventRecovered, "health probe succeeded", nil)
}

// StartResult is returned by OnSessionStart.
type StartResult struct {
	SessionID string               `json:"session_id"`
	Degraded  bool                 `json:"degraded"`
	Recent    []model.RecalledItem `json:"recent,omitempty"`
}

// OnSessionStart establishes the session context and returns recent
// activity from whichever store is authoritative for the current state.
// Starting a session while one is active is a contract violation.
func (m *Manager) OnSessionStart(ctx context.Context) (*StartResult, error) {
	if m.current != nil && m.current.Active {
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, m.current.SessionID)
	}

	m.current = &model.SessionContext{
		SessionID: uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Active:    true,
	}
	m.log.Info("session started", "session", m.current.SessionID, "state", m.state)

	res := &StartResult{SessionID: m.current.SessionID, Degraded: m.IsDegraded()}
	res.Recent = m.recentContext(ctx)
	return res, nil
}

// recentContext pulls a small amount of recent activity. Failures here are
// logged, never fatal: context injection is best effort.
func (m *Manager) recentContext(ctx context.Context) []model.RecalledItem {
	if m.state == Online {
		items, err := retry.Do(ctx, m.retry, func(ctx context.Context) ([]model.RecalledItem, error) {
			return m.backend.Recall(ctx, "", backend.RecallOptions{Limit: 5})
		})
		if err == nil {
			return items
		}
		if backend.KindOf(err) == backend.KindUnavailable {
			m.markDegraded("recall failed", err)
		} else {
			m.log.Warn("recent context unavailable", "error", err)
			return nil
		}
	}

	recent, err := m.queue.Recent(ctx, 5)
	if err != nil {
		m.emit(EventQueueError, "read recent queue items", err)
		return nil
	}
	items := make([]model.RecalledItem, 0, len(recent))
	for _, it := range recent {
		items = append(items, model.RecalledItem{
			Text:     it.Text,
			Context:  it.Context,
			FactType: it.FactType,
			Source:   "offline-queue",
		})
	}
	return items
}

// EndResult is returned by OnSessionEnd.
type EndResult struct {
	SessionID  string `json:"session_id"`
	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
	Stored     int    `json:"stored"`
	Queued     bool   `json:"queued"`
	FilteredLn int    `json:"filtered_length"`
}

// OnSessionEnd filters the transcript, applies the skip heuristic, and
// stores what remains. The active session context is always cleared on
// exit, even when storage fails, so a broken session cannot block the next
// one.
func (m *Manager) OnSessionEnd(ctx context.Context, transcript, sessionID string) (*EndResult, error) {
	defer func() {
		if m.current != nil {
			m.current.Active = false
		}
		m.current = nil
	}()

	if sessionID == "" {
		if m.current != nil {
			sessionID = m.current.SessionID
		} else {
			sessionID = uuid.NewString()
		}
	}
	res := &EndResult{SessionID: sessionID}

	filtered := filter.Filter(transcript, filter.Options{
		MaxCodeBlockLines: m.cfg.Filter.MaxCodeBlockLines,
		MaxLineLength:     m.cfg.Filter.MaxLineLength,
	})
	res.FilteredLn = len(filtered)

	skip := filter.ShouldSkip(filtered, filter.SkipOptions{
		MinSessionLength:  m.cfg.Filter.MinSessionLength,
		SkipNoisySessions: m.cfg.Filter.SkipNoisySessions,
	})
	if skip.Skip {
		res.Skipped = true
		res.SkipReason = skip.Reason
		m.log.Info("session skipped", "session", sessionID, "reason", skip.Reason)
		m.emit(EventSessionSkipped, skip.Reason, nil)
		return res, nil
	}

	// Transport concern: cap what goes over the wire, after quality checks.
	if max := m.cfg.Filter.MaxTranscriptLength; max > 0 && len(filtered) > max {
		filtered = filtered[:max] + "\n... [transcript truncated]"
	}

	item := model.MemoryItem{
		Text:      filtered,
		Context:   "session " + sessionID,
		FactType:  model.FactExperience,
		CreatedAt: time.Now().UTC(),
	}

	stored, queued, err := m.storeItem(ctx, item)
	res.Stored = stored
	res.Queued = queued
	if errors.Is(err, errQueueWrite) {
		// Already on the event channel; a local disk failure must not
		// abort the session-end flow.
		m.log.Warn("transcript not stored", "session", sessionID, "error", err)
		return res, nil
	}
	return res, err
}

// Retain stores content explicitly, outside the session-end flow.
func (m *Manager) Retain(ctx context.Context, text, contextNote string, factType model.FactType) (*EndResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &backend.Error{Kind: backend.KindValidation, Op: "retain", Message: "content is empty"}
	}
	if factType != "" && !model.ValidFactTypes[factType] {
		return nil, &backend.Error{Kind: backend.KindValidation, Op: "retain", Message: "invalid fact type " + string(factType)}
	}

	item := model.MemoryItem{
		Text:      text,
		Context:   contextNote,
		FactType:  factType,
		CreatedAt: time.Now().UTC(),
	}
	stored, queued, err := m.storeItem(ctx, item)
	return &EndResult{Stored: stored, Queued: queued}, err
}

// storeItem routes one memory item by current state. An online call that
// fails as unavailable degrades the orchestrator and falls through to the
// queue, so the triggering item is never lost.
func (m *Manager) storeItem(ctx context.Context, item model.MemoryItem) (stored int, queued bool, err error) {
	if m.state == Online {
		n, err := retry.Do(ctx, m.retry, func(ctx context.Context) (int, error) {
			return m.backend.Retain(ctx, []model.MemoryItem{item})
		})
		if err == nil {
			m.log.Info("memory retained", "count", n)
			return n, false, nil
		}
		if backend.KindOf(err) != backend.KindUnavailable {
			return 0, false, err
		}
		m.markDegraded("retain failed", err)
	}

	if _, qerr := m.queue.EnqueueMemory(ctx, item); qerr != nil {
		m.emit(EventQueueError, "enqueue memory", qerr)
		return 0, false, fmt.Errorf("%w: %v", errQueueWrite, qerr)
	}
	m.log.Info("memory queued for later sync")
	return 0, true, nil
}

// Recall searches memories: backend ranking while online, best-effort queue
// scan while degraded.
func (m *Manager) Recall(ctx context.Context, query string, opts backend.RecallOptions) ([]model.RecalledItem, error) {
	if m.state == Online {
		items, err := retry.Do(ctx, m.retry, func(ctx context.Context) ([]model.RecalledItem, error) {
			return m.backend.Recall(ctx, query, opts)
		})
		if err == nil {
			return items, nil
		}
		if backend.KindOf(err) != backend.KindUnavailable {
			return nil, err
		}
		m.markDegraded("recall failed", err)
	}

	return m.queue.Search(ctx, queue.SearchParams{
		Query:    query,
		FactType: opts.FactType,
		Limit:    opts.Limit,
	})
}

// Reflect runs backend reasoning. There is no local equivalent, so while
// degraded it fails fast with ErrRequiresConnection.
func (m *Manager) Reflect(ctx context.Context, query string) (*model.Reflection, error) {
	if m.state == Degraded {
		return nil, ErrRequiresConnection
	}

	refl, err := retry.Do(ctx, m.retry, func(ctx context.Context) (*model.Reflection, error) {
		return m.backend.Reflect(ctx, query)
	})
	if err != nil {
		if backend.KindOf(err) == backend.KindUnavailable {
			m.markDegraded("reflect failed", err)
			return nil, fmt.Errorf("%w: %v", ErrRequiresConnection, err)
		}
		return nil, err
	}
	return refl, nil
}

// Signal delivers feedback signals as one batch, queueing them while
// degraded.
func (m *Manager) Signal(ctx context.Context, signals []model.FeedbackSignal) (queued bool, err error) {
	for _, s := range signals {
		if s.FactID == "" || !model.ValidSignalTypes[s.SignalType] {
			return false, &backend.Error{Kind: backend.KindValidation, Op: "signal",
				Message: fmt.Sprintf("invalid signal %q for fact %q", s.SignalType, s.FactID)}
		}
	}

	if m.state == Online {
		err := retry.Run(ctx, m.retry, func(ctx context.Context) error {
			return m.backend.Signal(ctx, signals)
		})
		if err == nil {
			return false, nil
		}
		if backend.KindOf(err) != backend.KindUnavailable {
			return false, err
		}
		m.markDegraded("signal failed", err)
	}

	if qerr := m.queue.EnqueueFeedback(ctx, signals); qerr != nil {
		m.emit(EventQueueError, "enqueue feedback", qerr)
		return false, fmt.Errorf("enqueue feedback: %w", qerr)
	}
	return true, nil
}
