// Package model defines the core membank data types.
package model

import "time"

// FactType classifies a memory item for the backend's extraction pipeline.
type FactType string

const (
	FactWorld       FactType = "world"
	FactExperience  FactType = "experience"
	FactOpinion     FactType = "opinion"
	FactObservation FactType = "observation"
)

// ValidFactTypes are the fact types the backend accepts.
var ValidFactTypes = map[FactType]bool{
	FactWorld:       true,
	FactExperience:  true,
	FactOpinion:     true,
	FactObservation: true,
}

// MemoryItem is a unit of content to retain. Immutable once queued.
type MemoryItem struct {
	Text      string    `json:"text"`
	Context   string    `json:"context,omitempty"`
	FactType  FactType  `json:"fact_type,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedbackSignal reports whether a previously recalled memory was useful.
type FeedbackSignal struct {
	FactID     string  `json:"fact_id"`
	SignalType string  `json:"signal_type"`
	SessionID  string  `json:"session_id"`
	Weight     float64 `json:"weight,omitempty"`
}

// Valid signal types, mirroring the backend contract.
var ValidSignalTypes = map[string]bool{
	"used":      true,
	"helpful":   true,
	"unhelpful": true,
	"outdated":  true,
}

// RecordKind distinguishes offline record payloads.
type RecordKind string

const (
	RecordMemory   RecordKind = "memory"
	RecordFeedback RecordKind = "feedback"
)

// OfflineRecord wraps a MemoryItem or FeedbackSignal awaiting delivery.
// Exactly one of Memory/Feedback is set, selected by Kind.
//
// Lifecycle: created unsynced -> SyncedAt set after a confirmed remote
// write -> eligible for compaction. A record with SyncedAt != nil is never
// re-sent, and a record is never deleted before SyncedAt is set.
type OfflineRecord struct {
	ID        string          `json:"id"`
	Kind      RecordKind      `json:"kind"`
	Memory    *MemoryItem     `json:"memory,omitempty"`
	Feedback  *FeedbackSignal `json:"feedback,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	SyncedAt  *time.Time      `json:"synced_at,omitempty"`
}

// SessionContext tracks the single active session of an orchestrator.
type SessionContext struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Active    bool      `json:"active"`
}

// RecalledItem is a ranked search result.
type RecalledItem struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Context  string   `json:"context,omitempty"`
	FactType FactType `json:"fact_type,omitempty"`
	Score    float64  `json:"score"`
	// Source is "backend" for ranked remote results and "offline-queue"
	// for best-effort degraded-mode matches.
	Source string `json:"source"`
}

// Reflection is the backend's reasoning output: derived opinions plus the
// evidence memories it consulted.
type Reflection struct {
	Answer   string         `json:"answer"`
	Opinions []string       `json:"opinions,omitempty"`
	Evidence []RecalledItem `json:"evidence,omitempty"`
}
