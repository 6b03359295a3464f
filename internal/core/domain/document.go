package domain

import "time"

type DocumentMetadata struct {
	Author  string `json:"author,omitempty"`
	Version string `json:"version,omitempty"`
}

type Document struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	MimeType    string           `json:"mime_type"`
	StoragePath string           `json:"storage_path,omitempty"`
	Content     string           `json:"-"`
	Metadata    DocumentMetadata `json:"metadata"`
	State       WorkflowState    `json:"state"`
	Category    Category         `json:"category,omitempty"`
	Confidence  float64          `json:"confidence,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type WorkflowState string

const (
	StateReceived    WorkflowState = "received"
	StateCategorized WorkflowState = "categorized"
	StatePlanned     WorkflowState = "planned"
	StateDispatching WorkflowState = "dispatching"
	StateAggregating WorkflowState = "aggregating"
	StateCompleted   WorkflowState = "completed"
	StateEscalated   WorkflowState = "escalated"
	StateFailed      WorkflowState = "failed"
)

var stateRank = map[WorkflowState]int{
	StateReceived:    0,
	StateCategorized: 1,
	StatePlanned:     2,
	StateDispatching: 3,
	StateAggregating: 4,
	StateCompleted:   5,
	StateEscalated:   5,
	StateFailed:      5,
}

func (s WorkflowState) Terminal() bool {
	return s == StateCompleted || s == StateEscalated || s == StateFailed
}

// CanTransition reports whether a document may move from s to next.
// States only move forward; terminal states accept nothing.
func (s WorkflowState) CanTransition(next WorkflowState) bool {
	from, ok := stateRank[s]
	if !ok {
		return false
	}
	to, ok := stateRank[next]
	if !ok || s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	switch s {
	case StateAggregating:
		return next == StateCompleted || next == StateEscalated
	default:
		return to == from+1 && !next.Terminal()
	}
}
