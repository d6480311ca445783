package client

import "github.com/hylla/pipedesk/internal/domain"

// Outcome classifies how an optimistic action ended.
type Outcome string

// Outcome values.
const (
	OutcomeApplied Outcome = "applied"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
)

// Result reports an Editor action. RevertTo carries the authoritative funnel list after a
// failure; front ends replace their local copy with it.
type Result struct {
	Outcome  Outcome
	Changed  bool
	RevertTo []domain.Funnel
	Err      error
}

// Applied reports whether the action was persisted or was a no-op.
func (r Result) Applied() bool { return r.Outcome == OutcomeApplied }

// BoardResult reports a Board action. RevertTo carries the reloaded entities after a failure.
type BoardResult[E any] struct {
	Outcome  Outcome
	Changed  bool
	RevertTo []E
	Err      error
}

func applied(changed bool) Result {
	return Result{Outcome: OutcomeApplied, Changed: changed}
}

func pending() Result {
	return Result{Outcome: OutcomePending}
}
