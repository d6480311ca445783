package domain

import "time"

// ChangeOperation describes a persisted activity operation.
type ChangeOperation string

// ChangeOperation values used by the activity ledger.
const (
	ChangeOperationCreate   ChangeOperation = "create"
	ChangeOperationUpdate   ChangeOperation = "update"
	ChangeOperationMove     ChangeOperation = "move"
	ChangeOperationReorder  ChangeOperation = "reorder"
	ChangeOperationUnassign ChangeOperation = "unassign"
	ChangeOperationDelete   ChangeOperation = "delete"
)

// EntityType names the kind of record a change event refers to.
type EntityType string

// EntityType values.
const (
	EntityFunnel     EntityType = "funnel"
	EntityStage      EntityType = "stage"
	EntityProject    EntityType = "project"
	EntitySubProject EntityType = "subproject"
	EntityComment    EntityType = "comment"
)

// ChangeEvent is one activity-log entry.
type ChangeEvent struct {
	ID         int64
	EntityType EntityType
	EntityID   string
	FunnelID   string
	Operation  ChangeOperation
	ActorID    string
	Metadata   map[string]string
	OccurredAt time.Time
}

// BoardEvent is published to live subscribers after a committed mutation.
type BoardEvent struct {
	Scope      FunnelScope     `json:"scope"`
	FunnelID   string          `json:"funnel_id,omitempty"`
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  ChangeOperation `json:"operation"`
	ActorID    string          `json:"actor_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
