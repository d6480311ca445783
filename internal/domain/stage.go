package domain

import (
	"strings"
	"time"
)

// Stage is one step of a funnel. Order is dense and 1-based within its funnel.
type Stage struct {
	ID        string
	FunnelID  string
	Name      string
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStage constructs a stage.
func NewStage(id, funnelID, name string, order int, now time.Time) (Stage, error) {
	id = strings.TrimSpace(id)
	funnelID = strings.TrimSpace(funnelID)
	name = strings.TrimSpace(name)
	if id == "" || funnelID == "" {
		return Stage{}, ErrInvalidID
	}
	if name == "" {
		return Stage{}, ErrInvalidName
	}
	if order < 1 {
		return Stage{}, ErrInvalidOrder
	}
	return Stage{
		ID:        id,
		FunnelID:  funnelID,
		Name:      name,
		Order:     order,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Rename renames the stage.
func (s *Stage) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	s.Name = name
	s.UpdatedAt = now.UTC()
	return nil
}

// SetOrder sets the stage order.
func (s *Stage) SetOrder(order int, now time.Time) error {
	if order < 1 {
		return ErrInvalidOrder
	}
	s.Order = order
	s.UpdatedAt = now.UTC()
	return nil
}
