package domain

import (
	"strings"
	"time"
)

// FunnelScope identifies which entity type a funnel's stages hold.
type FunnelScope string

// FunnelScope values.
const (
	ScopeProject    FunnelScope = "project"
	ScopeSubProject FunnelScope = "subproject"
)

// ParseFunnelScope normalizes a raw scope value.
func ParseFunnelScope(raw string) (FunnelScope, error) {
	switch FunnelScope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopeProject, "projects", "":
		return ScopeProject, nil
	case ScopeSubProject, "subprojects", "sub-project", "sub_project":
		return ScopeSubProject, nil
	default:
		return "", ErrInvalidScope
	}
}

// Funnel is a named pipeline owning an ordered set of stages.
type Funnel struct {
	ID        string
	Scope     FunnelScope
	Name      string
	Stages    []Stage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewFunnel constructs a funnel with no stages.
func NewFunnel(id string, scope FunnelScope, name string, now time.Time) (Funnel, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Funnel{}, ErrInvalidID
	}
	if scope != ScopeProject && scope != ScopeSubProject {
		return Funnel{}, ErrInvalidScope
	}
	if name == "" {
		return Funnel{}, ErrInvalidName
	}
	return Funnel{
		ID:        id,
		Scope:     scope,
		Name:      name,
		Stages:    []Stage{},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Rename renames the funnel.
func (f *Funnel) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	f.Name = name
	f.UpdatedAt = now.UTC()
	return nil
}

// Stage returns the stage with the given id.
func (f Funnel) Stage(id string) (Stage, bool) {
	for _, stage := range f.Stages {
		if stage.ID == id {
			return stage, true
		}
	}
	return Stage{}, false
}

// HasStage reports whether id names one of the funnel's stages.
func (f Funnel) HasStage(id string) bool {
	_, ok := f.Stage(id)
	return ok
}

// Clone returns a copy that shares no stage slice with f.
func (f Funnel) Clone() Funnel {
	f.Stages = append([]Stage(nil), f.Stages...)
	return f
}

// CloneFunnels deep-copies a funnel list.
func CloneFunnels(in []Funnel) []Funnel {
	out := make([]Funnel, 0, len(in))
	for _, f := range in {
		out = append(out, f.Clone())
	}
	return out
}
