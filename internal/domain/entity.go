package domain

import (
	"strings"
	"time"
)

// Placement locates an entity on a funnel. Empty strings mean unassigned.
type Placement struct {
	FunnelID string
	StageID  string
}

// Normalize trims ids and clears a stage that has no funnel.
func (p Placement) Normalize() Placement {
	p.FunnelID = strings.TrimSpace(p.FunnelID)
	p.StageID = strings.TrimSpace(p.StageID)
	if p.FunnelID == "" {
		p.StageID = ""
	}
	return p
}

// IsZero reports whether the placement is fully unassigned.
func (p Placement) IsZero() bool {
	return p.FunnelID == "" && p.StageID == ""
}

// Placeable is implemented by entities that can sit on a funnel board.
type Placeable[E any] interface {
	EntityID() string
	Placement() Placement
	WithPlacement(Placement) E
}

// Project is a top-level CRM project.
type Project struct {
	ID          string
	Name        string
	Description string
	FunnelID    string
	StageID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProject constructs an unassigned project.
func NewProject(id, name, description string, now time.Time) (Project, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return Project{}, ErrInvalidID
	}
	if name == "" {
		return Project{}, ErrInvalidName
	}
	return Project{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// UpdateDetails updates name and description.
func (p *Project) UpdateDetails(name, description string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	p.Name = name
	p.Description = strings.TrimSpace(description)
	p.UpdatedAt = now.UTC()
	return nil
}

// EntityID returns the project id.
func (p Project) EntityID() string { return p.ID }

// Placement returns the project's funnel placement.
func (p Project) Placement() Placement {
	return Placement{FunnelID: p.FunnelID, StageID: p.StageID}
}

// WithPlacement returns a copy placed at pl.
func (p Project) WithPlacement(pl Placement) Project {
	p.FunnelID = pl.FunnelID
	p.StageID = pl.StageID
	return p
}

// SubProject is a node of the project hierarchy. Exactly one of ProjectID and
// ParentSubprojectID is set.
type SubProject struct {
	ID                 string
	Name               string
	ProjectID          string
	ParentSubprojectID string
	FunnelID           string
	StageID            string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewSubProject constructs an unassigned subproject under a project or another subproject.
func NewSubProject(id, name, projectID, parentSubprojectID string, now time.Time) (SubProject, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" {
		return SubProject{}, ErrInvalidID
	}
	if name == "" {
		return SubProject{}, ErrInvalidName
	}
	sp := SubProject{
		ID:        id,
		Name:      name,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := sp.Reparent(projectID, parentSubprojectID, now); err != nil {
		return SubProject{}, err
	}
	return sp, nil
}

// Rename renames the subproject.
func (s *SubProject) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	s.Name = name
	s.UpdatedAt = now.UTC()
	return nil
}

// Reparent moves the subproject under a project or a parent subproject.
func (s *SubProject) Reparent(projectID, parentSubprojectID string, now time.Time) error {
	projectID = strings.TrimSpace(projectID)
	parentSubprojectID = strings.TrimSpace(parentSubprojectID)
	if (projectID == "") == (parentSubprojectID == "") {
		return ErrInvalidParent
	}
	if parentSubprojectID == s.ID {
		return ErrInvalidParent
	}
	s.ProjectID = projectID
	s.ParentSubprojectID = parentSubprojectID
	s.UpdatedAt = now.UTC()
	return nil
}

// EntityID returns the subproject id.
func (s SubProject) EntityID() string { return s.ID }

// Placement returns the subproject's funnel placement.
func (s SubProject) Placement() Placement {
	return Placement{FunnelID: s.FunnelID, StageID: s.StageID}
}

// WithPlacement returns a copy placed at pl.
func (s SubProject) WithPlacement(pl Placement) SubProject {
	s.FunnelID = pl.FunnelID
	s.StageID = pl.StageID
	return s
}
