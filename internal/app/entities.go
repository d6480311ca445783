package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/pipedesk/internal/domain"
)

// OptionalID distinguishes "leave as is" from "set", where an empty Value clears the field.
type OptionalID struct {
	Set   bool
	Value string
}

// SetID returns an OptionalID that sets value.
func SetID(value string) OptionalID {
	return OptionalID{Set: true, Value: strings.TrimSpace(value)}
}

// ClearID returns an OptionalID that clears the field.
func ClearID() OptionalID {
	return OptionalID{Set: true}
}

// CreateProjectInput holds input values for create project operations.
type CreateProjectInput struct {
	Name        string
	Description string
}

// CreateProject creates an unassigned project.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (domain.Project, error) {
	project, err := domain.NewProject(s.idGen(), in.Name, in.Description, s.clock())
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	s.publish(ctx, domain.ScopeProject, "", domain.EntityProject, project.ID, domain.ChangeOperationCreate)
	return project, nil
}

// GetProject returns project.
func (s *Service) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return s.repo.GetProject(ctx, strings.TrimSpace(id))
}

// ListProjects lists projects.
func (s *Service) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return s.repo.ListProjects(ctx)
}

// UpdateProjectInput holds input values for update project operations. Nil or unset fields are
// left as is.
type UpdateProjectInput struct {
	ProjectID   string
	Name        *string
	Description *string
	FunnelID    OptionalID
	StageID     OptionalID
}

// UpdateProject updates details and placement in one write.
func (s *Service) UpdateProject(ctx context.Context, in UpdateProjectInput) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, strings.TrimSpace(in.ProjectID))
	if err != nil {
		return domain.Project{}, err
	}
	if in.Name != nil || in.Description != nil {
		name, description := project.Name, project.Description
		if in.Name != nil {
			name = *in.Name
		}
		if in.Description != nil {
			description = *in.Description
		}
		if err := project.UpdateDetails(name, description, s.clock()); err != nil {
			return domain.Project{}, err
		}
	}
	placement, err := s.resolvePlacement(ctx, domain.ScopeProject, mergePlacement(project.Placement(), in.FunnelID, in.StageID))
	if err != nil {
		return domain.Project{}, err
	}
	return s.saveProject(ctx, project, placement)
}

// PlaceProject moves a project onto a funnel stage. A zero placement unassigns it and a
// placement without a stage keeps the funnel with no stage.
func (s *Service) PlaceProject(ctx context.Context, id string, placement domain.Placement) (domain.Project, error) {
	project, err := s.repo.GetProject(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Project{}, err
	}
	placement, err = s.resolvePlacement(ctx, domain.ScopeProject, placement)
	if err != nil {
		return domain.Project{}, err
	}
	return s.saveProject(ctx, project, placement)
}

// UnassignProject clears a project's funnel and stage.
func (s *Service) UnassignProject(ctx context.Context, id string) (domain.Project, error) {
	return s.PlaceProject(ctx, id, domain.Placement{})
}

func (s *Service) saveProject(ctx context.Context, project domain.Project, placement domain.Placement) (domain.Project, error) {
	prev := project.Placement()
	project = project.WithPlacement(placement)
	if prev != placement {
		project.UpdatedAt = s.clock().UTC()
	}
	if err := s.repo.UpdateProject(ctx, project); err != nil {
		return domain.Project{}, err
	}
	s.publish(ctx, domain.ScopeProject, firstNonEmpty(placement.FunnelID, prev.FunnelID), domain.EntityProject, project.ID, placementOperation(prev, placement))
	return project, nil
}

// DeleteProject deletes a project without subprojects.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	project, err := s.repo.GetProject(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	subprojects, err := s.repo.ListSubProjects(ctx)
	if err != nil {
		return err
	}
	for _, sp := range subprojects {
		if sp.ProjectID == project.ID {
			return fmt.Errorf("delete project %q: %w", project.ID, ErrHasChildren)
		}
	}
	if err := s.repo.DeleteProject(ctx, project.ID); err != nil {
		return err
	}
	s.publish(ctx, domain.ScopeProject, project.FunnelID, domain.EntityProject, project.ID, domain.ChangeOperationDelete)
	return nil
}

// CreateSubProjectInput holds input values for create subproject operations. Exactly one parent
// is required.
type CreateSubProjectInput struct {
	Name               string
	ProjectID          string
	ParentSubprojectID string
}

// CreateSubProject creates an unassigned subproject.
func (s *Service) CreateSubProject(ctx context.Context, in CreateSubProjectInput) (domain.SubProject, error) {
	sp, err := domain.NewSubProject(s.idGen(), in.Name, in.ProjectID, in.ParentSubprojectID, s.clock())
	if err != nil {
		return domain.SubProject{}, err
	}
	if err := s.ensureParent(ctx, sp.ProjectID, sp.ParentSubprojectID); err != nil {
		return domain.SubProject{}, err
	}
	if err := s.repo.CreateSubProject(ctx, sp); err != nil {
		return domain.SubProject{}, err
	}
	s.publish(ctx, domain.ScopeSubProject, "", domain.EntitySubProject, sp.ID, domain.ChangeOperationCreate)
	return sp, nil
}

// GetSubProject returns subproject.
func (s *Service) GetSubProject(ctx context.Context, id string) (domain.SubProject, error) {
	return s.repo.GetSubProject(ctx, strings.TrimSpace(id))
}

// ListSubProjects lists subprojects.
func (s *Service) ListSubProjects(ctx context.Context) ([]domain.SubProject, error) {
	return s.repo.ListSubProjects(ctx)
}

// UpdateSubProjectInput holds input values for update subproject operations.
type UpdateSubProjectInput struct {
	SubProjectID       string
	Name               *string
	ProjectID          OptionalID
	ParentSubprojectID OptionalID
	FunnelID           OptionalID
	StageID            OptionalID
}

// UpdateSubProject updates name, parent, and placement in one write.
func (s *Service) UpdateSubProject(ctx context.Context, in UpdateSubProjectInput) (domain.SubProject, error) {
	sp, err := s.repo.GetSubProject(ctx, strings.TrimSpace(in.SubProjectID))
	if err != nil {
		return domain.SubProject{}, err
	}
	now := s.clock()
	if in.Name != nil {
		if err := sp.Rename(*in.Name, now); err != nil {
			return domain.SubProject{}, err
		}
	}
	if in.ProjectID.Set || in.ParentSubprojectID.Set {
		projectID, parentID := sp.ProjectID, sp.ParentSubprojectID
		if in.ProjectID.Set {
			projectID = in.ProjectID.Value
			if !in.ParentSubprojectID.Set && projectID != "" {
				parentID = ""
			}
		}
		if in.ParentSubprojectID.Set {
			parentID = in.ParentSubprojectID.Value
			if !in.ProjectID.Set && parentID != "" {
				projectID = ""
			}
		}
		if err := s.reparent(ctx, &sp, projectID, parentID); err != nil {
			return domain.SubProject{}, err
		}
	}
	placement, err := s.resolvePlacement(ctx, domain.ScopeSubProject, mergePlacement(sp.Placement(), in.FunnelID, in.StageID))
	if err != nil {
		return domain.SubProject{}, err
	}
	return s.saveSubProject(ctx, sp, placement)
}

// MoveSubProject re-parents a subproject, refusing parents that would form a cycle.
func (s *Service) MoveSubProject(ctx context.Context, id, projectID, parentSubprojectID string) (domain.SubProject, error) {
	sp, err := s.repo.GetSubProject(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SubProject{}, err
	}
	if err := s.reparent(ctx, &sp, projectID, parentSubprojectID); err != nil {
		return domain.SubProject{}, err
	}
	return s.saveSubProject(ctx, sp, sp.Placement())
}

// PlaceSubProject moves a subproject onto a subproject funnel stage.
func (s *Service) PlaceSubProject(ctx context.Context, id string, placement domain.Placement) (domain.SubProject, error) {
	sp, err := s.repo.GetSubProject(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.SubProject{}, err
	}
	placement, err = s.resolvePlacement(ctx, domain.ScopeSubProject, placement)
	if err != nil {
		return domain.SubProject{}, err
	}
	return s.saveSubProject(ctx, sp, placement)
}

// UnassignSubProject clears a subproject's funnel and stage.
func (s *Service) UnassignSubProject(ctx context.Context, id string) (domain.SubProject, error) {
	return s.PlaceSubProject(ctx, id, domain.Placement{})
}

func (s *Service) saveSubProject(ctx context.Context, sp domain.SubProject, placement domain.Placement) (domain.SubProject, error) {
	prev := sp.Placement()
	sp = sp.WithPlacement(placement)
	if prev != placement {
		sp.UpdatedAt = s.clock().UTC()
	}
	if err := s.repo.UpdateSubProject(ctx, sp); err != nil {
		return domain.SubProject{}, err
	}
	s.publish(ctx, domain.ScopeSubProject, firstNonEmpty(placement.FunnelID, prev.FunnelID), domain.EntitySubProject, sp.ID, placementOperation(prev, placement))
	return sp, nil
}

// DeleteSubProject deletes a subproject without children.
func (s *Service) DeleteSubProject(ctx context.Context, id string) error {
	sp, err := s.repo.GetSubProject(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	subprojects, err := s.repo.ListSubProjects(ctx)
	if err != nil {
		return err
	}
	for _, child := range subprojects {
		if child.ParentSubprojectID == sp.ID {
			return fmt.Errorf("delete subproject %q: %w", sp.ID, ErrHasChildren)
		}
	}
	if err := s.repo.DeleteSubProject(ctx, sp.ID); err != nil {
		return err
	}
	s.publish(ctx, domain.ScopeSubProject, sp.FunnelID, domain.EntitySubProject, sp.ID, domain.ChangeOperationDelete)
	return nil
}

// reparent validates the new parent and applies it to sp.
func (s *Service) reparent(ctx context.Context, sp *domain.SubProject, projectID, parentSubprojectID string) error {
	projectID = strings.TrimSpace(projectID)
	parentSubprojectID = strings.TrimSpace(parentSubprojectID)
	if err := sp.Reparent(projectID, parentSubprojectID, s.clock()); err != nil {
		return err
	}
	if err := s.ensureParent(ctx, projectID, parentSubprojectID); err != nil {
		return err
	}
	if parentSubprojectID == "" {
		return nil
	}
	all, err := s.repo.ListSubProjects(ctx)
	if err != nil {
		return err
	}
	if domain.WouldCycle(all, sp.ID, parentSubprojectID) {
		return fmt.Errorf("subproject %q under %q: %w", sp.ID, parentSubprojectID, domain.ErrInvalidParent)
	}
	return nil
}

// ensureParent checks that the referenced parent exists.
func (s *Service) ensureParent(ctx context.Context, projectID, parentSubprojectID string) error {
	var err error
	switch {
	case parentSubprojectID != "":
		_, err = s.repo.GetSubProject(ctx, parentSubprojectID)
	case projectID != "":
		_, err = s.repo.GetProject(ctx, projectID)
	default:
		return domain.ErrInvalidParent
	}
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("parent %q: %w", firstNonEmpty(parentSubprojectID, projectID), domain.ErrInvalidParent)
	}
	return err
}

// resolvePlacement validates a target placement for an entity of scope. A stage without a
// funnel adopts the stage's funnel.
func (s *Service) resolvePlacement(ctx context.Context, scope domain.FunnelScope, placement domain.Placement) (domain.Placement, error) {
	placement.FunnelID = strings.TrimSpace(placement.FunnelID)
	placement.StageID = strings.TrimSpace(placement.StageID)
	if placement.StageID != "" && placement.FunnelID == "" {
		stage, err := s.repo.GetStage(ctx, placement.StageID)
		if err != nil {
			return domain.Placement{}, err
		}
		placement.FunnelID = stage.FunnelID
	}
	placement = placement.Normalize()
	if placement.FunnelID == "" {
		return placement, nil
	}
	funnel, err := s.repo.GetFunnel(ctx, placement.FunnelID)
	if err != nil {
		return domain.Placement{}, err
	}
	if funnel.Scope != scope {
		return domain.Placement{}, fmt.Errorf("funnel %q is a %s funnel: %w", funnel.ID, funnel.Scope, ErrScopeMismatch)
	}
	if placement.StageID != "" && !funnel.HasStage(placement.StageID) {
		return domain.Placement{}, fmt.Errorf("stage %q: %w", placement.StageID, domain.ErrStageFunnelMismatch)
	}
	return placement, nil
}

// mergePlacement applies optional funnel/stage updates to current. Changing the funnel without
// naming a stage clears the stage.
func mergePlacement(current domain.Placement, funnelID, stageID OptionalID) domain.Placement {
	next := current
	if funnelID.Set {
		next.FunnelID = funnelID.Value
		if !stageID.Set && funnelID.Value != current.FunnelID {
			next.StageID = ""
		}
	}
	if stageID.Set {
		next.StageID = stageID.Value
		if !funnelID.Set && stageID.Value != "" && stageID.Value != current.StageID {
			// the stage decides the funnel
			next.FunnelID = ""
		}
	}
	return next
}

// placementOperation classifies a placement transition for the activity ledger.
func placementOperation(prev, next domain.Placement) domain.ChangeOperation {
	switch {
	case prev == next:
		return domain.ChangeOperationUpdate
	case next.IsZero():
		return domain.ChangeOperationUnassign
	default:
		return domain.ChangeOperationMove
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
