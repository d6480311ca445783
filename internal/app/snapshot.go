package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hylla/pipedesk/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "pipedesk.snapshot.v1"

// Snapshot represents snapshot data used by this package.
type Snapshot struct {
	Version     string               `json:"version"`
	ExportedAt  time.Time            `json:"exported_at"`
	Funnels     []SnapshotFunnel     `json:"funnels"`
	Stages      []SnapshotStage      `json:"stages"`
	Projects    []SnapshotProject    `json:"projects"`
	SubProjects []SnapshotSubProject `json:"subprojects"`
	Comments    []SnapshotComment    `json:"comments,omitempty"`
}

// SnapshotFunnel represents snapshot funnel data used by this package.
type SnapshotFunnel struct {
	ID        string             `json:"id"`
	Scope     domain.FunnelScope `json:"scope"`
	Name      string             `json:"name"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SnapshotStage represents snapshot stage data used by this package.
type SnapshotStage struct {
	ID        string    `json:"id"`
	FunnelID  string    `json:"funnel_id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotProject represents snapshot project data used by this package.
type SnapshotProject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	FunnelID    string    `json:"funnel_id,omitempty"`
	StageID     string    `json:"funnel_stage_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SnapshotSubProject represents snapshot subproject data used by this package.
type SnapshotSubProject struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	ProjectID          string    `json:"project_id,omitempty"`
	ParentSubprojectID string    `json:"parent_subproject_id,omitempty"`
	FunnelID           string    `json:"sub_project_funnel_id,omitempty"`
	StageID            string    `json:"sub_project_funnel_stage_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SnapshotComment represents one persisted markdown comment row in a snapshot.
type SnapshotComment struct {
	ID           string                   `json:"id"`
	TargetType   domain.CommentTargetType `json:"target_type"`
	TargetID     string                   `json:"target_id"`
	BodyMarkdown string                   `json:"body_markdown"`
	AuthorID     string                   `json:"author_id"`
	AuthorName   string                   `json:"author_name"`
	CreatedAt    time.Time                `json:"created_at"`
}

// ExportSnapshot collects every funnel, stage, entity, and comment.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Version:     SnapshotVersion,
		ExportedAt:  s.clock().UTC(),
		Funnels:     make([]SnapshotFunnel, 0),
		Stages:      make([]SnapshotStage, 0),
		Projects:    make([]SnapshotProject, 0),
		SubProjects: make([]SnapshotSubProject, 0),
		Comments:    make([]SnapshotComment, 0),
	}
	for _, scope := range []domain.FunnelScope{domain.ScopeProject, domain.ScopeSubProject} {
		funnels, err := s.repo.ListFunnels(ctx, scope)
		if err != nil {
			return Snapshot{}, err
		}
		for _, funnel := range funnels {
			snap.Funnels = append(snap.Funnels, snapshotFunnelFromDomain(funnel))
			for _, stage := range funnel.Stages {
				snap.Stages = append(snap.Stages, snapshotStageFromDomain(stage))
			}
		}
	}

	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, project := range projects {
		snap.Projects = append(snap.Projects, snapshotProjectFromDomain(project))
		comments, listErr := s.repo.ListCommentsByTarget(ctx, domain.CommentTarget{TargetType: domain.CommentTargetProject, TargetID: project.ID})
		if listErr != nil {
			return Snapshot{}, listErr
		}
		for _, comment := range comments {
			snap.Comments = append(snap.Comments, snapshotCommentFromDomain(comment))
		}
	}

	subprojects, err := s.repo.ListSubProjects(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, sp := range subprojects {
		snap.SubProjects = append(snap.SubProjects, snapshotSubProjectFromDomain(sp))
		comments, listErr := s.repo.ListCommentsByTarget(ctx, domain.CommentTarget{TargetType: domain.CommentTargetSubProject, TargetID: sp.ID})
		if listErr != nil {
			return Snapshot{}, listErr
		}
		for _, comment := range comments {
			snap.Comments = append(snap.Comments, snapshotCommentFromDomain(comment))
		}
	}

	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every record of snap. Existing comments are skipped.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	for _, funnel := range snap.Funnels {
		df := funnel.toDomain()
		if _, err := s.repo.GetFunnel(ctx, df.ID); err == nil {
			if err := s.repo.UpdateFunnel(ctx, df); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		} else if err := s.repo.CreateFunnel(ctx, df); err != nil {
			return err
		}
	}
	for _, stage := range snap.Stages {
		ds := stage.toDomain()
		if _, err := s.repo.GetStage(ctx, ds.ID); err == nil {
			if err := s.repo.UpdateStage(ctx, ds); err != nil {
				return err
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		} else if err := s.repo.CreateStage(ctx, ds); err != nil {
			return err
		}
	}
	for _, project := range snap.Projects {
		if err := s.upsertProject(ctx, project.toDomain()); err != nil {
			return err
		}
	}
	for _, sp := range snap.SubProjects {
		if err := s.upsertSubProject(ctx, sp.toDomain()); err != nil {
			return err
		}
	}
	if err := s.importSnapshotComments(ctx, snap.Comments); err != nil {
		return err
	}

	if s.cache != nil {
		_ = s.cache.InvalidateFunnels(ctx, domain.ScopeProject)
		_ = s.cache.InvalidateFunnels(ctx, domain.ScopeSubProject)
	}
	return nil
}

// Validate validates the requested operation.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	funnelScopes := map[string]domain.FunnelScope{}
	for i, f := range s.Funnels {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("funnels[%d].id is required", i)
		}
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("funnels[%d].name is required", i)
		}
		if f.Scope != domain.ScopeProject && f.Scope != domain.ScopeSubProject {
			return fmt.Errorf("funnels[%d].scope %q: %w", i, f.Scope, domain.ErrInvalidScope)
		}
		if _, exists := funnelScopes[f.ID]; exists {
			return fmt.Errorf("duplicate funnel id: %q", f.ID)
		}
		funnelScopes[f.ID] = f.Scope
	}

	stageFunnels := map[string]string{}
	for i, st := range s.Stages {
		if strings.TrimSpace(st.ID) == "" {
			return fmt.Errorf("stages[%d].id is required", i)
		}
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("stages[%d].name is required", i)
		}
		if st.Order < 1 {
			return fmt.Errorf("stages[%d].order must be >= 1", i)
		}
		if _, ok := funnelScopes[st.FunnelID]; !ok {
			return fmt.Errorf("stages[%d] references unknown funnel_id %q", i, st.FunnelID)
		}
		if _, exists := stageFunnels[st.ID]; exists {
			return fmt.Errorf("duplicate stage id: %q", st.ID)
		}
		stageFunnels[st.ID] = st.FunnelID
	}

	checkPlacement := func(label string, scope domain.FunnelScope, funnelID, stageID string) error {
		if funnelID == "" {
			if stageID != "" {
				return fmt.Errorf("%s has a stage without a funnel", label)
			}
			return nil
		}
		got, ok := funnelScopes[funnelID]
		if !ok {
			return fmt.Errorf("%s references unknown funnel %q", label, funnelID)
		}
		if got != scope {
			return fmt.Errorf("%s funnel %q: %w", label, funnelID, ErrScopeMismatch)
		}
		if stageID != "" && stageFunnels[stageID] != funnelID {
			return fmt.Errorf("%s stage %q: %w", label, stageID, domain.ErrStageFunnelMismatch)
		}
		return nil
	}

	projectIDs := map[string]struct{}{}
	for i, p := range s.Projects {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("projects[%d].id is required", i)
		}
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("projects[%d].name is required", i)
		}
		if p.CreatedAt.IsZero() || p.UpdatedAt.IsZero() {
			return fmt.Errorf("projects[%d] timestamps are required", i)
		}
		if _, exists := projectIDs[p.ID]; exists {
			return fmt.Errorf("duplicate project id: %q", p.ID)
		}
		if err := checkPlacement(fmt.Sprintf("projects[%d]", i), domain.ScopeProject, p.FunnelID, p.StageID); err != nil {
			return err
		}
		projectIDs[p.ID] = struct{}{}
	}

	subprojectIDs := map[string]struct{}{}
	for _, sp := range s.SubProjects {
		subprojectIDs[sp.ID] = struct{}{}
	}
	seenSubprojects := map[string]struct{}{}
	for i, sp := range s.SubProjects {
		if strings.TrimSpace(sp.ID) == "" {
			return fmt.Errorf("subprojects[%d].id is required", i)
		}
		if strings.TrimSpace(sp.Name) == "" {
			return fmt.Errorf("subprojects[%d].name is required", i)
		}
		if _, exists := seenSubprojects[sp.ID]; exists {
			return fmt.Errorf("duplicate subproject id: %q", sp.ID)
		}
		seenSubprojects[sp.ID] = struct{}{}
		if (sp.ProjectID == "") == (sp.ParentSubprojectID == "") {
			return fmt.Errorf("subprojects[%d]: %w", i, domain.ErrInvalidParent)
		}
		if sp.ProjectID != "" {
			if _, ok := projectIDs[sp.ProjectID]; !ok {
				return fmt.Errorf("subprojects[%d] references unknown project_id %q", i, sp.ProjectID)
			}
		}
		if sp.ParentSubprojectID != "" {
			if _, ok := subprojectIDs[sp.ParentSubprojectID]; !ok || sp.ParentSubprojectID == sp.ID {
				return fmt.Errorf("subprojects[%d] references invalid parent_subproject_id %q", i, sp.ParentSubprojectID)
			}
		}
		if err := checkPlacement(fmt.Sprintf("subprojects[%d]", i), domain.ScopeSubProject, sp.FunnelID, sp.StageID); err != nil {
			return err
		}
	}

	for i, c := range s.Comments {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("comments[%d].id is required", i)
		}
		if strings.TrimSpace(c.BodyMarkdown) == "" {
			return fmt.Errorf("comments[%d].body_markdown is required", i)
		}
		var ok bool
		switch c.TargetType {
		case domain.CommentTargetProject:
			_, ok = projectIDs[c.TargetID]
		case domain.CommentTargetSubProject:
			_, ok = subprojectIDs[c.TargetID]
		}
		if !ok {
			return fmt.Errorf("comments[%d] references unknown %s %q", i, c.TargetType, c.TargetID)
		}
	}
	return nil
}

// upsertProject handles upsert project.
func (s *Service) upsertProject(ctx context.Context, p domain.Project) error {
	if _, err := s.repo.GetProject(ctx, p.ID); err == nil {
		return s.repo.UpdateProject(ctx, p)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateProject(ctx, p)
}

// upsertSubProject handles upsert subproject.
func (s *Service) upsertSubProject(ctx context.Context, sp domain.SubProject) error {
	if _, err := s.repo.GetSubProject(ctx, sp.ID); err == nil {
		return s.repo.UpdateSubProject(ctx, sp)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.CreateSubProject(ctx, sp)
}

// importSnapshotComments inserts comments whose id is not stored yet.
func (s *Service) importSnapshotComments(ctx context.Context, comments []SnapshotComment) error {
	existing := map[domain.CommentTarget]map[string]struct{}{}
	for _, c := range comments {
		target := domain.CommentTarget{TargetType: c.TargetType, TargetID: c.TargetID}
		ids, ok := existing[target]
		if !ok {
			stored, err := s.repo.ListCommentsByTarget(ctx, target)
			if err != nil {
				return err
			}
			ids = map[string]struct{}{}
			for _, sc := range stored {
				ids[sc.ID] = struct{}{}
			}
			existing[target] = ids
		}
		if _, dup := ids[c.ID]; dup {
			continue
		}
		if err := s.repo.CreateComment(ctx, c.toDomain()); err != nil {
			return err
		}
		ids[c.ID] = struct{}{}
	}
	return nil
}

// sort orders every section for stable output and parent-first import.
func (s *Snapshot) sort() {
	sort.Slice(s.Funnels, func(i, j int) bool {
		if s.Funnels[i].Scope == s.Funnels[j].Scope {
			return s.Funnels[i].ID < s.Funnels[j].ID
		}
		return s.Funnels[i].Scope < s.Funnels[j].Scope
	})
	sort.Slice(s.Stages, func(i, j int) bool {
		a := s.Stages[i]
		b := s.Stages[j]
		if a.FunnelID == b.FunnelID {
			if a.Order == b.Order {
				return a.ID < b.ID
			}
			return a.Order < b.Order
		}
		return a.FunnelID < b.FunnelID
	})
	sort.Slice(s.Projects, func(i, j int) bool {
		return s.Projects[i].ID < s.Projects[j].ID
	})
	sort.Slice(s.SubProjects, func(i, j int) bool {
		return s.SubProjects[i].ID < s.SubProjects[j].ID
	})
	sort.Slice(s.Comments, func(i, j int) bool {
		a := s.Comments[i]
		b := s.Comments[j]
		if a.TargetType == b.TargetType {
			if a.TargetID == b.TargetID {
				if a.CreatedAt.Equal(b.CreatedAt) {
					return a.ID < b.ID
				}
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.TargetID < b.TargetID
		}
		return a.TargetType < b.TargetType
	})
}

func snapshotFunnelFromDomain(f domain.Funnel) SnapshotFunnel {
	return SnapshotFunnel{ID: f.ID, Scope: f.Scope, Name: f.Name, CreatedAt: f.CreatedAt.UTC(), UpdatedAt: f.UpdatedAt.UTC()}
}

func snapshotStageFromDomain(st domain.Stage) SnapshotStage {
	return SnapshotStage{
		ID:        st.ID,
		FunnelID:  st.FunnelID,
		Name:      st.Name,
		Order:     st.Order,
		CreatedAt: st.CreatedAt.UTC(),
		UpdatedAt: st.UpdatedAt.UTC(),
	}
}

func snapshotProjectFromDomain(p domain.Project) SnapshotProject {
	return SnapshotProject{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		FunnelID:    p.FunnelID,
		StageID:     p.StageID,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func snapshotSubProjectFromDomain(sp domain.SubProject) SnapshotSubProject {
	return SnapshotSubProject{
		ID:                 sp.ID,
		Name:               sp.Name,
		ProjectID:          sp.ProjectID,
		ParentSubprojectID: sp.ParentSubprojectID,
		FunnelID:           sp.FunnelID,
		StageID:            sp.StageID,
		CreatedAt:          sp.CreatedAt.UTC(),
		UpdatedAt:          sp.UpdatedAt.UTC(),
	}
}

func snapshotCommentFromDomain(c domain.Comment) SnapshotComment {
	return SnapshotComment{
		ID:           c.ID,
		TargetType:   c.TargetType,
		TargetID:     c.TargetID,
		BodyMarkdown: c.BodyMarkdown,
		AuthorID:     c.AuthorID,
		AuthorName:   c.AuthorName,
		CreatedAt:    c.CreatedAt.UTC(),
	}
}

func (f SnapshotFunnel) toDomain() domain.Funnel {
	return domain.Funnel{
		ID:        strings.TrimSpace(f.ID),
		Scope:     f.Scope,
		Name:      strings.TrimSpace(f.Name),
		Stages:    []domain.Stage{},
		CreatedAt: f.CreatedAt.UTC(),
		UpdatedAt: f.UpdatedAt.UTC(),
	}
}

func (st SnapshotStage) toDomain() domain.Stage {
	return domain.Stage{
		ID:        strings.TrimSpace(st.ID),
		FunnelID:  strings.TrimSpace(st.FunnelID),
		Name:      strings.TrimSpace(st.Name),
		Order:     st.Order,
		CreatedAt: st.CreatedAt.UTC(),
		UpdatedAt: st.UpdatedAt.UTC(),
	}
}

func (p SnapshotProject) toDomain() domain.Project {
	return domain.Project{
		ID:          strings.TrimSpace(p.ID),
		Name:        strings.TrimSpace(p.Name),
		Description: p.Description,
		FunnelID:    p.FunnelID,
		StageID:     p.StageID,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func (sp SnapshotSubProject) toDomain() domain.SubProject {
	return domain.SubProject{
		ID:                 strings.TrimSpace(sp.ID),
		Name:               strings.TrimSpace(sp.Name),
		ProjectID:          sp.ProjectID,
		ParentSubprojectID: sp.ParentSubprojectID,
		FunnelID:           sp.FunnelID,
		StageID:            sp.StageID,
		CreatedAt:          sp.CreatedAt.UTC(),
		UpdatedAt:          sp.UpdatedAt.UTC(),
	}
}

func (c SnapshotComment) toDomain() domain.Comment {
	return domain.Comment{
		ID:           strings.TrimSpace(c.ID),
		TargetType:   c.TargetType,
		TargetID:     strings.TrimSpace(c.TargetID),
		BodyMarkdown: strings.TrimSpace(c.BodyMarkdown),
		AuthorID:     c.AuthorID,
		AuthorName:   c.AuthorName,
		CreatedAt:    c.CreatedAt.UTC(),
	}
}
