package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hylla/pipedesk/internal/domain"
)

// EntitySource loads and places one entity type for a Board.
type EntitySource[E domain.Placeable[E]] interface {
	Scope() domain.FunnelScope
	List(ctx context.Context) ([]E, error)
	Place(ctx context.Context, id string, placement domain.Placement) (E, error)
}

// ProjectSource adapts an API to project boards.
func ProjectSource(api API) EntitySource[domain.Project] {
	return projectSource{api: api}
}

// SubProjectSource adapts an API to subproject boards.
func SubProjectSource(api API) EntitySource[domain.SubProject] {
	return subProjectSource{api: api}
}

type projectSource struct{ api API }

func (projectSource) Scope() domain.FunnelScope { return domain.ScopeProject }

func (s projectSource) List(ctx context.Context) ([]domain.Project, error) {
	return s.api.ListProjects(ctx)
}

func (s projectSource) Place(ctx context.Context, id string, placement domain.Placement) (domain.Project, error) {
	return s.api.PlaceProject(ctx, id, placement)
}

type subProjectSource struct{ api API }

func (subProjectSource) Scope() domain.FunnelScope { return domain.ScopeSubProject }

func (s subProjectSource) List(ctx context.Context) ([]domain.SubProject, error) {
	return s.api.ListSubProjects(ctx)
}

func (s subProjectSource) Place(ctx context.Context, id string, placement domain.Placement) (domain.SubProject, error) {
	return s.api.PlaceSubProject(ctx, id, placement)
}

// Board is the kanban controller for one funnel.
type Board[E domain.Placeable[E]] struct {
	api      API
	source   EntitySource[E]
	funnelID string

	mu       sync.Mutex
	funnel   domain.Funnel
	entities []E
	inFlight map[string]struct{}
}

// NewBoard constructs a board for funnelID. Call Load before reading it.
func NewBoard[E domain.Placeable[E]](api API, source EntitySource[E], funnelID string) *Board[E] {
	return &Board[E]{
		api:      api,
		source:   source,
		funnelID: funnelID,
		inFlight: map[string]struct{}{},
	}
}

// Load fetches the funnel and every entity of the board's type.
func (b *Board[E]) Load(ctx context.Context) error {
	funnel, err := b.api.GetFunnel(ctx, b.source.Scope(), b.funnelID)
	if err != nil {
		return fmt.Errorf("load funnel %q: %w", b.funnelID, err)
	}
	entities, err := b.source.List(ctx)
	if err != nil {
		return fmt.Errorf("load %s entities: %w", b.source.Scope(), err)
	}
	b.mu.Lock()
	b.funnel = funnel.Clone()
	b.entities = slices.Clone(entities)
	b.mu.Unlock()
	return nil
}

// Funnel returns the loaded funnel.
func (b *Board[E]) Funnel() domain.Funnel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.funnel.Clone()
}

// Entities returns every loaded entity, on this funnel or not.
func (b *Board[E]) Entities() []E {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.entities)
}

// View groups the loaded entities into columns and the unassigned bucket.
func (b *Board[E]) View() domain.Board[E] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.BuildBoard(b.entities, b.funnel)
}

// Columns returns the stage buckets in stage order.
func (b *Board[E]) Columns() []domain.StageBucket[E] {
	return b.View().Columns
}

// Unassigned returns entities on this funnel without a valid stage.
func (b *Board[E]) Unassigned() []E {
	return b.View().Unassigned
}

// InFlight reports whether a placement request for entityID is outstanding.
func (b *Board[E]) InFlight(entityID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.inFlight[entityID]
	return ok
}

// Drop places entityID on stageID. Unknown ids, drops on the current stage, and entities
// not on this funnel are no-ops; MoveToFunnel brings an entity onto the funnel.
func (b *Board[E]) Drop(ctx context.Context, entityID, stageID string) BoardResult[E] {
	b.mu.Lock()
	stage, ok := b.funnel.Stage(stageID)
	if !ok {
		b.mu.Unlock()
		return BoardResult[E]{Outcome: OutcomeApplied}
	}
	b.mu.Unlock()
	return b.place(ctx, entityID, func(entity E) (E, bool) {
		if entity.Placement().FunnelID != b.funnelID {
			return entity, false
		}
		if domain.IsNoopDrop(entity, stage) {
			return entity, false
		}
		return domain.AssignToStage(entity, stage), true
	})
}

// MoveToFunnel puts entityID on this board's funnel without a stage.
func (b *Board[E]) MoveToFunnel(ctx context.Context, entityID string) BoardResult[E] {
	return b.place(ctx, entityID, func(entity E) (E, bool) {
		if entity.Placement().FunnelID == b.funnelID {
			return entity, false
		}
		return domain.ChangeFunnel(entity, b.funnelID), true
	})
}

// Unassign removes entityID from any funnel.
func (b *Board[E]) Unassign(ctx context.Context, entityID string) BoardResult[E] {
	return b.place(ctx, entityID, func(entity E) (E, bool) {
		if entity.Placement().IsZero() {
			return entity, false
		}
		return domain.Unassign(entity), true
	})
}

// place applies change locally, persists the new placement, and reloads on failure.
func (b *Board[E]) place(ctx context.Context, entityID string, change func(E) (E, bool)) BoardResult[E] {
	b.mu.Lock()
	entity, idx, ok := domain.FindEntity(b.entities, entityID)
	if !ok {
		b.mu.Unlock()
		return BoardResult[E]{Outcome: OutcomeApplied}
	}
	if _, busy := b.inFlight[entityID]; busy {
		b.mu.Unlock()
		return BoardResult[E]{Outcome: OutcomePending}
	}
	next, changed := change(entity)
	if !changed {
		b.mu.Unlock()
		return BoardResult[E]{Outcome: OutcomeApplied}
	}
	prev := slices.Clone(b.entities)
	b.entities[idx] = next
	b.inFlight[entityID] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.inFlight, entityID)
		b.mu.Unlock()
	}()

	saved, err := b.source.Place(ctx, entityID, next.Placement())
	if err != nil {
		return b.fail(ctx, prev, err)
	}
	b.mu.Lock()
	if _, idx, ok := domain.FindEntity(b.entities, entityID); ok {
		b.entities[idx] = saved
	}
	b.mu.Unlock()
	return BoardResult[E]{Outcome: OutcomeApplied, Changed: true}
}

// fail reloads the authoritative state, falling back to prev when the reload fails.
func (b *Board[E]) fail(ctx context.Context, prev []E, cause error) BoardResult[E] {
	if err := b.Load(ctx); err != nil {
		b.mu.Lock()
		b.entities = prev
		b.mu.Unlock()
		return BoardResult[E]{Outcome: OutcomeFailed, RevertTo: slices.Clone(prev), Err: errors.Join(cause, err)}
	}
	return BoardResult[E]{Outcome: OutcomeFailed, RevertTo: b.Entities(), Err: cause}
}
