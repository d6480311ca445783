package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hylla/pipedesk/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Editor administers the funnels and stages of one scope with optimistic local updates.
// It is safe for concurrent use by UI commands.
type Editor struct {
	api   API
	scope domain.FunnelScope

	mu       sync.Mutex
	funnels  []domain.Funnel
	inFlight map[string]struct{}
}

// NewEditor constructs an editor for scope.
func NewEditor(api API, scope domain.FunnelScope) *Editor {
	return &Editor{
		api:      api,
		scope:    scope,
		inFlight: map[string]struct{}{},
	}
}

// Scope returns the edited scope.
func (e *Editor) Scope() domain.FunnelScope {
	return e.scope
}

// Load replaces the local snapshot with the server's funnel list.
func (e *Editor) Load(ctx context.Context) error {
	funnels, err := e.api.ListFunnels(ctx, e.scope)
	if err != nil {
		return fmt.Errorf("load %s funnels: %w", e.scope, err)
	}
	e.mu.Lock()
	e.funnels = domain.CloneFunnels(funnels)
	e.mu.Unlock()
	return nil
}

// Funnels returns a copy of the local snapshot.
func (e *Editor) Funnels() []domain.Funnel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.CloneFunnels(e.funnels)
}

// Funnel returns one funnel from the local snapshot.
func (e *Editor) Funnel(id string) (domain.Funnel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.funnelIndex(id)
	if idx < 0 {
		return domain.Funnel{}, false
	}
	return e.funnels[idx].Clone(), true
}

// InFlight reports whether a request guarded by id has not finished yet. Funnel renames and
// deletes, stage creates, stage deletes, and reorders are guarded by funnel id; stage renames
// by stage id.
func (e *Editor) InFlight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inFlight[id]
	return ok
}

// CreateFunnel creates a funnel and appends it to the snapshot.
func (e *Editor) CreateFunnel(ctx context.Context, name string) Result {
	funnel, err := e.api.CreateFunnel(ctx, e.scope, strings.TrimSpace(name))
	if err != nil {
		return e.fail(ctx, nil, err)
	}
	e.mu.Lock()
	e.funnels = append(e.funnels, funnel.Clone())
	e.mu.Unlock()
	return applied(true)
}

// RenameFunnel renames a funnel locally, then persists it.
func (e *Editor) RenameFunnel(ctx context.Context, id, name string) Result {
	name = strings.TrimSpace(name)
	e.mu.Lock()
	idx := e.funnelIndex(id)
	if idx < 0 {
		e.mu.Unlock()
		return applied(false)
	}
	if !e.beginLocked(id) {
		e.mu.Unlock()
		return pending()
	}
	prev := domain.CloneFunnels(e.funnels)
	changed := e.funnels[idx].Name != name
	e.funnels[idx].Name = name
	e.mu.Unlock()
	defer e.end(id)

	if !changed {
		return applied(false)
	}
	renamed, err := e.api.RenameFunnel(ctx, e.scope, id, name)
	if err != nil {
		return e.fail(ctx, prev, err)
	}
	e.mu.Lock()
	if idx := e.funnelIndex(id); idx >= 0 {
		e.funnels[idx].Name = renamed.Name
		e.funnels[idx].UpdatedAt = renamed.UpdatedAt
	}
	e.mu.Unlock()
	return applied(true)
}

// DeleteFunnel removes a funnel locally, then deletes it on the server. A refusal is reported
// as ErrFunnelDeleteFailed joined with the cause.
func (e *Editor) DeleteFunnel(ctx context.Context, id string) Result {
	e.mu.Lock()
	idx := e.funnelIndex(id)
	if idx < 0 {
		e.mu.Unlock()
		return applied(false)
	}
	if !e.beginLocked(id) {
		e.mu.Unlock()
		return pending()
	}
	prev := domain.CloneFunnels(e.funnels)
	e.funnels = slices.Delete(e.funnels, idx, idx+1)
	e.mu.Unlock()
	defer e.end(id)

	if err := e.api.DeleteFunnel(ctx, e.scope, id); err != nil {
		return e.fail(ctx, prev, errors.Join(ErrFunnelDeleteFailed, err))
	}
	return applied(true)
}

// CreateStage appends a stage to funnelID with the next free order.
func (e *Editor) CreateStage(ctx context.Context, funnelID, name string) Result {
	e.mu.Lock()
	idx := e.funnelIndex(funnelID)
	if idx < 0 {
		snapshot := domain.CloneFunnels(e.funnels)
		e.mu.Unlock()
		return Result{Outcome: OutcomeFailed, RevertTo: snapshot, Err: fmt.Errorf("funnel %q: %w", funnelID, ErrNotFound)}
	}
	if !e.beginLocked(funnelID) {
		e.mu.Unlock()
		return pending()
	}
	order := domain.NextStageOrder(e.funnels[idx].Stages)
	e.mu.Unlock()
	defer e.end(funnelID)

	stage, err := e.api.CreateStage(ctx, e.scope, funnelID, strings.TrimSpace(name), order)
	if err != nil {
		return e.fail(ctx, nil, err)
	}
	e.mu.Lock()
	if idx := e.funnelIndex(funnelID); idx >= 0 {
		e.funnels[idx].Stages = append(e.funnels[idx].Stages, stage)
	}
	e.mu.Unlock()
	return applied(true)
}

// RenameStage renames a stage locally, then persists it.
func (e *Editor) RenameStage(ctx context.Context, stageID, name string) Result {
	name = strings.TrimSpace(name)
	e.mu.Lock()
	fIdx, sIdx := e.stageIndex(stageID)
	if fIdx < 0 {
		e.mu.Unlock()
		return applied(false)
	}
	if !e.beginLocked(stageID) {
		e.mu.Unlock()
		return pending()
	}
	prev := domain.CloneFunnels(e.funnels)
	changed := e.funnels[fIdx].Stages[sIdx].Name != name
	e.funnels[fIdx].Stages[sIdx].Name = name
	e.mu.Unlock()
	defer e.end(stageID)

	if !changed {
		return applied(false)
	}
	if _, err := e.api.UpdateStage(ctx, e.scope, stageID, &name, nil); err != nil {
		return e.fail(ctx, prev, err)
	}
	return applied(true)
}

// DeleteStage removes a stage locally, re-sequencing the rest, then deletes it on the server.
// It re-sequences siblings, so it holds the funnel's guard like reorders do.
func (e *Editor) DeleteStage(ctx context.Context, stageID string) Result {
	e.mu.Lock()
	fIdx, sIdx := e.stageIndex(stageID)
	if fIdx < 0 {
		e.mu.Unlock()
		return applied(false)
	}
	funnelID := e.funnels[fIdx].ID
	if !e.beginLocked(funnelID) {
		e.mu.Unlock()
		return pending()
	}
	prev := domain.CloneFunnels(e.funnels)
	remaining := slices.Delete(slices.Clone(e.funnels[fIdx].Stages), sIdx, sIdx+1)
	e.funnels[fIdx].Stages = domain.Resequence(remaining)
	e.mu.Unlock()
	defer e.end(funnelID)

	if err := e.api.DeleteStage(ctx, e.scope, stageID); err != nil {
		return e.fail(ctx, prev, err)
	}
	return applied(true)
}

// ReorderStage swaps stageID with its neighbor in direction.
func (e *Editor) ReorderStage(ctx context.Context, funnelID, stageID string, direction domain.Direction) Result {
	return e.reorder(ctx, funnelID, func(stages []domain.Stage) []domain.Stage {
		return domain.MoveAdjacent(stages, stageID, direction)
	})
}

// MoveStage re-inserts draggedID immediately before targetID.
func (e *Editor) MoveStage(ctx context.Context, funnelID, draggedID, targetID string) Result {
	return e.reorder(ctx, funnelID, func(stages []domain.Stage) []domain.Stage {
		return domain.MoveToPosition(stages, draggedID, targetID)
	})
}

// reorder applies move to one funnel's stages and persists every stage order.
func (e *Editor) reorder(ctx context.Context, funnelID string, move func([]domain.Stage) []domain.Stage) Result {
	e.mu.Lock()
	idx := e.funnelIndex(funnelID)
	if idx < 0 {
		e.mu.Unlock()
		return applied(false)
	}
	if !e.beginLocked(funnelID) {
		e.mu.Unlock()
		return pending()
	}
	prev := domain.CloneFunnels(e.funnels)
	current := e.funnels[idx].Stages
	next := move(slices.Clone(current))
	changed := len(domain.ChangedOrders(current, next)) > 0
	if changed {
		e.funnels[idx].Stages = next
	}
	toSave := slices.Clone(next)
	e.mu.Unlock()
	defer e.end(funnelID)

	if !changed {
		return applied(false)
	}
	if err := e.persistOrders(ctx, toSave); err != nil {
		return e.fail(ctx, prev, err)
	}
	return applied(true)
}

// persistOrders sends one order update per stage concurrently.
func (e *Editor) persistOrders(ctx context.Context, stages []domain.Stage) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, stage := range stages {
		id, order := stage.ID, stage.Order
		group.Go(func() error {
			if _, err := e.api.UpdateStage(groupCtx, e.scope, id, nil, &order); err != nil {
				return fmt.Errorf("update stage %q order: %w", id, err)
			}
			return nil
		})
	}
	return group.Wait()
}

// fail reloads the authoritative list and reports it. When the reload also fails, the
// snapshot taken before the optimistic change is restored.
func (e *Editor) fail(ctx context.Context, prev []domain.Funnel, cause error) Result {
	funnels, err := e.api.ListFunnels(ctx, e.scope)
	if err != nil {
		cause = errors.Join(cause, fmt.Errorf("reload %s funnels: %w", e.scope, err))
		e.mu.Lock()
		if prev != nil {
			e.funnels = prev
		}
		funnels = domain.CloneFunnels(e.funnels)
		e.mu.Unlock()
		return Result{Outcome: OutcomeFailed, RevertTo: funnels, Err: cause}
	}
	e.mu.Lock()
	e.funnels = domain.CloneFunnels(funnels)
	e.mu.Unlock()
	return Result{Outcome: OutcomeFailed, RevertTo: domain.CloneFunnels(funnels), Err: cause}
}

func (e *Editor) beginLocked(id string) bool {
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	return true
}

func (e *Editor) end(id string) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}

func (e *Editor) funnelIndex(id string) int {
	return slices.IndexFunc(e.funnels, func(f domain.Funnel) bool { return f.ID == id })
}

func (e *Editor) stageIndex(stageID string) (int, int) {
	for fIdx, funnel := range e.funnels {
		for sIdx, stage := range funnel.Stages {
			if stage.ID == stageID {
				return fIdx, sIdx
			}
		}
	}
	return -1, -1
}
