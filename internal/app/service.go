package app

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hylla/pipedesk/internal/domain"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	Notifier Notifier
	Cache    FunnelCache
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service coordinates funnels, stages, and the entities placed on them.
type Service struct {
	repo     Repository
	idGen    IDGenerator
	clock    Clock
	notifier Notifier
	cache    FunnelCache
	// cacheGen advances before every invalidation.
	cacheGen atomic.Uint64
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:     repo,
		idGen:    idGen,
		clock:    clock,
		notifier: cfg.Notifier,
		cache:    cfg.Cache,
	}
}

// ListFunnels lists funnels of one scope with their stages in order.
func (s *Service) ListFunnels(ctx context.Context, scope domain.FunnelScope) ([]domain.Funnel, error) {
	if s.cache != nil {
		if cached, ok, err := s.cache.GetFunnels(ctx, scope); err == nil && ok {
			return cached, nil
		}
	}
	gen := s.cacheGen.Load()
	funnels, err := s.repo.ListFunnels(ctx, scope)
	if err != nil {
		return nil, err
	}
	for idx := range funnels {
		funnels[idx].Stages = sortStages(funnels[idx].Stages)
	}
	if s.cache != nil {
		_ = s.cache.PutFunnels(ctx, scope, funnels)
		// A write landed between the read and the put; drop what may be stale.
		if s.cacheGen.Load() != gen {
			_ = s.cache.InvalidateFunnels(ctx, scope)
		}
	}
	return funnels, nil
}

// GetFunnel returns one funnel. A non-empty scope must match the funnel's scope.
func (s *Service) GetFunnel(ctx context.Context, scope domain.FunnelScope, id string) (domain.Funnel, error) {
	funnel, err := s.repo.GetFunnel(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Funnel{}, err
	}
	if scope != "" && funnel.Scope != scope {
		return domain.Funnel{}, ErrNotFound
	}
	funnel.Stages = sortStages(funnel.Stages)
	return funnel, nil
}

// CreateFunnel creates an empty funnel.
func (s *Service) CreateFunnel(ctx context.Context, scope domain.FunnelScope, name string) (domain.Funnel, error) {
	funnel, err := domain.NewFunnel(s.idGen(), scope, name, s.clock())
	if err != nil {
		return domain.Funnel{}, err
	}
	if err := s.repo.CreateFunnel(ctx, funnel); err != nil {
		return domain.Funnel{}, err
	}
	s.funnelChanged(ctx, funnel.Scope, funnel.ID, domain.EntityFunnel, funnel.ID, domain.ChangeOperationCreate)
	return funnel, nil
}

// RenameFunnel renames a funnel.
func (s *Service) RenameFunnel(ctx context.Context, scope domain.FunnelScope, id, name string) (domain.Funnel, error) {
	funnel, err := s.GetFunnel(ctx, scope, id)
	if err != nil {
		return domain.Funnel{}, err
	}
	if err := funnel.Rename(name, s.clock()); err != nil {
		return domain.Funnel{}, err
	}
	if err := s.repo.UpdateFunnel(ctx, funnel); err != nil {
		return domain.Funnel{}, err
	}
	s.funnelChanged(ctx, funnel.Scope, funnel.ID, domain.EntityFunnel, funnel.ID, domain.ChangeOperationUpdate)
	return funnel, nil
}

// DeleteFunnel deletes a funnel and its stages. Funnels still referenced by entities are refused.
func (s *Service) DeleteFunnel(ctx context.Context, scope domain.FunnelScope, id string) error {
	funnel, err := s.GetFunnel(ctx, scope, id)
	if err != nil {
		return err
	}
	refs, err := s.repo.CountFunnelReferences(ctx, funnel.ID)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("delete funnel %q: %w", funnel.ID, ErrFunnelInUse)
	}
	if err := s.repo.DeleteFunnel(ctx, funnel.ID); err != nil {
		return err
	}
	s.funnelChanged(ctx, funnel.Scope, funnel.ID, domain.EntityFunnel, funnel.ID, domain.ChangeOperationDelete)
	return nil
}

// CreateStageInput holds input values for create stage operations.
type CreateStageInput struct {
	FunnelID string
	Name     string
	// Order is appended after the last stage when zero.
	Order int
}

// CreateStage creates a stage on a funnel.
func (s *Service) CreateStage(ctx context.Context, scope domain.FunnelScope, in CreateStageInput) (domain.Stage, error) {
	funnel, err := s.GetFunnel(ctx, scope, in.FunnelID)
	if err != nil {
		return domain.Stage{}, err
	}
	order := in.Order
	if order == 0 {
		order = domain.NextStageOrder(funnel.Stages)
	}
	stage, err := domain.NewStage(s.idGen(), funnel.ID, in.Name, order, s.clock())
	if err != nil {
		return domain.Stage{}, err
	}
	if err := s.repo.CreateStage(ctx, stage); err != nil {
		return domain.Stage{}, err
	}
	s.funnelChanged(ctx, funnel.Scope, funnel.ID, domain.EntityStage, stage.ID, domain.ChangeOperationCreate)
	return stage, nil
}

// UpdateStageInput holds input values for update stage operations. Nil fields are left as is.
type UpdateStageInput struct {
	StageID string
	Name    *string
	Order   *int
}

// UpdateStage renames a stage and/or sets its raw order.
func (s *Service) UpdateStage(ctx context.Context, scope domain.FunnelScope, in UpdateStageInput) (domain.Stage, error) {
	stage, funnel, err := s.stageInScope(ctx, scope, in.StageID)
	if err != nil {
		return domain.Stage{}, err
	}
	now := s.clock()
	op := domain.ChangeOperationUpdate
	if in.Name != nil {
		if err := stage.Rename(*in.Name, now); err != nil {
			return domain.Stage{}, err
		}
	}
	if in.Order != nil {
		if err := stage.SetOrder(*in.Order, now); err != nil {
			return domain.Stage{}, err
		}
		if in.Name == nil {
			op = domain.ChangeOperationReorder
		}
	}
	if err := s.repo.UpdateStage(ctx, stage); err != nil {
		return domain.Stage{}, err
	}
	s.funnelChanged(ctx, funnel.Scope, funnel.ID, domain.EntityStage, stage.ID, op)
	return stage, nil
}

// DeleteStage deletes a stage, unassigns entities sitting on it, and re-sequences the rest
// in one repository transaction.
func (s *Service) DeleteStage(ctx context.Context, scope domain.FunnelScope, stageID string) error {
	stage, funnel, err := s.stageInScope(ctx, scope, stageID)
	if err != nil {
		return err
	}
	remaining := slices.DeleteFunc(slices.Clone(funnel.Stages), func(st domain.Stage) bool {
		return st.ID == stage.ID
	})
	next := domain.Resequence(remaining)
	var reordered []domain.Stage
	if len(domain.ChangedOrders(remaining, next)) > 0 {
		now := s.clock().UTC()
		for idx := range next {
			next[idx].UpdatedAt = now
		}
		reordered = next
	}
	if err := s.repo.DeleteStage(ctx, stage.ID, reordered); err != nil {
		s.invalidateFunnels(ctx, funnel.Scope)
		return err
	}
	s.funnelChanged(ctx, funnel.Scope, funnel.ID, domain.EntityStage, stage.ID, domain.ChangeOperationDelete)
	return nil
}

// MoveStage swaps a stage with its neighbor and persists the dense order of every stage.
func (s *Service) MoveStage(ctx context.Context, scope domain.FunnelScope, funnelID, stageID string, direction domain.Direction) ([]domain.Stage, error) {
	funnel, err := s.GetFunnel(ctx, scope, funnelID)
	if err != nil {
		return nil, err
	}
	if !funnel.HasStage(stageID) {
		return nil, fmt.Errorf("stage %q: %w", stageID, ErrNotFound)
	}
	direction, err = domain.ParseDirection(string(direction))
	if err != nil {
		return nil, err
	}
	return s.saveReorder(ctx, funnel, stageID, domain.MoveAdjacent(funnel.Stages, stageID, direction))
}

// MoveStageBefore re-inserts draggedID immediately before targetID.
func (s *Service) MoveStageBefore(ctx context.Context, scope domain.FunnelScope, funnelID, draggedID, targetID string) ([]domain.Stage, error) {
	funnel, err := s.GetFunnel(ctx, scope, funnelID)
	if err != nil {
		return nil, err
	}
	for _, id := range []string{draggedID, targetID} {
		if !funnel.HasStage(id) {
			return nil, fmt.Errorf("stage %q: %w", id, ErrNotFound)
		}
	}
	return s.saveReorder(ctx, funnel, draggedID, domain.MoveToPosition(funnel.Stages, draggedID, targetID))
}

// saveReorder persists next when any stage order changed.
func (s *Service) saveReorder(ctx context.Context, funnel domain.Funnel, stageID string, next []domain.Stage) ([]domain.Stage, error) {
	if len(domain.ChangedOrders(funnel.Stages, next)) == 0 {
		return next, nil
	}
	now := s.clock().UTC()
	for idx := range next {
		next[idx].UpdatedAt = now
	}
	if err := s.repo.SaveStageOrders(ctx, funnel.ID, next); err != nil {
		return nil, err
	}
	s.funnelChanged(ctx, funnel.Scope, funnel.ID, domain.EntityStage, stageID, domain.ChangeOperationReorder)
	return next, nil
}

// stageInScope loads a stage and its funnel, hiding stages of the other scope.
func (s *Service) stageInScope(ctx context.Context, scope domain.FunnelScope, stageID string) (domain.Stage, domain.Funnel, error) {
	stage, err := s.repo.GetStage(ctx, strings.TrimSpace(stageID))
	if err != nil {
		return domain.Stage{}, domain.Funnel{}, err
	}
	funnel, err := s.GetFunnel(ctx, scope, stage.FunnelID)
	if err != nil {
		return domain.Stage{}, domain.Funnel{}, err
	}
	return stage, funnel, nil
}

// ListChangeEvents lists the most recent activity entries.
func (s *Service) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	return s.repo.ListChangeEvents(ctx, limit)
}

// funnelChanged drops cached funnel lists and notifies subscribers.
func (s *Service) funnelChanged(ctx context.Context, scope domain.FunnelScope, funnelID string, entityType domain.EntityType, entityID string, op domain.ChangeOperation) {
	s.invalidateFunnels(ctx, scope)
	s.publish(ctx, scope, funnelID, entityType, entityID, op)
}

// invalidateFunnels drops the cached list for scope.
func (s *Service) invalidateFunnels(ctx context.Context, scope domain.FunnelScope) {
	if s.cache == nil {
		return
	}
	s.cacheGen.Add(1)
	_ = s.cache.InvalidateFunnels(ctx, scope)
}

// publish sends a board event when a notifier is configured.
func (s *Service) publish(ctx context.Context, scope domain.FunnelScope, funnelID string, entityType domain.EntityType, entityID string, op domain.ChangeOperation) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(domain.BoardEvent{
		Scope:      scope,
		FunnelID:   funnelID,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		ActorID:    ActorIDFromContext(ctx),
		OccurredAt: s.clock().UTC(),
	})
}

// sortStages orders stages by order then id.
func sortStages(stages []domain.Stage) []domain.Stage {
	out := slices.Clone(stages)
	if out == nil {
		out = []domain.Stage{}
	}
	slices.SortStableFunc(out, func(a, b domain.Stage) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), strings.Compare(a.ID, b.ID))
	})
	return out
}
