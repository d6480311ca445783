package app

import (
	"context"

	"github.com/hylla/pipedesk/internal/domain"
)

// Repository represents repository data used by this package.
type Repository interface {
	CreateFunnel(context.Context, domain.Funnel) error
	UpdateFunnel(context.Context, domain.Funnel) error
	GetFunnel(context.Context, string) (domain.Funnel, error)
	ListFunnels(context.Context, domain.FunnelScope) ([]domain.Funnel, error)
	DeleteFunnel(context.Context, string) error
	CountFunnelReferences(context.Context, string) (int, error)

	CreateStage(context.Context, domain.Stage) error
	UpdateStage(context.Context, domain.Stage) error
	GetStage(context.Context, string) (domain.Stage, error)
	// DeleteStage removes the stage and writes the given orders of its siblings atomically.
	DeleteStage(ctx context.Context, stageID string, reordered []domain.Stage) error
	SaveStageOrders(context.Context, string, []domain.Stage) error

	CreateProject(context.Context, domain.Project) error
	UpdateProject(context.Context, domain.Project) error
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context) ([]domain.Project, error)
	DeleteProject(context.Context, string) error

	CreateSubProject(context.Context, domain.SubProject) error
	UpdateSubProject(context.Context, domain.SubProject) error
	GetSubProject(context.Context, string) (domain.SubProject, error)
	ListSubProjects(context.Context) ([]domain.SubProject, error)
	DeleteSubProject(context.Context, string) error

	CreateComment(context.Context, domain.Comment) error
	ListCommentsByTarget(context.Context, domain.CommentTarget) ([]domain.Comment, error)
	ListChangeEvents(context.Context, int) ([]domain.ChangeEvent, error)
}

// Notifier receives board events after a mutation commits.
type Notifier interface {
	Publish(domain.BoardEvent)
}

// FunnelCache caches funnel lists (with nested stages) per scope.
type FunnelCache interface {
	GetFunnels(context.Context, domain.FunnelScope) ([]domain.Funnel, bool, error)
	PutFunnels(context.Context, domain.FunnelScope, []domain.Funnel) error
	InvalidateFunnels(context.Context, domain.FunnelScope) error
}
