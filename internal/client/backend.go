package client

import (
	"context"

	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// ServiceBackend implements API over an in-process service, for local mode.
type ServiceBackend struct {
	svc  common.Service
	auth AuthContext
}

var _ API = (*ServiceBackend)(nil)

// NewServiceBackend wraps svc. Mutations are attributed to auth.CurrentUser().
func NewServiceBackend(svc common.Service, auth AuthContext) *ServiceBackend {
	if auth == nil {
		auth = StaticAuth{}
	}
	return &ServiceBackend{svc: svc, auth: auth}
}

func (b *ServiceBackend) actor(ctx context.Context) context.Context {
	if _, ok := app.ActorFromContext(ctx); ok {
		return ctx
	}
	return app.WithActor(ctx, app.Actor{ID: b.auth.CurrentUser()})
}

// ListFunnels implements API.
func (b *ServiceBackend) ListFunnels(ctx context.Context, scope domain.FunnelScope) ([]domain.Funnel, error) {
	return b.svc.ListFunnels(ctx, scope)
}

// GetFunnel implements API.
func (b *ServiceBackend) GetFunnel(ctx context.Context, scope domain.FunnelScope, id string) (domain.Funnel, error) {
	return b.svc.GetFunnel(ctx, scope, id)
}

// CreateFunnel implements API.
func (b *ServiceBackend) CreateFunnel(ctx context.Context, scope domain.FunnelScope, name string) (domain.Funnel, error) {
	return b.svc.CreateFunnel(b.actor(ctx), scope, name)
}

// RenameFunnel implements API.
func (b *ServiceBackend) RenameFunnel(ctx context.Context, scope domain.FunnelScope, id, name string) (domain.Funnel, error) {
	return b.svc.RenameFunnel(b.actor(ctx), scope, id, name)
}

// DeleteFunnel implements API.
func (b *ServiceBackend) DeleteFunnel(ctx context.Context, scope domain.FunnelScope, id string) error {
	return b.svc.DeleteFunnel(b.actor(ctx), scope, id)
}

// CreateStage implements API.
func (b *ServiceBackend) CreateStage(ctx context.Context, scope domain.FunnelScope, funnelID, name string, order int) (domain.Stage, error) {
	return b.svc.CreateStage(b.actor(ctx), scope, app.CreateStageInput{FunnelID: funnelID, Name: name, Order: order})
}

// UpdateStage implements API.
func (b *ServiceBackend) UpdateStage(ctx context.Context, scope domain.FunnelScope, stageID string, name *string, order *int) (domain.Stage, error) {
	return b.svc.UpdateStage(b.actor(ctx), scope, app.UpdateStageInput{StageID: stageID, Name: name, Order: order})
}

// DeleteStage implements API.
func (b *ServiceBackend) DeleteStage(ctx context.Context, scope domain.FunnelScope, stageID string) error {
	return b.svc.DeleteStage(b.actor(ctx), scope, stageID)
}

// ListProjects implements API.
func (b *ServiceBackend) ListProjects(ctx context.Context) ([]domain.Project, error) {
	return b.svc.ListProjects(ctx)
}

// PlaceProject implements API.
func (b *ServiceBackend) PlaceProject(ctx context.Context, id string, placement domain.Placement) (domain.Project, error) {
	return b.svc.PlaceProject(b.actor(ctx), id, placement)
}

// ListSubProjects implements API.
func (b *ServiceBackend) ListSubProjects(ctx context.Context) ([]domain.SubProject, error) {
	return b.svc.ListSubProjects(ctx)
}

// PlaceSubProject implements API.
func (b *ServiceBackend) PlaceSubProject(ctx context.Context, id string, placement domain.Placement) (domain.SubProject, error) {
	return b.svc.PlaceSubProject(b.actor(ctx), id, placement)
}

// SubprojectTree implements API.
func (b *ServiceBackend) SubprojectTree(ctx context.Context, query string) (app.TreeView, error) {
	return b.svc.SubprojectTree(ctx, query)
}

// ListComments implements API.
func (b *ServiceBackend) ListComments(ctx context.Context, target domain.CommentTarget) ([]domain.Comment, error) {
	return b.svc.ListComments(ctx, target)
}

// CreateComment implements API.
func (b *ServiceBackend) CreateComment(ctx context.Context, target domain.CommentTarget, bodyMarkdown string) (domain.Comment, error) {
	return b.svc.CreateComment(b.actor(ctx), app.CreateCommentInput{Target: target, BodyMarkdown: bodyMarkdown})
}
