// Package client implements the funnel editor and kanban board controllers used by front ends,
// over either the REST API or an in-process service.
package client

import (
	"context"
	"errors"
	"strings"

	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// API is the backend surface the controllers need.
type API interface {
	ListFunnels(ctx context.Context, scope domain.FunnelScope) ([]domain.Funnel, error)
	GetFunnel(ctx context.Context, scope domain.FunnelScope, id string) (domain.Funnel, error)
	CreateFunnel(ctx context.Context, scope domain.FunnelScope, name string) (domain.Funnel, error)
	RenameFunnel(ctx context.Context, scope domain.FunnelScope, id, name string) (domain.Funnel, error)
	DeleteFunnel(ctx context.Context, scope domain.FunnelScope, id string) error

	CreateStage(ctx context.Context, scope domain.FunnelScope, funnelID, name string, order int) (domain.Stage, error)
	UpdateStage(ctx context.Context, scope domain.FunnelScope, stageID string, name *string, order *int) (domain.Stage, error)
	DeleteStage(ctx context.Context, scope domain.FunnelScope, stageID string) error

	ListProjects(ctx context.Context) ([]domain.Project, error)
	PlaceProject(ctx context.Context, id string, placement domain.Placement) (domain.Project, error)
	ListSubProjects(ctx context.Context) ([]domain.SubProject, error)
	PlaceSubProject(ctx context.Context, id string, placement domain.Placement) (domain.SubProject, error)

	SubprojectTree(ctx context.Context, query string) (app.TreeView, error)
	ListComments(ctx context.Context, target domain.CommentTarget) ([]domain.Comment, error)
	CreateComment(ctx context.Context, target domain.CommentTarget, bodyMarkdown string) (domain.Comment, error)
}

// AuthContext supplies the caller's credentials. It is injected, never read from globals.
type AuthContext interface {
	Token(ctx context.Context) (string, error)
	CurrentUser() string
}

// StaticAuth is an AuthContext with a fixed token.
type StaticAuth struct {
	TokenValue string
	User       string
}

// Token returns the fixed token.
func (a StaticAuth) Token(context.Context) (string, error) {
	return strings.TrimSpace(a.TokenValue), nil
}

// CurrentUser returns the configured user, or the default actor id.
func (a StaticAuth) CurrentUser() string {
	if user := strings.TrimSpace(a.User); user != "" {
		return user
	}
	return app.DefaultActorID
}

// Errors returned by HTTPClient, matched by APIError.Unwrap.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrServer       = errors.New("server error")
)

// ErrFunnelDeleteFailed is the generic failure reported when a funnel delete is refused.
var ErrFunnelDeleteFailed = errors.New("funnel could not be deleted; it may still be used by projects")
