package common

import (
	"context"
	"errors"
	"net/http"

	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// Service is the application surface transport adapters call into.
type Service interface {
	ListFunnels(context.Context, domain.FunnelScope) ([]domain.Funnel, error)
	GetFunnel(context.Context, domain.FunnelScope, string) (domain.Funnel, error)
	CreateFunnel(context.Context, domain.FunnelScope, string) (domain.Funnel, error)
	RenameFunnel(context.Context, domain.FunnelScope, string, string) (domain.Funnel, error)
	DeleteFunnel(context.Context, domain.FunnelScope, string) error

	CreateStage(context.Context, domain.FunnelScope, app.CreateStageInput) (domain.Stage, error)
	UpdateStage(context.Context, domain.FunnelScope, app.UpdateStageInput) (domain.Stage, error)
	DeleteStage(context.Context, domain.FunnelScope, string) error
	MoveStage(context.Context, domain.FunnelScope, string, string, domain.Direction) ([]domain.Stage, error)
	MoveStageBefore(context.Context, domain.FunnelScope, string, string, string) ([]domain.Stage, error)

	CreateProject(context.Context, app.CreateProjectInput) (domain.Project, error)
	GetProject(context.Context, string) (domain.Project, error)
	ListProjects(context.Context) ([]domain.Project, error)
	UpdateProject(context.Context, app.UpdateProjectInput) (domain.Project, error)
	PlaceProject(context.Context, string, domain.Placement) (domain.Project, error)
	UnassignProject(context.Context, string) (domain.Project, error)
	DeleteProject(context.Context, string) error

	CreateSubProject(context.Context, app.CreateSubProjectInput) (domain.SubProject, error)
	GetSubProject(context.Context, string) (domain.SubProject, error)
	ListSubProjects(context.Context) ([]domain.SubProject, error)
	UpdateSubProject(context.Context, app.UpdateSubProjectInput) (domain.SubProject, error)
	PlaceSubProject(context.Context, string, domain.Placement) (domain.SubProject, error)
	UnassignSubProject(context.Context, string) (domain.SubProject, error)
	DeleteSubProject(context.Context, string) error

	ProjectBoard(context.Context, string) (domain.Board[domain.Project], error)
	SubProjectBoard(context.Context, string) (domain.Board[domain.SubProject], error)
	SubprojectTree(context.Context, string) (app.TreeView, error)

	CreateComment(context.Context, app.CreateCommentInput) (domain.Comment, error)
	ListComments(context.Context, domain.CommentTarget) ([]domain.Comment, error)
	ListChangeEvents(context.Context, int) ([]domain.ChangeEvent, error)
}

var _ Service = (*app.Service)(nil)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrUnauthorized reports a missing or rejected bearer token.
var ErrUnauthorized = errors.New("unauthorized")

// Error codes shared by the HTTP and MCP surfaces.
const (
	CodeNotFound        = "not_found"
	CodeInvalidArgument = "invalid_argument"
	CodeConflict        = "conflict"
	CodeUnauthorized    = "unauthorized"
	CodeInternal        = "internal"
)

// ErrorCode classifies err into a stable transport code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, app.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, app.ErrFunnelInUse),
		errors.Is(err, app.ErrHasChildren):
		return CodeConflict
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, app.ErrScopeMismatch),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidOrder),
		errors.Is(err, domain.ErrInvalidScope),
		errors.Is(err, domain.ErrInvalidParent),
		errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrStageFunnelMismatch),
		errors.Is(err, domain.ErrInvalidBodyMarkdown),
		errors.Is(err, domain.ErrInvalidTargetType):
		return CodeInvalidArgument
	default:
		return CodeInternal
	}
}

// HTTPStatus maps an error code to its response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
