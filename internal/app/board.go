package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/pipedesk/internal/domain"
)

// ProjectBoard groups projects onto a project funnel's stages.
func (s *Service) ProjectBoard(ctx context.Context, funnelID string) (domain.Board[domain.Project], error) {
	funnel, err := s.GetFunnel(ctx, domain.ScopeProject, funnelID)
	if err != nil {
		return domain.Board[domain.Project]{}, err
	}
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return domain.Board[domain.Project]{}, err
	}
	return domain.BuildBoard(projects, funnel), nil
}

// SubProjectBoard groups subprojects onto a subproject funnel's stages.
func (s *Service) SubProjectBoard(ctx context.Context, funnelID string) (domain.Board[domain.SubProject], error) {
	funnel, err := s.GetFunnel(ctx, domain.ScopeSubProject, funnelID)
	if err != nil {
		return domain.Board[domain.SubProject]{}, err
	}
	subprojects, err := s.repo.ListSubProjects(ctx)
	if err != nil {
		return domain.Board[domain.SubProject]{}, err
	}
	return domain.BuildBoard(subprojects, funnel), nil
}

// TreeView is a filtered project hierarchy plus the keys of nodes to show expanded.
type TreeView struct {
	Nodes []domain.TreeNode
	Open  map[string]bool
	Total int
}

// SubprojectTree builds the project hierarchy, optionally filtered by name.
func (s *Service) SubprojectTree(ctx context.Context, filter string) (TreeView, error) {
	projects, err := s.repo.ListProjects(ctx)
	if err != nil {
		return TreeView{}, err
	}
	subprojects, err := s.repo.ListSubProjects(ctx)
	if err != nil {
		return TreeView{}, err
	}
	nodes, open := domain.FilterTree(domain.BuildTree(projects, subprojects), filter)
	return TreeView{Nodes: nodes, Open: open, Total: domain.CountNodes(nodes)}, nil
}

// CreateCommentInput holds input values for create comment operations.
type CreateCommentInput struct {
	Target       domain.CommentTarget
	BodyMarkdown string
}

// CreateComment adds a markdown comment authored by the context actor.
func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (domain.Comment, error) {
	target, err := domain.NormalizeCommentTarget(in.Target)
	if err != nil {
		return domain.Comment{}, err
	}
	if err := s.ensureCommentTarget(ctx, target); err != nil {
		return domain.Comment{}, err
	}
	actor, _ := ActorFromContext(ctx)
	comment, err := domain.NewComment(domain.CommentInput{
		ID:           s.idGen(),
		Target:       target,
		BodyMarkdown: in.BodyMarkdown,
		AuthorID:     firstNonEmpty(actor.ID, DefaultActorID),
		AuthorName:   actor.Name,
	}, s.clock())
	if err != nil {
		return domain.Comment{}, err
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return domain.Comment{}, err
	}
	scope := domain.ScopeProject
	if target.TargetType == domain.CommentTargetSubProject {
		scope = domain.ScopeSubProject
	}
	s.publish(ctx, scope, "", domain.EntityComment, comment.ID, domain.ChangeOperationCreate)
	return comment, nil
}

// ListComments lists an entity's comments oldest first.
func (s *Service) ListComments(ctx context.Context, target domain.CommentTarget) ([]domain.Comment, error) {
	target, err := domain.NormalizeCommentTarget(target)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCommentTarget(ctx, target); err != nil {
		return nil, err
	}
	return s.repo.ListCommentsByTarget(ctx, target)
}

func (s *Service) ensureCommentTarget(ctx context.Context, target domain.CommentTarget) error {
	var err error
	switch target.TargetType {
	case domain.CommentTargetProject:
		_, err = s.repo.GetProject(ctx, target.TargetID)
	case domain.CommentTargetSubProject:
		_, err = s.repo.GetSubProject(ctx, target.TargetID)
	default:
		return domain.ErrInvalidTargetType
	}
	if err != nil {
		return fmt.Errorf("%s %q: %w", target.TargetType, strings.TrimSpace(target.TargetID), err)
	}
	return nil
}
