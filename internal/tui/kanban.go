package tui

import (
	"context"
	"strings"

	"github.com/hylla/pipedesk/internal/client"
	"github.com/hylla/pipedesk/internal/domain"
)

// laneKind identifies what a board lane holds.
type laneKind int

const (
	laneUnassigned laneKind = iota
	laneStage
	laneElsewhere
)

// card is one entity rendered on the board.
type card struct {
	ID          string
	Title       string
	Detail      string
	Description string
	Target      domain.CommentTarget
}

// lane is one rendered board column.
type lane struct {
	Kind    laneKind
	StageID string
	Name    string
	Cards   []card
}

// outcome is the scope-independent form of a board action result.
type outcome struct {
	Outcome client.Outcome
	Changed bool
	Err     error
}

// kanban is the board controller seen by the model, independent of entity type.
type kanban interface {
	Scope() domain.FunnelScope
	Load(ctx context.Context) error
	Funnel() domain.Funnel
	Lanes() []lane
	InFlight(id string) bool
	Drop(ctx context.Context, id, stageID string) outcome
	MoveToFunnel(ctx context.Context, id string) outcome
	Unassign(ctx context.Context, id string) outcome
}

// boardAdapter renders a client.Board of any entity type as lanes of cards.
type boardAdapter[E domain.Placeable[E]] struct {
	board  *client.Board[E]
	scope  domain.FunnelScope
	toCard func(entity E, all []E) card
}

// newKanban builds the board controller for scope and funnelID.
func newKanban(api client.API, scope domain.FunnelScope, funnelID string) kanban {
	if scope == domain.ScopeSubProject {
		return boardAdapter[domain.SubProject]{
			board:  client.NewBoard(api, client.SubProjectSource(api), funnelID),
			scope:  domain.ScopeSubProject,
			toCard: subProjectCard,
		}
	}
	return boardAdapter[domain.Project]{
		board:  client.NewBoard(api, client.ProjectSource(api), funnelID),
		scope:  domain.ScopeProject,
		toCard: projectCard,
	}
}

func (a boardAdapter[E]) Scope() domain.FunnelScope { return a.scope }

func (a boardAdapter[E]) Load(ctx context.Context) error { return a.board.Load(ctx) }

func (a boardAdapter[E]) Funnel() domain.Funnel { return a.board.Funnel() }

func (a boardAdapter[E]) InFlight(id string) bool { return a.board.InFlight(id) }

// Lanes returns the unassigned lane, one lane per stage, then entities on other funnels.
func (a boardAdapter[E]) Lanes() []lane {
	all := a.board.Entities()
	view := a.board.View()
	lanes := make([]lane, 0, len(view.Columns)+2)
	lanes = append(lanes, lane{Kind: laneUnassigned, Name: "Unassigned", Cards: a.cards(view.Unassigned, all)})
	for _, column := range view.Columns {
		lanes = append(lanes, lane{
			Kind:    laneStage,
			StageID: column.Stage.ID,
			Name:    column.Stage.Name,
			Cards:   a.cards(column.Entities, all),
		})
	}
	elsewhere := make([]E, 0)
	for _, entity := range all {
		if entity.Placement().FunnelID != view.Funnel.ID {
			elsewhere = append(elsewhere, entity)
		}
	}
	lanes = append(lanes, lane{Kind: laneElsewhere, Name: "Other funnels", Cards: a.cards(elsewhere, all)})
	return lanes
}

func (a boardAdapter[E]) cards(entities, all []E) []card {
	out := make([]card, 0, len(entities))
	for _, entity := range entities {
		out = append(out, a.toCard(entity, all))
	}
	return out
}

func (a boardAdapter[E]) Drop(ctx context.Context, id, stageID string) outcome {
	return outcomeOf(a.board.Drop(ctx, id, stageID))
}

func (a boardAdapter[E]) MoveToFunnel(ctx context.Context, id string) outcome {
	return outcomeOf(a.board.MoveToFunnel(ctx, id))
}

func (a boardAdapter[E]) Unassign(ctx context.Context, id string) outcome {
	return outcomeOf(a.board.Unassign(ctx, id))
}

func outcomeOf[E any](res client.BoardResult[E]) outcome {
	return outcome{Outcome: res.Outcome, Changed: res.Changed, Err: res.Err}
}

// projectCard shows the first description line under the project name.
func projectCard(p domain.Project, _ []domain.Project) card {
	detail, _, _ := strings.Cut(strings.TrimSpace(p.Description), "\n")
	return card{
		ID:          p.ID,
		Title:       p.Name,
		Detail:      detail,
		Description: p.Description,
		Target:      domain.CommentTarget{TargetType: domain.CommentTargetProject, TargetID: p.ID},
	}
}

// subProjectCard shows the parent subproject name when the parent is another subproject.
func subProjectCard(sp domain.SubProject, all []domain.SubProject) card {
	detail := ""
	if sp.ParentSubprojectID != "" {
		detail = "↳ " + sp.ParentSubprojectID
		for _, parent := range all {
			if parent.ID == sp.ParentSubprojectID {
				detail = "↳ " + parent.Name
				break
			}
		}
	}
	return card{
		ID:     sp.ID,
		Title:  sp.Name,
		Detail: detail,
		Target: domain.CommentTarget{TargetType: domain.CommentTargetSubProject, TargetID: sp.ID},
	}
}
