package client

import (
	"context"
	"errors"
	"testing"

	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// TestServiceBackendLocalMode verifies controllers run in-process with actor attribution.
func TestServiceBackendLocalMode(t *testing.T) {
	svc, _, _ := newHTTPFixture(t)
	ctx := context.Background()
	backend := NewServiceBackend(svc, StaticAuth{User: "grace"})

	editor := NewEditor(backend, domain.ScopeProject)
	if err := editor.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res := editor.CreateFunnel(ctx, "Sales"); !res.Changed {
		t.Fatalf("CreateFunnel() = %#v", res)
	}
	funnelID := editor.Funnels()[0].ID
	for _, name := range []string{"Lead", "Won"} {
		if res := editor.CreateStage(ctx, funnelID, name); !res.Changed {
			t.Fatalf("CreateStage(%s) = %#v", name, res)
		}
	}
	won := editor.Funnels()[0].Stages[1]
	if res := editor.ReorderStage(ctx, funnelID, won.ID, domain.DirectionUp); !res.Changed {
		t.Fatalf("ReorderStage() = %#v", res)
	}
	stored, err := svc.GetFunnel(ctx, domain.ScopeProject, funnelID)
	if err != nil {
		t.Fatalf("GetFunnel() error = %v", err)
	}
	if stored.Stages[0].ID != won.ID {
		t.Fatalf("first stage = %q, want %q", stored.Stages[0].ID, won.ID)
	}

	project, err := svc.CreateProject(ctx, app.CreateProjectInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	board := NewBoard(backend, ProjectSource(backend), funnelID)
	if err := board.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res := board.Drop(ctx, project.ID, won.ID); res.Changed {
		t.Fatalf("Drop(unplaced project) = %#v, want no-op for entity off this board", res)
	}
	if res := board.MoveToFunnel(ctx, project.ID); !res.Changed {
		t.Fatalf("MoveToFunnel() = %#v", res)
	}
	if res := board.Drop(ctx, project.ID, won.ID); !res.Changed {
		t.Fatalf("Drop() = %#v", res)
	}

	comment, err := backend.CreateComment(ctx, domain.CommentTarget{TargetType: domain.CommentTargetProject, TargetID: project.ID}, "call back")
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if comment.AuthorID != "grace" {
		t.Fatalf("author = %q, want grace", comment.AuthorID)
	}
	events, err := svc.ListChangeEvents(ctx, 50)
	if err != nil {
		t.Fatalf("ListChangeEvents() error = %v", err)
	}
	attributed := 0
	for _, ev := range events {
		if ev.ActorID == "grace" {
			attributed++
		}
	}
	if attributed == 0 {
		t.Fatalf("no events attributed to grace: %#v", events)
	}

	res := editor.DeleteFunnel(ctx, funnelID)
	if !errors.Is(res.Err, ErrFunnelDeleteFailed) || !errors.Is(res.Err, app.ErrFunnelInUse) {
		t.Fatalf("DeleteFunnel(in use) = %#v", res)
	}
}
