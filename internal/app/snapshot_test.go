package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hylla/pipedesk/internal/domain"
)

func TestExportImportSnapshotRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()
	funnel := seedFunnel(t, svc, domain.ScopeProject, "Lead", "Won")
	subFunnel := seedFunnel(t, svc, domain.ScopeSubProject, "Draft")
	project, _ := svc.CreateProject(ctx, CreateProjectInput{Name: "Acme", Description: "first"})
	if _, err := svc.PlaceProject(ctx, project.ID, domain.Placement{FunnelID: funnel.ID, StageID: funnel.Stages[1].ID}); err != nil {
		t.Fatalf("PlaceProject() error = %v", err)
	}
	sp, _ := svc.CreateSubProject(ctx, CreateSubProjectInput{Name: "Design", ProjectID: project.ID})
	if _, err := svc.PlaceSubProject(ctx, sp.ID, domain.Placement{FunnelID: subFunnel.ID, StageID: subFunnel.Stages[0].ID}); err != nil {
		t.Fatalf("PlaceSubProject() error = %v", err)
	}
	if _, err := svc.CreateComment(ctx, CreateCommentInput{
		Target:       domain.CommentTarget{TargetType: domain.CommentTargetSubProject, TargetID: sp.ID},
		BodyMarkdown: "ready for review",
	}); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	if snap.Version != SnapshotVersion {
		t.Fatalf("unexpected version %q", snap.Version)
	}
	if len(snap.Funnels) != 2 || len(snap.Stages) != 3 || len(snap.Projects) != 1 || len(snap.SubProjects) != 1 || len(snap.Comments) != 1 {
		t.Fatalf("unexpected snapshot sizes f=%d s=%d p=%d sp=%d c=%d", len(snap.Funnels), len(snap.Stages), len(snap.Projects), len(snap.SubProjects), len(snap.Comments))
	}
	if snap.Projects[0].StageID != funnel.Stages[1].ID {
		t.Fatalf("expected project placement in snapshot, got %#v", snap.Projects[0])
	}

	target := newFakeRepo()
	importer := newTestService(target, ServiceConfig{})
	if err := importer.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	if err := importer.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("ImportSnapshot(again) error = %v", err)
	}
	if len(target.comments) != 1 {
		t.Fatalf("expected comments to import once, got %d", len(target.comments))
	}
	board, err := importer.ProjectBoard(ctx, funnel.ID)
	if err != nil {
		t.Fatalf("ProjectBoard() error = %v", err)
	}
	if len(board.Columns) != 2 || len(board.Columns[1].Entities) != 1 {
		t.Fatalf("unexpected imported board %#v", board.Columns)
	}
}

func TestSnapshotValidateRejectsBrokenReferences(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	base := func() Snapshot {
		return Snapshot{
			Funnels: []SnapshotFunnel{{ID: "f1", Scope: domain.ScopeProject, Name: "Sales"}},
			Stages:  []SnapshotStage{{ID: "s1", FunnelID: "f1", Name: "Lead", Order: 1}},
			Projects: []SnapshotProject{{
				ID: "p1", Name: "Acme", FunnelID: "f1", StageID: "s1", CreatedAt: now, UpdatedAt: now,
			}},
			SubProjects: []SnapshotSubProject{{ID: "sp1", Name: "Design", ProjectID: "p1"}},
		}
	}
	valid := base()
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Snapshot)
		want   string
	}{
		{name: "version", mutate: func(s *Snapshot) { s.Version = "other" }, want: "unsupported snapshot version"},
		{name: "stage funnel", mutate: func(s *Snapshot) { s.Stages[0].FunnelID = "nope" }, want: "unknown funnel_id"},
		{name: "stage order", mutate: func(s *Snapshot) { s.Stages[0].Order = 0 }, want: "order must be"},
		{name: "double parent", mutate: func(s *Snapshot) { s.SubProjects[0].ParentSubprojectID = "sp1" }, want: "invalid parent"},
		{name: "unknown project", mutate: func(s *Snapshot) { s.SubProjects[0].ProjectID = "p9" }, want: "unknown project_id"},
		{name: "comment target", mutate: func(s *Snapshot) {
			s.Comments = []SnapshotComment{{ID: "c1", TargetType: domain.CommentTargetProject, TargetID: "p9", BodyMarkdown: "x"}}
		}, want: "unknown project"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := base()
			tc.mutate(&snap)
			err := snap.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tc.want)
			}
		})
	}

	scope := base()
	scope.Funnels[0].Scope = domain.ScopeSubProject
	if err := scope.Validate(); !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch, got %v", err)
	}
}
