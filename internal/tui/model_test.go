package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/hylla/pipedesk/internal/adapters/storage/sqlstore"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/client"
	"github.com/hylla/pipedesk/internal/domain"
)

// boardFixture holds a seeded service and the ids the tests drive.
type boardFixture struct {
	svc     *app.Service
	repo    *sqlstore.Repository
	api     client.API
	funnel  domain.Funnel
	lead    domain.Stage
	won     domain.Stage
	acme    domain.Project
	beta    domain.Project
	phase   domain.SubProject
	design  domain.SubProject
	subFunn domain.Funnel
}

// newBoardFixture seeds a Sales funnel (Lead, Won) with Acme on Lead and Beta off-funnel.
func newBoardFixture(t *testing.T) boardFixture {
	t.Helper()
	repo, err := sqlstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	var counter atomic.Int64
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	svc := app.NewService(repo, func() string {
		return fmt.Sprintf("id-%02d", counter.Add(1))
	}, func() time.Time { return now }, app.ServiceConfig{})

	ctx := context.Background()
	f := boardFixture{svc: svc, repo: repo, api: client.NewServiceBackend(svc, client.StaticAuth{User: "grace"})}
	if f.funnel, err = svc.CreateFunnel(ctx, domain.ScopeProject, "Sales"); err != nil {
		t.Fatalf("CreateFunnel() error = %v", err)
	}
	if f.lead, err = svc.CreateStage(ctx, domain.ScopeProject, app.CreateStageInput{FunnelID: f.funnel.ID, Name: "Lead"}); err != nil {
		t.Fatalf("CreateStage(Lead) error = %v", err)
	}
	if f.won, err = svc.CreateStage(ctx, domain.ScopeProject, app.CreateStageInput{FunnelID: f.funnel.ID, Name: "Won"}); err != nil {
		t.Fatalf("CreateStage(Won) error = %v", err)
	}
	if f.acme, err = svc.CreateProject(ctx, app.CreateProjectInput{Name: "Acme", Description: "Industrial **anvils**"}); err != nil {
		t.Fatalf("CreateProject(Acme) error = %v", err)
	}
	if f.acme, err = svc.PlaceProject(ctx, f.acme.ID, domain.Placement{FunnelID: f.funnel.ID, StageID: f.lead.ID}); err != nil {
		t.Fatalf("PlaceProject() error = %v", err)
	}
	if f.beta, err = svc.CreateProject(ctx, app.CreateProjectInput{Name: "Beta"}); err != nil {
		t.Fatalf("CreateProject(Beta) error = %v", err)
	}
	if f.phase, err = svc.CreateSubProject(ctx, app.CreateSubProjectInput{Name: "Phase 1", ProjectID: f.acme.ID}); err != nil {
		t.Fatalf("CreateSubProject(Phase 1) error = %v", err)
	}
	if f.design, err = svc.CreateSubProject(ctx, app.CreateSubProjectInput{Name: "Design", ParentSubprojectID: f.phase.ID}); err != nil {
		t.Fatalf("CreateSubProject(Design) error = %v", err)
	}
	if f.subFunn, err = svc.CreateFunnel(ctx, domain.ScopeSubProject, "Delivery"); err != nil {
		t.Fatalf("CreateFunnel(Delivery) error = %v", err)
	}
	return f
}

func (f boardFixture) project(t *testing.T, id string) domain.Project {
	t.Helper()
	project, err := f.svc.GetProject(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	return project
}

func (f boardFixture) stageNames(t *testing.T, funnelID string) []string {
	t.Helper()
	funnel, err := f.svc.GetFunnel(context.Background(), domain.ScopeProject, funnelID)
	if err != nil {
		t.Fatalf("GetFunnel() error = %v", err)
	}
	names := make([]string, 0, len(funnel.Stages))
	for _, stage := range funnel.Stages {
		names = append(names, stage.Name)
	}
	return names
}

// TestModelLoadsBoardLanes verifies lanes are unassigned, stages in order, then other funnels.
func TestModelLoadsBoardLanes(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))
	if m.err != nil {
		t.Fatalf("unexpected load error %v", m.err)
	}
	if m.funnelID != f.funnel.ID {
		t.Fatalf("funnelID = %q, want %q", m.funnelID, f.funnel.ID)
	}
	lanes := m.lanes()
	got := make([]string, 0, len(lanes))
	for _, ln := range lanes {
		got = append(got, fmt.Sprintf("%s:%d", ln.Name, len(ln.Cards)))
	}
	want := "Unassigned:0,Lead:1,Won:0,Other funnels:1"
	if strings.Join(got, ",") != want {
		t.Fatalf("lanes = %s, want %s", strings.Join(got, ","), want)
	}
	if lanes[1].Cards[0].Detail != "Industrial **anvils**" {
		t.Fatalf("unexpected card detail %q", lanes[1].Cards[0].Detail)
	}

	if v := m.View(); v.Content == nil || v.MouseMode != tea.MouseModeCellMotion {
		t.Fatal("expected board view with mouse enabled")
	}
	rendered := m.viewContent()
	for _, want := range []string{"pipedesk", "Sales", "Lead", "Acme", "Unassigned"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected %q in board view\n%s", want, rendered)
		}
	}
}

// TestModelMovesCardAcrossStages verifies ] persists a drop and the card stays focused.
func TestModelMovesCardAcrossStages(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))

	m = applyMsg(t, m, keyRune('l'))
	if c, ok := m.selectedCard(); !ok || c.ID != f.acme.ID {
		t.Fatalf("expected Acme selected, got %#v", c)
	}
	m = applyMsg(t, m, keyRune(']'))
	if got := f.project(t, f.acme.ID).StageID; got != f.won.ID {
		t.Fatalf("stored stage = %q, want %q", got, f.won.ID)
	}
	if !strings.Contains(m.status, "moved Acme to Won") {
		t.Fatalf("unexpected status %q", m.status)
	}
	lanes := m.lanes()
	li, _ := m.selection(lanes)
	if lanes[li].Name != "Won" {
		t.Fatalf("focus lane = %q, want Won", lanes[li].Name)
	}

	m = applyMsg(t, m, keyRune(']'))
	if m.status != "no stage that way" {
		t.Fatalf("expected boundary status, got %q", m.status)
	}

	m = applyMsg(t, m, keyRune('['))
	if got := f.project(t, f.acme.ID).StageID; got != f.lead.ID {
		t.Fatalf("stored stage after [ = %q, want %q", got, f.lead.ID)
	}
}

// TestModelPullsAndRemovesCards verifies m, ], and x drive funnel membership.
func TestModelPullsAndRemovesCards(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))

	for range 3 {
		m = applyMsg(t, m, keyRune('l'))
	}
	if c, ok := m.selectedCard(); !ok || c.ID != f.beta.ID {
		t.Fatalf("expected Beta selected, got %#v", c)
	}

	m = applyMsg(t, m, keyRune('m'))
	beta := f.project(t, f.beta.ID)
	if beta.FunnelID != f.funnel.ID || beta.StageID != "" {
		t.Fatalf("expected Beta on funnel without stage, got %#v", beta.Placement())
	}
	if m.lanes()[0].Cards[0].ID != f.beta.ID {
		t.Fatalf("expected Beta in unassigned lane, got %#v", m.lanes()[0])
	}

	m = applyMsg(t, m, keyRune(']'))
	if got := f.project(t, f.beta.ID).StageID; got != f.lead.ID {
		t.Fatalf("stored stage = %q, want first stage %q", got, f.lead.ID)
	}

	m = applyMsg(t, m, keyRune('x'))
	if placement := f.project(t, f.beta.ID).Placement(); !placement.IsZero() {
		t.Fatalf("expected Beta unassigned, got %#v", placement)
	}
	if !strings.Contains(m.status, "removed Beta from funnel") {
		t.Fatalf("unexpected status %q", m.status)
	}
}

// TestSettingsReordersStages verifies K/J persist a full stage order.
func TestSettingsReordersStages(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))

	m = applyMsg(t, m, keyRune('S'))
	if m.mode != modeSettings {
		t.Fatalf("expected settings mode, got %v", m.mode)
	}
	m = applyMsg(t, m, keyRune('J'))
	if got := strings.Join(f.stageNames(t, f.funnel.ID), ","); got != "Won,Lead" {
		t.Fatalf("stored stages = %s, want Won,Lead", got)
	}
	if m.stageIdx != 1 {
		t.Fatalf("expected moved stage to stay selected, got index %d", m.stageIdx)
	}

	m = applyMsg(t, m, keyRune('J'))
	if m.status != "no change" {
		t.Fatalf("expected boundary move to be a no-op, got %q", m.status)
	}
	if !strings.Contains(m.viewContent(), "Won") {
		t.Fatal("expected stage list in settings view")
	}
}

// TestSettingsFunnelAndStageLifecycle verifies create, rename, and delete through prompts.
func TestSettingsFunnelAndStageLifecycle(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))
	m = applyMsg(t, m, keyRune('S'))

	m = applyMsg(t, m, keyRune('N'))
	if m.mode != modePrompt {
		t.Fatalf("expected prompt mode, got %v", m.mode)
	}
	m = fillInput(t, m, "Renewals")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	funnel, ok := m.currentFunnel()
	if !ok || funnel.Name != "Renewals" {
		t.Fatalf("expected new funnel selected, got %#v", funnel)
	}
	if m.mode != modeSettings {
		t.Fatalf("expected settings mode after prompt, got %v", m.mode)
	}

	for _, name := range []string{"Intro", "Signed"} {
		m = applyMsg(t, m, keyRune('n'))
		m = fillInput(t, m, name)
		m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	}
	if got := strings.Join(f.stageNames(t, funnel.ID), ","); got != "Intro,Signed" {
		t.Fatalf("stored stages = %s", got)
	}

	m = applyMsg(t, m, keyRune('e'))
	m = fillInput(t, m, "Kickoff")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if got := strings.Join(f.stageNames(t, funnel.ID), ","); got != "Kickoff,Signed" {
		t.Fatalf("stored stages after rename = %s", got)
	}

	m = applyMsg(t, m, keyRune('d'))
	m = applyMsg(t, m, keyRune('n'))
	if m.status != "cancelled" {
		t.Fatalf("expected cancelled delete, got %q", m.status)
	}
	m = applyMsg(t, m, keyRune('d'))
	m = applyMsg(t, m, keyRune('y'))
	if got := f.stageNames(t, funnel.ID); len(got) != 1 || got[0] != "Signed" {
		t.Fatalf("stored stages after delete = %v", got)
	}

	m = applyMsg(t, m, keyRune('R'))
	m = fillInput(t, m, "Upsell")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if stored, err := f.svc.GetFunnel(context.Background(), domain.ScopeProject, funnel.ID); err != nil || stored.Name != "Upsell" {
		t.Fatalf("GetFunnel() = %#v, %v", stored, err)
	}

	m = applyMsg(t, m, keyRune('D'))
	m = applyMsg(t, m, keyRune('y'))
	if _, ok := m.editor.Funnel(funnel.ID); ok {
		t.Fatal("expected funnel removed")
	}
	if m.funnelID != f.funnel.ID {
		t.Fatalf("expected selection to fall back to %q, got %q", f.funnel.ID, m.funnelID)
	}
}

// TestSettingsDeleteFunnelInUseShowsGenericError verifies a refused delete restores the funnel.
func TestSettingsDeleteFunnelInUseShowsGenericError(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))
	m = applyMsg(t, m, keyRune('S'))
	m = applyMsg(t, m, keyRune('D'))
	if m.mode != modeConfirm {
		t.Fatalf("expected confirm mode, got %v", m.mode)
	}
	m = applyMsg(t, m, keyRune('y'))
	if m.status != client.ErrFunnelDeleteFailed.Error() {
		t.Fatalf("unexpected status %q", m.status)
	}
	if _, ok := m.editor.Funnel(f.funnel.ID); !ok {
		t.Fatal("expected funnel restored after refused delete")
	}
}

// TestTreeModeExpandsAndFilters verifies local toggles and server-side filtering.
func TestTreeModeExpandsAndFilters(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))

	m = applyMsg(t, m, keyRune('t'))
	if m.mode != modeTree {
		t.Fatalf("expected tree mode, got %v", m.mode)
	}
	if got := treeRowNames(m); got != "Acme,Beta" {
		t.Fatalf("collapsed rows = %s", got)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if got := treeRowNames(m); got != "Acme,Phase 1,Beta" {
		t.Fatalf("expanded rows = %s", got)
	}

	m = applyMsg(t, m, keyRune('/'))
	m = fillInput(t, m, "DES")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if got := treeRowNames(m); got != "Acme,Phase 1,Design" {
		t.Fatalf("filtered rows = %s", got)
	}
	if !strings.Contains(m.viewContent(), "Design") {
		t.Fatal("expected filtered node in tree view")
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.treeQuery != "" || m.mode != modeTree {
		t.Fatalf("expected filter cleared in tree mode, got %q mode %v", m.treeQuery, m.mode)
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.mode != modeNone {
		t.Fatalf("expected board mode, got %v", m.mode)
	}
}

// TestThreadModePostsComment verifies comments are listed and posted as the configured user.
func TestThreadModePostsComment(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api, WithIdentity("grace")))

	m = applyMsg(t, m, keyRune('l'))
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if m.mode != modeThread || m.threadCard.ID != f.acme.ID {
		t.Fatalf("expected Acme thread, got mode %v card %#v", m.mode, m.threadCard)
	}
	if m.status != "0 comments" {
		t.Fatalf("unexpected status %q", m.status)
	}

	m = fillInput(t, m, "call them")
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEnter})
	if len(m.threadComments) != 1 {
		t.Fatalf("expected 1 comment, got %#v", m.threadComments)
	}
	if got := m.threadComments[0]; got.BodyMarkdown != "call them" || got.AuthorID != "grace" {
		t.Fatalf("unexpected comment %#v", got)
	}
	if m.threadInput.Value() != "" {
		t.Fatalf("expected composer cleared, got %q", m.threadInput.Value())
	}
	rendered := ansi.Strip(m.viewContent())
	for _, want := range []string{"Description", "anvils", "Comments (1)", "call them", "as grace"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected %q in thread view\n%s", want, rendered)
		}
	}

	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.mode != modeNone {
		t.Fatalf("expected board mode, got %v", m.mode)
	}
}

// TestCopyIDUsesClipboard verifies y writes the focused id through the injected clipboard.
func TestCopyIDUsesClipboard(t *testing.T) {
	f := newBoardFixture(t)
	var copied string
	m := loadReadyModel(t, NewModel(f.api, WithClipboard(func(text string) error {
		copied = text
		return nil
	})))
	m = applyMsg(t, m, keyRune('l'))
	m = applyMsg(t, m, keyRune('y'))
	if copied != f.acme.ID {
		t.Fatalf("copied %q, want %q", copied, f.acme.ID)
	}
	if m.status != "copied "+f.acme.ID {
		t.Fatalf("unexpected status %q", m.status)
	}
}

// TestScopeToggleLoadsSubprojectFunnels verifies s swaps editor and board scope.
func TestScopeToggleLoadsSubprojectFunnels(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))
	m = applyMsg(t, m, keyRune('s'))
	if m.scope != domain.ScopeSubProject || m.funnelID != f.subFunn.ID {
		t.Fatalf("expected Delivery funnel, got scope %q funnel %q", m.scope, m.funnelID)
	}
	if m.board.Scope() != domain.ScopeSubProject {
		t.Fatalf("board scope = %q", m.board.Scope())
	}
	other := m.lanes()[len(m.lanes())-1]
	if len(other.Cards) != 2 {
		t.Fatalf("expected both subprojects off-funnel, got %#v", other.Cards)
	}

	m = loadReadyModel(t, NewModel(f.api, WithScope(domain.ScopeSubProject)))
	if m.funnelID != f.subFunn.ID {
		t.Fatalf("WithScope() funnel = %q", m.funnelID)
	}
}

// TestModelShowsLoadError verifies a failed load renders the retry screen.
func TestModelShowsLoadError(t *testing.T) {
	f := newBoardFixture(t)
	if err := f.repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	m := loadReadyModel(t, NewModel(f.api))
	if m.err == nil {
		t.Fatal("expected load error")
	}
	if !strings.Contains(m.viewContent(), "press r to retry") {
		t.Fatalf("unexpected error view %q", m.viewContent())
	}
}

// TestHelpOverlayToggles verifies ? opens the overlay and esc closes it.
func TestHelpOverlayToggles(t *testing.T) {
	f := newBoardFixture(t)
	m := loadReadyModel(t, NewModel(f.api))
	m = applyMsg(t, m, keyRune('?'))
	if !m.help.ShowAll || !strings.Contains(m.viewContent(), "pipedesk help") {
		t.Fatal("expected help overlay")
	}
	m = applyMsg(t, m, keyRune('q'))
	if !m.help.ShowAll {
		t.Fatal("expected keys swallowed while help is open")
	}
	m = applyMsg(t, m, tea.KeyPressMsg{Code: tea.KeyEscape})
	if m.help.ShowAll {
		t.Fatal("expected help closed")
	}
}

func treeRowNames(m Model) string {
	rows := m.treeRows()
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
	}
	return strings.Join(names, ",")
}

// fillInput sets the focused input's value without driving cursor blink commands.
func fillInput(t *testing.T, m Model, text string) Model {
	t.Helper()
	switch m.mode {
	case modePrompt:
		m.input.SetValue(text)
	case modeThread:
		m.threadInput.SetValue(text)
	default:
		t.Fatalf("no focused input in mode %v", m.mode)
	}
	return m
}

func loadReadyModel(t *testing.T, m Model) Model {
	t.Helper()
	return applyMsg(t, applyCmd(t, m, m.Init()), tea.WindowSizeMsg{Width: 120, Height: 40})
}

func applyMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	updated, cmd := m.Update(msg)
	out, ok := updated.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", updated)
	}
	return applyCmd(t, out, cmd)
}

func applyCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	out := m
	currentCmd := cmd
	for i := 0; i < 6 && currentCmd != nil; i++ {
		msg := currentCmd()
		updated, nextCmd := out.Update(msg)
		casted, ok := updated.(Model)
		if !ok {
			t.Fatalf("expected Model, got %T", updated)
		}
		out = casted
		currentCmd = nextCmd
	}
	return out
}

func keyRune(r rune) tea.KeyPressMsg {
	return tea.KeyPressMsg{Code: r, Text: string(r)}
}
