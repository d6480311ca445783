package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

var errBoom = errors.New("boom")

// fakeAPI stores server state in maps and can fail or block selected calls.
type fakeAPI struct {
	mu          sync.Mutex
	funnels     []domain.Funnel
	projects    []domain.Project
	subprojects []domain.SubProject
	nextID      int

	fail  map[string]error
	block map[string]chan struct{}
	calls map[string]int

	orderWrites map[string]int
	createOrder int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		fail:        map[string]error{},
		block:       map[string]chan struct{}{},
		calls:       map[string]int{},
		orderWrites: map[string]int{},
	}
}

// seedFunnel stores a funnel with stages named after their orders.
func (f *fakeAPI) seedFunnel(scope domain.FunnelScope, id string, stages ...domain.Stage) {
	for idx := range stages {
		stages[idx].FunnelID = id
	}
	f.funnels = append(f.funnels, domain.Funnel{ID: id, Scope: scope, Name: id, Stages: stages})
}

// enter records a call and returns its injected error after any block is released.
func (f *fakeAPI) enter(name string) error {
	f.mu.Lock()
	f.calls[name]++
	wait := f.block[name]
	err := f.fail[name]
	f.mu.Unlock()
	if wait != nil {
		<-wait
	}
	return err
}

func (f *fakeAPI) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) setFail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *fakeAPI) setBlock(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.block[name] = ch
	return ch
}

func (f *fakeAPI) funnelIndex(id string) int {
	return slices.IndexFunc(f.funnels, func(fn domain.Funnel) bool { return fn.ID == id })
}

func (f *fakeAPI) ListFunnels(_ context.Context, scope domain.FunnelScope) ([]domain.Funnel, error) {
	if err := f.enter("ListFunnels"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Funnel, 0)
	for _, fn := range f.funnels {
		if fn.Scope != scope {
			continue
		}
		fn = fn.Clone()
		slices.SortStableFunc(fn.Stages, func(a, b domain.Stage) int { return cmp.Compare(a.Order, b.Order) })
		out = append(out, fn)
	}
	return out, nil
}

func (f *fakeAPI) GetFunnel(ctx context.Context, scope domain.FunnelScope, id string) (domain.Funnel, error) {
	funnels, err := f.ListFunnels(ctx, scope)
	if err != nil {
		return domain.Funnel{}, err
	}
	for _, fn := range funnels {
		if fn.ID == id {
			return fn, nil
		}
	}
	return domain.Funnel{}, fmt.Errorf("funnel %q: %w", id, ErrNotFound)
}

func (f *fakeAPI) CreateFunnel(_ context.Context, scope domain.FunnelScope, name string) (domain.Funnel, error) {
	if err := f.enter("CreateFunnel"); err != nil {
		return domain.Funnel{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	fn := domain.Funnel{ID: fmt.Sprintf("f-%d", f.nextID), Scope: scope, Name: name}
	f.funnels = append(f.funnels, fn)
	return fn, nil
}

func (f *fakeAPI) RenameFunnel(_ context.Context, _ domain.FunnelScope, id, name string) (domain.Funnel, error) {
	if err := f.enter("RenameFunnel"); err != nil {
		return domain.Funnel{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.funnelIndex(id)
	if idx < 0 {
		return domain.Funnel{}, ErrNotFound
	}
	f.funnels[idx].Name = name
	return f.funnels[idx].Clone(), nil
}

func (f *fakeAPI) DeleteFunnel(_ context.Context, _ domain.FunnelScope, id string) error {
	if err := f.enter("DeleteFunnel"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx := f.funnelIndex(id); idx >= 0 {
		f.funnels = slices.Delete(f.funnels, idx, idx+1)
	}
	return nil
}

func (f *fakeAPI) CreateStage(_ context.Context, _ domain.FunnelScope, funnelID, name string, order int) (domain.Stage, error) {
	if err := f.enter("CreateStage"); err != nil {
		return domain.Stage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.funnelIndex(funnelID)
	if idx < 0 {
		return domain.Stage{}, ErrNotFound
	}
	f.nextID++
	f.createOrder = order
	stage := domain.Stage{ID: fmt.Sprintf("s-%d", f.nextID), FunnelID: funnelID, Name: name, Order: order}
	f.funnels[idx].Stages = append(f.funnels[idx].Stages, stage)
	return stage, nil
}

func (f *fakeAPI) UpdateStage(_ context.Context, _ domain.FunnelScope, stageID string, name *string, order *int) (domain.Stage, error) {
	if err := f.enter("UpdateStage"); err != nil {
		return domain.Stage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for fIdx := range f.funnels {
		for sIdx := range f.funnels[fIdx].Stages {
			stage := &f.funnels[fIdx].Stages[sIdx]
			if stage.ID != stageID {
				continue
			}
			if name != nil {
				stage.Name = *name
			}
			if order != nil {
				stage.Order = *order
				f.orderWrites[stageID] = *order
			}
			return *stage, nil
		}
	}
	return domain.Stage{}, ErrNotFound
}

func (f *fakeAPI) DeleteStage(_ context.Context, _ domain.FunnelScope, stageID string) error {
	if err := f.enter("DeleteStage"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for fIdx := range f.funnels {
		f.funnels[fIdx].Stages = domain.Resequence(slices.DeleteFunc(f.funnels[fIdx].Stages, func(s domain.Stage) bool {
			return s.ID == stageID
		}))
	}
	return nil
}

func (f *fakeAPI) ListProjects(context.Context) ([]domain.Project, error) {
	if err := f.enter("ListProjects"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.projects), nil
}

func (f *fakeAPI) PlaceProject(_ context.Context, id string, placement domain.Placement) (domain.Project, error) {
	if err := f.enter("PlaceProject"); err != nil {
		return domain.Project{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	project, idx, ok := domain.FindEntity(f.projects, id)
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	f.projects[idx] = project.WithPlacement(placement)
	return f.projects[idx], nil
}

func (f *fakeAPI) ListSubProjects(context.Context) ([]domain.SubProject, error) {
	if err := f.enter("ListSubProjects"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.subprojects), nil
}

func (f *fakeAPI) PlaceSubProject(_ context.Context, id string, placement domain.Placement) (domain.SubProject, error) {
	if err := f.enter("PlaceSubProject"); err != nil {
		return domain.SubProject{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, idx, ok := domain.FindEntity(f.subprojects, id)
	if !ok {
		return domain.SubProject{}, ErrNotFound
	}
	f.subprojects[idx] = sp.WithPlacement(placement)
	return f.subprojects[idx], nil
}

func (f *fakeAPI) SubprojectTree(context.Context, string) (app.TreeView, error) {
	return app.TreeView{}, nil
}

func (f *fakeAPI) ListComments(context.Context, domain.CommentTarget) ([]domain.Comment, error) {
	return nil, nil
}

func (f *fakeAPI) CreateComment(_ context.Context, target domain.CommentTarget, body string) (domain.Comment, error) {
	return domain.Comment{TargetType: target.TargetType, TargetID: target.TargetID, BodyMarkdown: body}, nil
}

// stageIDs returns ids in slice order.
func stageIDs(stages []domain.Stage) []string {
	out := make([]string, 0, len(stages))
	for _, stage := range stages {
		out = append(out, stage.ID)
	}
	return out
}

// stageOrders returns orders in slice order.
func stageOrders(stages []domain.Stage) []int {
	out := make([]int, 0, len(stages))
	for _, stage := range stages {
		out = append(out, stage.Order)
	}
	return out
}

func threeStages() []domain.Stage {
	return []domain.Stage{
		{ID: "a", Name: "Lead", Order: 1},
		{ID: "b", Name: "Qualified", Order: 2},
		{ID: "c", Name: "Won", Order: 3},
	}
}
