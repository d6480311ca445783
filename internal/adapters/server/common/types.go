// Package common provides transport-agnostic server contracts used by HTTP, MCP, and websocket adapters.
package common

import (
	"sort"
	"time"

	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// FunnelDTO is the wire shape of a funnel with its ordered stages.
type FunnelDTO struct {
	ID        string     `json:"id"`
	Scope     string     `json:"scope"`
	Name      string     `json:"name"`
	Stages    []StageDTO `json:"stages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// StageDTO is the wire shape of one funnel stage.
type StageDTO struct {
	ID        string    `json:"id"`
	FunnelID  string    `json:"funnel_id"`
	Name      string    `json:"name"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProjectDTO is the wire shape of a project. Nil placement ids mean unassigned.
type ProjectDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	FunnelID    *string   `json:"funnel_id"`
	StageID     *string   `json:"funnel_stage_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubProjectDTO is the wire shape of a subproject.
type SubProjectDTO struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	ProjectID          *string   `json:"project_id"`
	ParentSubprojectID *string   `json:"parent_subproject_id"`
	FunnelID           *string   `json:"sub_project_funnel_id"`
	StageID            *string   `json:"sub_project_funnel_stage_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ColumnDTO is one board column.
type ColumnDTO[E any] struct {
	Stage    StageDTO `json:"stage"`
	Entities []E      `json:"entities"`
}

// BoardDTO is a funnel grouped into columns plus its unassigned bucket.
type BoardDTO[E any] struct {
	Funnel     FunnelDTO      `json:"funnel"`
	Columns    []ColumnDTO[E] `json:"columns"`
	Unassigned []E            `json:"unassigned"`
}

// TreeNodeDTO is one node of the project hierarchy.
type TreeNodeDTO struct {
	Key      string        `json:"key"`
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Level    int           `json:"level"`
	Children []TreeNodeDTO `json:"children"`
}

// TreeDTO is a filtered hierarchy with the node keys to show expanded.
type TreeDTO struct {
	Nodes []TreeNodeDTO `json:"nodes"`
	Open  []string      `json:"open"`
	Total int           `json:"total"`
}

// CommentDTO is the wire shape of one comment.
type CommentDTO struct {
	ID           string    `json:"id"`
	TargetType   string    `json:"target_type"`
	TargetID     string    `json:"target_id"`
	BodyMarkdown string    `json:"body_markdown"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// ChangeEventDTO is the wire shape of one activity entry.
type ChangeEventDTO struct {
	ID         int64             `json:"id"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	FunnelID   string            `json:"funnel_id,omitempty"`
	Operation  string            `json:"operation"`
	ActorID    string            `json:"actor_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// FunnelFromDomain maps a funnel to its wire shape.
func FunnelFromDomain(f domain.Funnel) FunnelDTO {
	stages := make([]StageDTO, 0, len(f.Stages))
	for _, st := range f.Stages {
		stages = append(stages, StageFromDomain(st))
	}
	return FunnelDTO{
		ID:        f.ID,
		Scope:     string(f.Scope),
		Name:      f.Name,
		Stages:    stages,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// FunnelsFromDomain maps a funnel list.
func FunnelsFromDomain(in []domain.Funnel) []FunnelDTO {
	out := make([]FunnelDTO, 0, len(in))
	for _, f := range in {
		out = append(out, FunnelFromDomain(f))
	}
	return out
}

// ToDomain maps the wire funnel back to the domain type.
func (f FunnelDTO) ToDomain() domain.Funnel {
	stages := make([]domain.Stage, 0, len(f.Stages))
	for _, st := range f.Stages {
		stages = append(stages, st.ToDomain())
	}
	return domain.Funnel{
		ID:        f.ID,
		Scope:     domain.FunnelScope(f.Scope),
		Name:      f.Name,
		Stages:    stages,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// StageFromDomain maps a stage to its wire shape.
func StageFromDomain(st domain.Stage) StageDTO {
	return StageDTO{
		ID:        st.ID,
		FunnelID:  st.FunnelID,
		Name:      st.Name,
		Order:     st.Order,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

// StagesFromDomain maps a stage list.
func StagesFromDomain(in []domain.Stage) []StageDTO {
	out := make([]StageDTO, 0, len(in))
	for _, st := range in {
		out = append(out, StageFromDomain(st))
	}
	return out
}

// ToDomain maps the wire stage back to the domain type.
func (st StageDTO) ToDomain() domain.Stage {
	return domain.Stage{
		ID:        st.ID,
		FunnelID:  st.FunnelID,
		Name:      st.Name,
		Order:     st.Order,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

// ProjectFromDomain maps a project to its wire shape.
func ProjectFromDomain(p domain.Project) ProjectDTO {
	return ProjectDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		FunnelID:    optionalID(p.FunnelID),
		StageID:     optionalID(p.StageID),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProjectsFromDomain maps a project list.
func ProjectsFromDomain(in []domain.Project) []ProjectDTO {
	out := make([]ProjectDTO, 0, len(in))
	for _, p := range in {
		out = append(out, ProjectFromDomain(p))
	}
	return out
}

// ToDomain maps the wire project back to the domain type.
func (p ProjectDTO) ToDomain() domain.Project {
	return domain.Project{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		FunnelID:    derefID(p.FunnelID),
		StageID:     derefID(p.StageID),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// SubProjectFromDomain maps a subproject to its wire shape.
func SubProjectFromDomain(sp domain.SubProject) SubProjectDTO {
	return SubProjectDTO{
		ID:                 sp.ID,
		Name:               sp.Name,
		ProjectID:          optionalID(sp.ProjectID),
		ParentSubprojectID: optionalID(sp.ParentSubprojectID),
		FunnelID:           optionalID(sp.FunnelID),
		StageID:            optionalID(sp.StageID),
		CreatedAt:          sp.CreatedAt,
		UpdatedAt:          sp.UpdatedAt,
	}
}

// SubProjectsFromDomain maps a subproject list.
func SubProjectsFromDomain(in []domain.SubProject) []SubProjectDTO {
	out := make([]SubProjectDTO, 0, len(in))
	for _, sp := range in {
		out = append(out, SubProjectFromDomain(sp))
	}
	return out
}

// ToDomain maps the wire subproject back to the domain type.
func (sp SubProjectDTO) ToDomain() domain.SubProject {
	return domain.SubProject{
		ID:                 sp.ID,
		Name:               sp.Name,
		ProjectID:          derefID(sp.ProjectID),
		ParentSubprojectID: derefID(sp.ParentSubprojectID),
		FunnelID:           derefID(sp.FunnelID),
		StageID:            derefID(sp.StageID),
		CreatedAt:          sp.CreatedAt,
		UpdatedAt:          sp.UpdatedAt,
	}
}

// BoardFromDomain maps a board using mapEntity for each entity.
func BoardFromDomain[E, D any](board domain.Board[E], mapEntity func(E) D) BoardDTO[D] {
	columns := make([]ColumnDTO[D], 0, len(board.Columns))
	for _, bucket := range board.Columns {
		entities := make([]D, 0, len(bucket.Entities))
		for _, entity := range bucket.Entities {
			entities = append(entities, mapEntity(entity))
		}
		columns = append(columns, ColumnDTO[D]{Stage: StageFromDomain(bucket.Stage), Entities: entities})
	}
	unassigned := make([]D, 0, len(board.Unassigned))
	for _, entity := range board.Unassigned {
		unassigned = append(unassigned, mapEntity(entity))
	}
	return BoardDTO[D]{
		Funnel:     FunnelFromDomain(board.Funnel),
		Columns:    columns,
		Unassigned: unassigned,
	}
}

// TreeFromView maps a tree view. Open keys are sorted.
func TreeFromView(view app.TreeView) TreeDTO {
	open := make([]string, 0, len(view.Open))
	for key, isOpen := range view.Open {
		if isOpen {
			open = append(open, key)
		}
	}
	sort.Strings(open)
	return TreeDTO{
		Nodes: treeNodesFromDomain(view.Nodes),
		Open:  open,
		Total: view.Total,
	}
}

// ToView maps the wire tree back to an app view.
func (t TreeDTO) ToView() app.TreeView {
	open := make(map[string]bool, len(t.Open))
	for _, key := range t.Open {
		open[key] = true
	}
	return app.TreeView{
		Nodes: treeNodesToDomain(t.Nodes),
		Open:  open,
		Total: t.Total,
	}
}

func treeNodesFromDomain(nodes []domain.TreeNode) []TreeNodeDTO {
	out := make([]TreeNodeDTO, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, TreeNodeDTO{
			Key:      node.Key(),
			ID:       node.ID,
			Name:     node.Name,
			Type:     string(node.Type),
			Level:    node.Level,
			Children: treeNodesFromDomain(node.Children),
		})
	}
	return out
}

func treeNodesToDomain(nodes []TreeNodeDTO) []domain.TreeNode {
	out := make([]domain.TreeNode, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, domain.TreeNode{
			ID:       node.ID,
			Name:     node.Name,
			Type:     domain.NodeType(node.Type),
			Level:    node.Level,
			Children: treeNodesToDomain(node.Children),
		})
	}
	return out
}

// CommentFromDomain maps a comment to its wire shape.
func CommentFromDomain(c domain.Comment) CommentDTO {
	return CommentDTO{
		ID:           c.ID,
		TargetType:   string(c.TargetType),
		TargetID:     c.TargetID,
		BodyMarkdown: c.BodyMarkdown,
		AuthorID:     c.AuthorID,
		AuthorName:   c.AuthorName,
		CreatedAt:    c.CreatedAt,
	}
}

// CommentsFromDomain maps a comment list.
func CommentsFromDomain(in []domain.Comment) []CommentDTO {
	out := make([]CommentDTO, 0, len(in))
	for _, c := range in {
		out = append(out, CommentFromDomain(c))
	}
	return out
}

// ToDomain maps the wire comment back to the domain type.
func (c CommentDTO) ToDomain() domain.Comment {
	return domain.Comment{
		ID:           c.ID,
		TargetType:   domain.CommentTargetType(c.TargetType),
		TargetID:     c.TargetID,
		BodyMarkdown: c.BodyMarkdown,
		AuthorID:     c.AuthorID,
		AuthorName:   c.AuthorName,
		CreatedAt:    c.CreatedAt,
	}
}

// ChangeEventsFromDomain maps activity entries.
func ChangeEventsFromDomain(in []domain.ChangeEvent) []ChangeEventDTO {
	out := make([]ChangeEventDTO, 0, len(in))
	for _, ev := range in {
		out = append(out, ChangeEventDTO{
			ID:         ev.ID,
			EntityType: string(ev.EntityType),
			EntityID:   ev.EntityID,
			FunnelID:   ev.FunnelID,
			Operation:  string(ev.Operation),
			ActorID:    ev.ActorID,
			Metadata:   ev.Metadata,
			OccurredAt: ev.OccurredAt,
		})
	}
	return out
}

// optionalID maps an empty id to nil.
func optionalID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// derefID maps nil to an empty id.
func derefID(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}
