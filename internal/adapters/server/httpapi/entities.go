package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// optionalString records whether a JSON field was present and whether it was null.
type optionalString struct {
	Set   bool
	Null  bool
	Value string
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		o.Value = ""
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// id converts a field into an app.OptionalID. Null and empty both clear.
func (o optionalString) id() app.OptionalID {
	switch {
	case !o.Set:
		return app.OptionalID{}
	case o.Null:
		return app.ClearID()
	default:
		return app.SetID(o.Value)
	}
}

// text returns the field as an optional string, rejecting null for required text.
func (o optionalString) text(field string, nullable bool) (*string, error) {
	switch {
	case !o.Set:
		return nil, nil
	case o.Null && !nullable:
		return nil, fmt.Errorf("%s cannot be null: %w", field, common.ErrInvalidRequest)
	default:
		value := o.Value
		return &value, nil
	}
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type updateProjectRequest struct {
	Name        optionalString `json:"name"`
	Description optionalString `json:"description"`
	FunnelID    optionalString `json:"funnel_id"`
	StageID     optionalString `json:"funnel_stage_id"`
}

type createSubProjectRequest struct {
	Name               string `json:"name"`
	ProjectID          string `json:"project_id"`
	ParentSubprojectID string `json:"parent_subproject_id"`
}

type updateSubProjectRequest struct {
	Name               optionalString `json:"name"`
	ProjectID          optionalString `json:"project_id"`
	ParentSubprojectID optionalString `json:"parent_subproject_id"`
	FunnelID           optionalString `json:"sub_project_funnel_id"`
	StageID            optionalString `json:"sub_project_funnel_stage_id"`
}

type createCommentRequest struct {
	BodyMarkdown string `json:"body_markdown"`
}

// registerEntityRoutes mounts project, subproject, tree, and comment routes.
func (h *Handler) registerEntityRoutes() {
	h.handle("/projects", methodHandlers{
		http.MethodGet:  h.listProjects,
		http.MethodPost: h.createProject,
	})
	h.handle("/projects/{id}", methodHandlers{
		http.MethodGet:    h.getProject,
		http.MethodPut:    h.updateProject,
		http.MethodDelete: h.deleteProject,
	})
	h.handle("/projects/{id}/comments", methodHandlers{
		http.MethodGet:  h.listComments(domain.CommentTargetProject),
		http.MethodPost: h.createComment(domain.CommentTargetProject),
	})
	h.handle("/subprojects", methodHandlers{
		http.MethodGet:  h.listSubProjects,
		http.MethodPost: h.createSubProject,
	})
	h.handle("/subprojects/tree", methodHandlers{
		http.MethodGet: h.subprojectTree,
	})
	h.handle("/subprojects/{id}", methodHandlers{
		http.MethodGet:    h.getSubProject,
		http.MethodPut:    h.updateSubProject,
		http.MethodDelete: h.deleteSubProject,
	})
	h.handle("/subprojects/{id}/comments", methodHandlers{
		http.MethodGet:  h.listComments(domain.CommentTargetSubProject),
		http.MethodPost: h.createComment(domain.CommentTargetSubProject),
	})
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.svc.ListProjects(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusOK, common.ProjectsFromDomain(projects))
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.svc.CreateProject(r.Context(), app.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusCreated, common.ProjectFromDomain(project))
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.svc.GetProject(r.Context(), pathID(r, "id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusOK, common.ProjectFromDomain(project))
}

// updateProject applies a partial update. Null placement ids unassign the project.
func (h *Handler) updateProject(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	name, err := req.Name.text("name", false)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	description, err := req.Description.text("description", true)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	project, err := h.svc.UpdateProject(r.Context(), app.UpdateProjectInput{
		ProjectID:   pathID(r, "id"),
		Name:        name,
		Description: description,
		FunnelID:    req.FunnelID.id(),
		StageID:     req.StageID.id(),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusOK, common.ProjectFromDomain(project))
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProject(r.Context(), pathID(r, "id")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSubProjects(w http.ResponseWriter, r *http.Request) {
	subprojects, err := h.svc.ListSubProjects(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusOK, common.SubProjectsFromDomain(subprojects))
}

func (h *Handler) createSubProject(w http.ResponseWriter, r *http.Request) {
	var req createSubProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	sp, err := h.svc.CreateSubProject(r.Context(), app.CreateSubProjectInput{
		Name:               req.Name,
		ProjectID:          req.ProjectID,
		ParentSubprojectID: req.ParentSubprojectID,
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusCreated, common.SubProjectFromDomain(sp))
}

func (h *Handler) getSubProject(w http.ResponseWriter, r *http.Request) {
	sp, err := h.svc.GetSubProject(r.Context(), pathID(r, "id"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusOK, common.SubProjectFromDomain(sp))
}

func (h *Handler) updateSubProject(w http.ResponseWriter, r *http.Request) {
	var req updateSubProjectRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	name, err := req.Name.text("name", false)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	sp, err := h.svc.UpdateSubProject(r.Context(), app.UpdateSubProjectInput{
		SubProjectID:       pathID(r, "id"),
		Name:               name,
		ProjectID:          req.ProjectID.id(),
		ParentSubprojectID: req.ParentSubprojectID.id(),
		FunnelID:           req.FunnelID.id(),
		StageID:            req.StageID.id(),
	})
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusOK, common.SubProjectFromDomain(sp))
}

func (h *Handler) deleteSubProject(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSubProject(r.Context(), pathID(r, "id")); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// subprojectTree returns the hierarchy filtered by the q query parameter.
func (h *Handler) subprojectTree(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.SubprojectTree(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusOK, common.TreeFromView(view))
}

func (h *Handler) listComments(targetType domain.CommentTargetType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		comments, err := h.svc.ListComments(r.Context(), domain.CommentTarget{
			TargetType: targetType,
			TargetID:   pathID(r, "id"),
		})
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusOK, common.CommentsFromDomain(comments))
	}
}

func (h *Handler) createComment(targetType domain.CommentTargetType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCommentRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		comment, err := h.svc.CreateComment(r.Context(), app.CreateCommentInput{
			Target:       domain.CommentTarget{TargetType: targetType, TargetID: pathID(r, "id")},
			BodyMarkdown: req.BodyMarkdown,
		})
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusCreated, common.CommentFromDomain(comment))
	}
}
