package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

type funnelRequest struct {
	Name string `json:"name"`
}

type createStageRequest struct {
	Name     string `json:"name"`
	FunnelID string `json:"funnel_id"`
	Order    int    `json:"order"`
}

type updateStageRequest struct {
	Name  *string `json:"name"`
	Order *int    `json:"order"`
}

// moveStageRequest carries either a direction or a drop target.
type moveStageRequest struct {
	StageID       string `json:"stage_id"`
	Direction     string `json:"direction"`
	BeforeStageID string `json:"before_stage_id"`
}

// registerFunnelRoutes mounts funnel and stage routes for one scope under prefix.
func (h *Handler) registerFunnelRoutes(prefix string, scope domain.FunnelScope) {
	h.handle(prefix, methodHandlers{
		http.MethodGet:  h.listFunnels(scope),
		http.MethodPost: h.createFunnel(scope),
	})
	h.handle(prefix+"/{id}", methodHandlers{
		http.MethodGet:    h.getFunnel(scope),
		http.MethodPut:    h.renameFunnel(scope),
		http.MethodDelete: h.deleteFunnel(scope),
	})
	h.handle(prefix+"/stages", methodHandlers{
		http.MethodPost: h.createStage(scope),
	})
	h.handle(prefix+"/stages/{id}", methodHandlers{
		http.MethodPut:    h.updateStage(scope),
		http.MethodDelete: h.deleteStage(scope),
	})
	h.handle(prefix+"/{id}/stages/move", methodHandlers{
		http.MethodPost: h.moveStage(scope),
	})
	h.handle(prefix+"/boards/{id}", methodHandlers{
		http.MethodGet: h.board(scope),
	})
}

func (h *Handler) listFunnels(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnels, err := h.svc.ListFunnels(r.Context(), scope)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusOK, common.FunnelsFromDomain(funnels))
	}
}

func (h *Handler) createFunnel(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req funnelRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		funnel, err := h.svc.CreateFunnel(r.Context(), scope, req.Name)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusCreated, common.FunnelFromDomain(funnel))
	}
}

func (h *Handler) getFunnel(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnel, err := h.svc.GetFunnel(r.Context(), scope, pathID(r, "id"))
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusOK, common.FunnelFromDomain(funnel))
	}
}

func (h *Handler) renameFunnel(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req funnelRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		funnel, err := h.svc.RenameFunnel(r.Context(), scope, pathID(r, "id"), req.Name)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusOK, common.FunnelFromDomain(funnel))
	}
}

func (h *Handler) deleteFunnel(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.svc.DeleteFunnel(r.Context(), scope, pathID(r, "id")); err != nil {
			writeErrorFrom(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) createStage(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createStageRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		stage, err := h.svc.CreateStage(r.Context(), scope, app.CreateStageInput{
			FunnelID: req.FunnelID,
			Name:     req.Name,
			Order:    req.Order,
		})
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusCreated, common.StageFromDomain(stage))
	}
}

func (h *Handler) updateStage(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateStageRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		if req.Name == nil && req.Order == nil {
			writeErrorFrom(w, fmt.Errorf("name or order is required: %w", common.ErrInvalidRequest))
			return
		}
		stage, err := h.svc.UpdateStage(r.Context(), scope, app.UpdateStageInput{
			StageID: pathID(r, "id"),
			Name:    req.Name,
			Order:   req.Order,
		})
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusOK, common.StageFromDomain(stage))
	}
}

func (h *Handler) deleteStage(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.svc.DeleteStage(r.Context(), scope, pathID(r, "id")); err != nil {
			writeErrorFrom(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// moveStage reorders within one funnel by direction or by drop target and returns every stage.
func (h *Handler) moveStage(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moveStageRequest
		if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		funnelID := pathID(r, "id")
		var (
			stages []domain.Stage
			err    error
		)
		switch {
		case strings.TrimSpace(req.BeforeStageID) != "":
			stages, err = h.svc.MoveStageBefore(r.Context(), scope, funnelID, req.StageID, req.BeforeStageID)
		case strings.TrimSpace(req.Direction) != "":
			stages, err = h.svc.MoveStage(r.Context(), scope, funnelID, req.StageID, domain.Direction(req.Direction))
		default:
			err = fmt.Errorf("direction or before_stage_id is required: %w", common.ErrInvalidRequest)
		}
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusOK, common.StagesFromDomain(stages))
	}
}

// board returns the funnel grouped into columns for the scope's entity type.
func (h *Handler) board(scope domain.FunnelScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		funnelID := pathID(r, "id")
		if scope == domain.ScopeSubProject {
			board, err := h.svc.SubProjectBoard(r.Context(), funnelID)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeData(w, http.StatusOK, common.BoardFromDomain(board, common.SubProjectFromDomain))
			return
		}
		board, err := h.svc.ProjectBoard(r.Context(), funnelID)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeData(w, http.StatusOK, common.BoardFromDomain(board, common.ProjectFromDomain))
	}
}
