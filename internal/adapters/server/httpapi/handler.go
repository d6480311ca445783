// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	svc common.Service
	mux *http.ServeMux
}

// Envelope wraps every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// methodHandlers maps HTTP methods to the handler serving them on one path.
type methodHandlers map[string]http.HandlerFunc

// NewHandler constructs one HTTP API adapter over the application service.
func NewHandler(svc common.Service) *Handler {
	h := &Handler{svc: svc, mux: http.NewServeMux()}
	h.registerFunnelRoutes("/funnels", domain.ScopeProject)
	h.registerFunnelRoutes("/sub-project-funnels", domain.ScopeSubProject)
	h.registerEntityRoutes()
	h.handle("/events", methodHandlers{http.MethodGet: h.handleListEvents})
	h.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, common.CodeNotFound, "route not found: "+r.URL.Path, "")
	})
	return h
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// handle registers one path and dispatches by method, answering 405 with an Allow header.
func (h *Handler) handle(pattern string, routes methodHandlers) {
	allowed := make([]string, 0, len(routes))
	for method := range routes {
		allowed = append(allowed, method)
	}
	slices.Sort(allowed)
	h.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		fn, ok := routes[r.Method]
		if !ok {
			writeMethodNotAllowed(w, allowed...)
			return
		}
		fn(w, r)
	})
}

// handleListEvents lists recent change events.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorFrom(w, fmt.Errorf("limit %q: %w", raw, common.ErrInvalidRequest))
			return
		}
		limit = parsed
	}
	events, err := h.svc.ListChangeEvents(r.Context(), limit)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeData(w, http.StatusOK, common.ChangeEventsFromDomain(events))
}

// pathID returns one trimmed path wildcard.
func pathID(r *http.Request, name string) string {
	return strings.TrimSpace(r.PathValue(name))
}

// writeErrorFrom maps service errors onto status codes and the response envelope.
func writeErrorFrom(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSONError(w, http.StatusInternalServerError, common.CodeInternal, "unknown error", "")
		return
	}
	code := common.ErrorCode(err)
	hint := ""
	if code == common.CodeConflict {
		hint = "Unassign or delete the dependent records first."
	}
	writeJSONError(w, common.HTTPStatus(code), code, err.Error(), hint)
}

// writeMethodNotAllowed writes a 405 response with the allowed methods.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", "")
}

// writeJSONError writes one failed envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, code, message, hint string) {
	writeJSON(w, statusCode, Envelope{Success: false, Error: message, Code: code, Hint: hint})
}

// writeData writes one successful envelope.
func writeData(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, Envelope{Success: true, Data: data})
}

// writeJSON writes one JSON payload.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"success":false,"code":"encode_error","error":%q}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one strict JSON request body.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
