package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
)

// maxResponseBytes bounds decoded response bodies.
const maxResponseBytes int64 = 8 << 20

// APIError is a failed API response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error %s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps the response onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Code == common.CodeNotFound || e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Code == common.CodeConflict || e.Status == http.StatusConflict:
		return ErrConflict
	case e.Code == common.CodeUnauthorized || e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status >= http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrInvalid
	}
}

// HTTPClient implements API over the REST surface.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	auth    AuthContext
}

var _ API = (*HTTPClient)(nil)

// NewHTTPClient builds a client for baseURL, e.g. http://127.0.0.1:8080/api/v1.
// A nil httpClient uses a client with a 15s timeout.
func NewHTTPClient(baseURL string, auth AuthContext, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if auth == nil {
		auth = StaticAuth{}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
		auth:    auth,
	}
}

// funnelPrefix returns the route prefix for scope.
func funnelPrefix(scope domain.FunnelScope) string {
	if scope == domain.ScopeSubProject {
		return "/sub-project-funnels"
	}
	return "/funnels"
}

// ListFunnels implements API.
func (c *HTTPClient) ListFunnels(ctx context.Context, scope domain.FunnelScope) ([]domain.Funnel, error) {
	var out []common.FunnelDTO
	if err := c.do(ctx, http.MethodGet, funnelPrefix(scope), nil, &out); err != nil {
		return nil, err
	}
	funnels := make([]domain.Funnel, 0, len(out))
	for _, f := range out {
		funnels = append(funnels, f.ToDomain())
	}
	return funnels, nil
}

// GetFunnel implements API.
func (c *HTTPClient) GetFunnel(ctx context.Context, scope domain.FunnelScope, id string) (domain.Funnel, error) {
	var out common.FunnelDTO
	if err := c.do(ctx, http.MethodGet, funnelPrefix(scope)+"/"+url.PathEscape(id), nil, &out); err != nil {
		return domain.Funnel{}, err
	}
	return out.ToDomain(), nil
}

// CreateFunnel implements API.
func (c *HTTPClient) CreateFunnel(ctx context.Context, scope domain.FunnelScope, name string) (domain.Funnel, error) {
	var out common.FunnelDTO
	if err := c.do(ctx, http.MethodPost, funnelPrefix(scope), map[string]any{"name": name}, &out); err != nil {
		return domain.Funnel{}, err
	}
	return out.ToDomain(), nil
}

// RenameFunnel implements API.
func (c *HTTPClient) RenameFunnel(ctx context.Context, scope domain.FunnelScope, id, name string) (domain.Funnel, error) {
	var out common.FunnelDTO
	if err := c.do(ctx, http.MethodPut, funnelPrefix(scope)+"/"+url.PathEscape(id), map[string]any{"name": name}, &out); err != nil {
		return domain.Funnel{}, err
	}
	return out.ToDomain(), nil
}

// DeleteFunnel implements API.
func (c *HTTPClient) DeleteFunnel(ctx context.Context, scope domain.FunnelScope, id string) error {
	return c.do(ctx, http.MethodDelete, funnelPrefix(scope)+"/"+url.PathEscape(id), nil, nil)
}

// CreateStage implements API.
func (c *HTTPClient) CreateStage(ctx context.Context, scope domain.FunnelScope, funnelID, name string, order int) (domain.Stage, error) {
	var out common.StageDTO
	body := map[string]any{"name": name, "funnel_id": funnelID, "order": order}
	if err := c.do(ctx, http.MethodPost, funnelPrefix(scope)+"/stages", body, &out); err != nil {
		return domain.Stage{}, err
	}
	return out.ToDomain(), nil
}

// UpdateStage implements API. Nil fields are omitted from the request.
func (c *HTTPClient) UpdateStage(ctx context.Context, scope domain.FunnelScope, stageID string, name *string, order *int) (domain.Stage, error) {
	body := map[string]any{}
	if name != nil {
		body["name"] = *name
	}
	if order != nil {
		body["order"] = *order
	}
	var out common.StageDTO
	if err := c.do(ctx, http.MethodPut, funnelPrefix(scope)+"/stages/"+url.PathEscape(stageID), body, &out); err != nil {
		return domain.Stage{}, err
	}
	return out.ToDomain(), nil
}

// DeleteStage implements API.
func (c *HTTPClient) DeleteStage(ctx context.Context, scope domain.FunnelScope, stageID string) error {
	return c.do(ctx, http.MethodDelete, funnelPrefix(scope)+"/stages/"+url.PathEscape(stageID), nil, nil)
}

// ListProjects implements API.
func (c *HTTPClient) ListProjects(ctx context.Context) ([]domain.Project, error) {
	var out []common.ProjectDTO
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(out))
	for _, p := range out {
		projects = append(projects, p.ToDomain())
	}
	return projects, nil
}

// PlaceProject implements API. Empty ids are sent as null and clear the field.
func (c *HTTPClient) PlaceProject(ctx context.Context, id string, placement domain.Placement) (domain.Project, error) {
	body := map[string]any{
		"funnel_id":       nullableID(placement.FunnelID),
		"funnel_stage_id": nullableID(placement.StageID),
	}
	var out common.ProjectDTO
	if err := c.do(ctx, http.MethodPut, "/projects/"+url.PathEscape(id), body, &out); err != nil {
		return domain.Project{}, err
	}
	return out.ToDomain(), nil
}

// ListSubProjects implements API.
func (c *HTTPClient) ListSubProjects(ctx context.Context) ([]domain.SubProject, error) {
	var out []common.SubProjectDTO
	if err := c.do(ctx, http.MethodGet, "/subprojects", nil, &out); err != nil {
		return nil, err
	}
	subprojects := make([]domain.SubProject, 0, len(out))
	for _, sp := range out {
		subprojects = append(subprojects, sp.ToDomain())
	}
	return subprojects, nil
}

// PlaceSubProject implements API.
func (c *HTTPClient) PlaceSubProject(ctx context.Context, id string, placement domain.Placement) (domain.SubProject, error) {
	body := map[string]any{
		"sub_project_funnel_id":       nullableID(placement.FunnelID),
		"sub_project_funnel_stage_id": nullableID(placement.StageID),
	}
	var out common.SubProjectDTO
	if err := c.do(ctx, http.MethodPut, "/subprojects/"+url.PathEscape(id), body, &out); err != nil {
		return domain.SubProject{}, err
	}
	return out.ToDomain(), nil
}

// SubprojectTree implements API.
func (c *HTTPClient) SubprojectTree(ctx context.Context, query string) (app.TreeView, error) {
	path := "/subprojects/tree"
	if query = strings.TrimSpace(query); query != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	var out common.TreeDTO
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return app.TreeView{}, err
	}
	return out.ToView(), nil
}

// commentPath returns the comment route for target.
func commentPath(target domain.CommentTarget) string {
	if target.TargetType == domain.CommentTargetSubProject {
		return "/subprojects/" + url.PathEscape(target.TargetID) + "/comments"
	}
	return "/projects/" + url.PathEscape(target.TargetID) + "/comments"
}

// ListComments implements API.
func (c *HTTPClient) ListComments(ctx context.Context, target domain.CommentTarget) ([]domain.Comment, error) {
	var out []common.CommentDTO
	if err := c.do(ctx, http.MethodGet, commentPath(target), nil, &out); err != nil {
		return nil, err
	}
	comments := make([]domain.Comment, 0, len(out))
	for _, cm := range out {
		comments = append(comments, cm.ToDomain())
	}
	return comments, nil
}

// CreateComment implements API.
func (c *HTTPClient) CreateComment(ctx context.Context, target domain.CommentTarget, bodyMarkdown string) (domain.Comment, error) {
	var out common.CommentDTO
	if err := c.do(ctx, http.MethodPost, commentPath(target), map[string]any{"body_markdown": bodyMarkdown}, &out); err != nil {
		return domain.Comment{}, err
	}
	return out.ToDomain(), nil
}

// do sends one request and decodes the unwrapped data payload into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(raw), out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// unwrapData returns data.data when present, else data, else the raw body.
func unwrapData(raw []byte) []byte {
	data, ok := dataField(raw)
	if !ok {
		return raw
	}
	if nested, ok := dataField(data); ok {
		return nested
	}
	return data
}

// dataField returns the "data" member of a JSON object.
func dataField(raw []byte) (json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	data, ok := fields["data"]
	return data, ok
}

// decodeAPIError builds an APIError from a failed envelope.
func decodeAPIError(status int, raw []byte) error {
	apiErr := &APIError{Status: status}
	var env struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		apiErr.Code = env.Code
		apiErr.Message = env.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// nullableID sends empty ids as JSON null.
func nullableID(id string) any {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	return id
}
