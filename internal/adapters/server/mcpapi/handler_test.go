package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/adapters/storage/sqlstore"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// newTestService builds a service over an in-memory sqlite repository.
func newTestService(t *testing.T) *app.Service {
	t.Helper()
	repo, err := sqlstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	var counter atomic.Int64
	idGen := func() string {
		return fmt.Sprintf("id-%d", counter.Add(1))
	}
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	return app.NewService(repo, idGen, func() time.Time { return now }, app.ServiceConfig{})
}

// newTestServer starts one MCP server over svc and sends initialize.
func newTestServer(t *testing.T, svc common.Service) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, svc)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server
}

// seedFunnel creates one funnel and its stages through the service.
func seedFunnel(t *testing.T, svc *app.Service, scope domain.FunnelScope, name string, stages ...string) domain.Funnel {
	t.Helper()
	ctx := context.Background()
	funnel, err := svc.CreateFunnel(ctx, scope, name)
	if err != nil {
		t.Fatalf("CreateFunnel() error = %v", err)
	}
	for _, stage := range stages {
		if _, err := svc.CreateStage(ctx, scope, app.CreateStageInput{FunnelID: funnel.ID, Name: stage}); err != nil {
			t.Fatalf("CreateStage() error = %v", err)
		}
	}
	funnel, err = svc.GetFunnel(ctx, scope, funnel.ID)
	if err != nil {
		t.Fatalf("GetFunnel() error = %v", err)
	}
	return funnel
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// callTool posts one tool call and returns the result payload.
func callTool(t *testing.T, server *httptest.Server, toolName string, arguments map[string]any) map[string]any {
	t.Helper()
	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(7, toolName, arguments))
	return resp.Result
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// decodeStructured re-decodes structuredContent into T.
func decodeStructured[T any](t *testing.T, result map[string]any) T {
	t.Helper()
	if isErr, _ := result["isError"].(bool); isErr {
		t.Fatalf("unexpected tool error: %s", toolResultText(t, result))
	}
	structured, ok := result["structuredContent"]
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	raw, err := json.Marshal(structured)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return out
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds the MCP initialize handshake payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "pipedesk-test",
				"version": "1.0.0",
			},
		},
	}
}

// callToolResultText decodes the first textual content block from a CallToolResult.
func callToolResultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatalf("result = nil, want non-nil")
	}
	if len(result.Content) == 0 {
		t.Fatalf("result content is empty")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] has unexpected type %T", result.Content[0])
	}
	return text.Text
}

func stageLabels(stages []common.StageDTO) []string {
	out := make([]string, 0, len(stages))
	for _, st := range stages {
		out = append(out, fmt.Sprintf("%d:%s", st.Order, st.Name))
	}
	return out
}

// TestHandlerUsesStatelessTransport verifies no MCP session id is issued.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, newTestService(t))
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersTools verifies MCP tool discovery lists every pipedesk tool.
func TestHandlerRegistersTools(t *testing.T) {
	server := newTestServer(t, newTestService(t))
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, want := range []string{
		"pipedesk.list_funnels",
		"pipedesk.create_stage",
		"pipedesk.move_stage",
		"pipedesk.place_entity",
		"pipedesk.unassign_entity",
		"pipedesk.board",
		"pipedesk.subproject_tree",
		"pipedesk.list_events",
	} {
		if !slices.Contains(toolNames, want) {
			t.Fatalf("tool list missing %s: %#v", want, toolNames)
		}
	}
}

// TestHandlerFunnelTools verifies listing, stage creation, and stage moves through MCP.
func TestHandlerFunnelTools(t *testing.T) {
	svc := newTestService(t)
	funnel := seedFunnel(t, svc, domain.ScopeSubProject, "Delivery", "Todo", "Doing")
	server := newTestServer(t, svc)

	listed := decodeStructured[struct {
		Funnels []common.FunnelDTO `json:"funnels"`
	}](t, callTool(t, server, "pipedesk.list_funnels", map[string]any{"scope": "subproject"}))
	if len(listed.Funnels) != 1 || listed.Funnels[0].ID != funnel.ID {
		t.Fatalf("unexpected funnels %#v", listed.Funnels)
	}
	empty := decodeStructured[struct {
		Funnels []common.FunnelDTO `json:"funnels"`
	}](t, callTool(t, server, "pipedesk.list_funnels", map[string]any{}))
	if len(empty.Funnels) != 0 {
		t.Fatalf("expected no project funnels, got %#v", empty.Funnels)
	}

	created := decodeStructured[common.StageDTO](t, callTool(t, server, "pipedesk.create_stage", map[string]any{
		"scope":     "subproject",
		"funnel_id": funnel.ID,
		"name":      "Done",
	}))
	if created.Order != 3 {
		t.Fatalf("Order = %d, want 3", created.Order)
	}

	moved := decodeStructured[struct {
		Stages []common.StageDTO `json:"stages"`
	}](t, callTool(t, server, "pipedesk.move_stage", map[string]any{
		"scope":           "subproject",
		"funnel_id":       funnel.ID,
		"stage_id":        created.ID,
		"before_stage_id": funnel.Stages[0].ID,
	}))
	if diff := cmp.Diff([]string{"1:Done", "2:Todo", "3:Doing"}, stageLabels(moved.Stages)); diff != "" {
		t.Fatalf("move mismatch (-want +got):\n%s", diff)
	}

	moved = decodeStructured[struct {
		Stages []common.StageDTO `json:"stages"`
	}](t, callTool(t, server, "pipedesk.move_stage", map[string]any{
		"scope":     "subproject",
		"funnel_id": funnel.ID,
		"stage_id":  created.ID,
		"direction": "right",
	}))
	if diff := cmp.Diff([]string{"1:Todo", "2:Done", "3:Doing"}, stageLabels(moved.Stages)); diff != "" {
		t.Fatalf("direction move mismatch (-want +got):\n%s", diff)
	}
}

// TestHandlerPlacementAndBoardTools verifies place, board, unassign, tree, and events tools.
func TestHandlerPlacementAndBoardTools(t *testing.T) {
	svc := newTestService(t)
	funnel := seedFunnel(t, svc, domain.ScopeProject, "Sales", "Lead", "Won")
	project, err := svc.CreateProject(context.Background(), app.CreateProjectInput{Name: "Acme"})
	if err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}
	if _, err := svc.CreateSubProject(context.Background(), app.CreateSubProjectInput{Name: "Rollout", ProjectID: project.ID}); err != nil {
		t.Fatalf("CreateSubProject() error = %v", err)
	}
	server := newTestServer(t, svc)

	placed := decodeStructured[common.ProjectDTO](t, callTool(t, server, "pipedesk.place_entity", map[string]any{
		"entity_type": "project",
		"entity_id":   project.ID,
		"stage_id":    funnel.Stages[1].ID,
	}))
	if placed.FunnelID == nil || *placed.FunnelID != funnel.ID {
		t.Fatalf("expected stage to select its funnel, got %#v", placed)
	}

	board := decodeStructured[common.BoardDTO[common.ProjectDTO]](t, callTool(t, server, "pipedesk.board", map[string]any{
		"funnel_id": funnel.ID,
	}))
	if len(board.Columns) != 2 || len(board.Columns[1].Entities) != 1 {
		t.Fatalf("unexpected board %#v", board)
	}

	unassigned := decodeStructured[common.ProjectDTO](t, callTool(t, server, "pipedesk.unassign_entity", map[string]any{
		"entity_type": "project",
		"entity_id":   project.ID,
	}))
	if unassigned.FunnelID != nil || unassigned.StageID != nil {
		t.Fatalf("expected unassigned project, got %#v", unassigned)
	}

	tree := decodeStructured[common.TreeDTO](t, callTool(t, server, "pipedesk.subproject_tree", map[string]any{"query": "roll"}))
	if tree.Total != 2 || len(tree.Open) != 1 {
		t.Fatalf("unexpected tree %#v", tree)
	}

	events := decodeStructured[struct {
		Events []common.ChangeEventDTO `json:"events"`
	}](t, callTool(t, server, "pipedesk.list_events", map[string]any{"limit": 1}))
	if len(events.Events) != 1 || events.Events[0].Operation != string(domain.ChangeOperationUnassign) {
		t.Fatalf("unexpected events %#v", events.Events)
	}
}

// TestHandlerToolErrors verifies tool failures surface as prefixed tool errors.
func TestHandlerToolErrors(t *testing.T) {
	svc := newTestService(t)
	funnel := seedFunnel(t, svc, domain.ScopeProject, "Sales", "Lead")
	server := newTestServer(t, svc)

	cases := []struct {
		name       string
		tool       string
		args       map[string]any
		wantPrefix string
	}{
		{
			name:       "bad direction",
			tool:       "pipedesk.move_stage",
			args:       map[string]any{"funnel_id": funnel.ID, "stage_id": funnel.Stages[0].ID, "direction": "sideways"},
			wantPrefix: "invalid_argument:",
		},
		{
			name:       "missing move target",
			tool:       "pipedesk.move_stage",
			args:       map[string]any{"funnel_id": funnel.ID, "stage_id": funnel.Stages[0].ID},
			wantPrefix: "invalid_argument:",
		},
		{
			name:       "wrong scope",
			tool:       "pipedesk.board",
			args:       map[string]any{"scope": "subproject", "funnel_id": funnel.ID},
			wantPrefix: "not_found:",
		},
		{
			name:       "unknown entity",
			tool:       "pipedesk.place_entity",
			args:       map[string]any{"entity_type": "project", "entity_id": "missing", "funnel_id": funnel.ID},
			wantPrefix: "not_found:",
		},
		{
			name:       "bad entity type",
			tool:       "pipedesk.unassign_entity",
			args:       map[string]any{"entity_type": "task", "entity_id": "x"},
			wantPrefix: "invalid_argument:",
		},
		{
			name:       "bad scope",
			tool:       "pipedesk.list_funnels",
			args:       map[string]any{"scope": "tasks"},
			wantPrefix: "invalid_argument:",
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, server, tt.tool, tt.args)
			if isErr, _ := result["isError"].(bool); !isErr {
				t.Fatalf("isError = false, want true: %#v", result)
			}
			if got := toolResultText(t, result); !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}

// TestNewHandlerRequiresService verifies construction fails closed without a service.
func TestNewHandlerRequiresService(t *testing.T) {
	handler, err := NewHandler(Config{}, nil)
	if err == nil {
		t.Fatalf("NewHandler() error = nil, want non-nil")
	}
	if handler != nil {
		t.Fatalf("handler = %#v, want nil", handler)
	}
}

// TestNormalizeConfig verifies deterministic config defaults and path normalization.
func TestNormalizeConfig(t *testing.T) {
	cases := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "defaults",
			in:   Config{},
			want: Config{ServerName: "pipedesk", ServerVersion: "dev", EndpointPath: "/mcp"},
		},
		{
			name: "trimmed values and slash prefix",
			in:   Config{ServerName: " pipedesk-server ", ServerVersion: " v1.2.3 ", EndpointPath: "custom/path"},
			want: Config{ServerName: "pipedesk-server", ServerVersion: "v1.2.3", EndpointPath: "/custom/path"},
		},
		{
			name: "endpoint trim of repeated slashes",
			in:   Config{EndpointPath: "///mcp///"},
			want: Config{ServerName: "pipedesk", ServerVersion: "dev", EndpointPath: "/mcp"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, normalizeConfig(tt.in)); diff != "" {
				t.Fatalf("normalizeConfig() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestHandlerServeHTTPUnavailable verifies nil handler paths fail closed with 503.
func TestHandlerServeHTTPUnavailable(t *testing.T) {
	cases := []struct {
		name    string
		handler *Handler
	}{
		{name: "nil receiver", handler: nil},
		{name: "missing inner http handler", handler: &Handler{}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
			rec := httptest.NewRecorder()

			tt.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusServiceUnavailable {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
			}
			if !strings.Contains(rec.Body.String(), "mcp handler unavailable") {
				t.Fatalf("body = %q, want mcp handler unavailable", rec.Body.String())
			}
		})
	}
}

// TestToolResultFromErrorMapping verifies deterministic error-to-tool-result mapping.
func TestToolResultFromErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantPrefix string
	}{
		{name: "nil error", err: nil, wantPrefix: "unknown error"},
		{name: "not found", err: fmt.Errorf("stage: %w", app.ErrNotFound), wantPrefix: "not_found:"},
		{name: "conflict", err: app.ErrFunnelInUse, wantPrefix: "conflict:"},
		{name: "invalid", err: errors.Join(common.ErrInvalidRequest, errors.New("bad")), wantPrefix: "invalid_argument:"},
		{name: "internal", err: errors.New("boom"), wantPrefix: "internal:"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			result := toolResultFromError(tt.err)
			if !result.IsError {
				t.Fatalf("IsError = false, want true")
			}
			if got := callToolResultText(t, result); !strings.HasPrefix(got, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", got, tt.wantPrefix)
			}
		})
	}
}
