package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/pipedesk/internal/adapters/server/common"
	"github.com/hylla/pipedesk/internal/app"
	"github.com/hylla/pipedesk/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// scopeOption declares the shared funnel scope argument.
func scopeOption() mcp.ToolOption {
	return mcp.WithString("scope",
		mcp.Description("Funnel scope: project or subproject (defaults to project)"),
		mcp.Enum(string(domain.ScopeProject), string(domain.ScopeSubProject)),
	)
}

// entityTypeOption declares the shared placeable entity type argument.
func entityTypeOption() mcp.ToolOption {
	return mcp.WithString("entity_type",
		mcp.Required(),
		mcp.Description("Entity type: project or subproject"),
		mcp.Enum(string(domain.EntityProject), string(domain.EntitySubProject)),
	)
}

// requestScope parses the optional scope argument.
func requestScope(req mcp.CallToolRequest) (domain.FunnelScope, error) {
	scope, err := domain.ParseFunnelScope(req.GetString("scope", ""))
	if err != nil {
		return "", fmt.Errorf("scope %q: %w", req.GetString("scope", ""), err)
	}
	return scope, nil
}

// jsonResult encodes one payload as a tool result.
func jsonResult(name string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	return result, nil
}

// registerFunnelTools registers funnel listing and stage editing tools.
func registerFunnelTools(srv *mcpserver.MCPServer, svc common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"pipedesk.list_funnels",
			mcp.WithDescription("List funnels of one scope with their stages in order."),
			scopeOption(),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := requestScope(req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			funnels, err := svc.ListFunnels(ctx, scope)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_funnels", map[string]any{
				"funnels": common.FunnelsFromDomain(funnels),
			})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pipedesk.create_stage",
			mcp.WithDescription("Create a stage on a funnel. Without order the stage is appended."),
			scopeOption(),
			mcp.WithString("funnel_id", mcp.Required(), mcp.Description("Funnel identifier")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Stage name")),
			mcp.WithNumber("order", mcp.Description("1-based stage order")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := requestScope(req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			funnelID, err := req.RequireString("funnel_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			name, err := req.RequireString("name")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stage, err := svc.CreateStage(ctx, scope, app.CreateStageInput{
				FunnelID: funnelID,
				Name:     name,
				Order:    req.GetInt("order", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_stage", common.StageFromDomain(stage))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pipedesk.move_stage",
			mcp.WithDescription("Move a stage one step (direction) or before another stage (before_stage_id); returns every stage."),
			scopeOption(),
			mcp.WithString("funnel_id", mcp.Required(), mcp.Description("Funnel identifier")),
			mcp.WithString("stage_id", mcp.Required(), mcp.Description("Stage to move")),
			mcp.WithString("direction", mcp.Description("up, down, left, or right")),
			mcp.WithString("before_stage_id", mcp.Description("Drop target stage")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := requestScope(req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			funnelID, err := req.RequireString("funnel_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			stageID, err := req.RequireString("stage_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			var stages []domain.Stage
			before := strings.TrimSpace(req.GetString("before_stage_id", ""))
			direction := strings.TrimSpace(req.GetString("direction", ""))
			switch {
			case before != "":
				stages, err = svc.MoveStageBefore(ctx, scope, funnelID, stageID, before)
			case direction != "":
				stages, err = svc.MoveStage(ctx, scope, funnelID, stageID, domain.Direction(direction))
			default:
				err = fmt.Errorf("direction or before_stage_id is required: %w", common.ErrInvalidRequest)
			}
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("move_stage", map[string]any{
				"stages": common.StagesFromDomain(stages),
			})
		},
	)
}

// registerPlacementTools registers entity placement tools.
func registerPlacementTools(srv *mcpserver.MCPServer, svc common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"pipedesk.place_entity",
			mcp.WithDescription("Place a project or subproject on a funnel stage. A stage alone selects its funnel."),
			entityTypeOption(),
			mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
			mcp.WithString("funnel_id", mcp.Description("Funnel identifier")),
			mcp.WithString("stage_id", mcp.Description("Stage identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			entityType, entityID, err := entityArgs(req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			placement := domain.Placement{
				FunnelID: req.GetString("funnel_id", ""),
				StageID:  req.GetString("stage_id", ""),
			}
			if strings.TrimSpace(placement.FunnelID) == "" && strings.TrimSpace(placement.StageID) == "" {
				return toolResultFromError(fmt.Errorf("funnel_id or stage_id is required: %w", common.ErrInvalidRequest)), nil
			}
			if entityType == domain.EntitySubProject {
				sp, err := svc.PlaceSubProject(ctx, entityID, placement)
				if err != nil {
					return toolResultFromError(err), nil
				}
				return jsonResult("place_entity", common.SubProjectFromDomain(sp))
			}
			project, err := svc.PlaceProject(ctx, entityID, placement)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("place_entity", common.ProjectFromDomain(project))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pipedesk.unassign_entity",
			mcp.WithDescription("Remove a project or subproject from its funnel and stage."),
			entityTypeOption(),
			mcp.WithString("entity_id", mcp.Required(), mcp.Description("Entity identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			entityType, entityID, err := entityArgs(req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			if entityType == domain.EntitySubProject {
				sp, err := svc.UnassignSubProject(ctx, entityID)
				if err != nil {
					return toolResultFromError(err), nil
				}
				return jsonResult("unassign_entity", common.SubProjectFromDomain(sp))
			}
			project, err := svc.UnassignProject(ctx, entityID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("unassign_entity", common.ProjectFromDomain(project))
		},
	)
}

// entityArgs reads and validates entity_type and entity_id.
func entityArgs(req mcp.CallToolRequest) (domain.EntityType, string, error) {
	rawType, err := req.RequireString("entity_type")
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", err.Error(), common.ErrInvalidRequest)
	}
	entityID, err := req.RequireString("entity_id")
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", err.Error(), common.ErrInvalidRequest)
	}
	switch entityType := domain.EntityType(strings.ToLower(strings.TrimSpace(rawType))); entityType {
	case domain.EntityProject, domain.EntitySubProject:
		return entityType, entityID, nil
	default:
		return "", "", fmt.Errorf("entity_type %q: %w", rawType, common.ErrInvalidRequest)
	}
}

// registerBoardTools registers read-only board, tree, and activity tools.
func registerBoardTools(srv *mcpserver.MCPServer, svc common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"pipedesk.board",
			mcp.WithDescription("Return a funnel grouped into stage columns plus its unassigned bucket."),
			scopeOption(),
			mcp.WithString("funnel_id", mcp.Required(), mcp.Description("Funnel identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			scope, err := requestScope(req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			funnelID, err := req.RequireString("funnel_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if scope == domain.ScopeSubProject {
				board, err := svc.SubProjectBoard(ctx, funnelID)
				if err != nil {
					return toolResultFromError(err), nil
				}
				return jsonResult("board", common.BoardFromDomain(board, common.SubProjectFromDomain))
			}
			board, err := svc.ProjectBoard(ctx, funnelID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("board", common.BoardFromDomain(board, common.ProjectFromDomain))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pipedesk.subproject_tree",
			mcp.WithDescription("Return the project/subproject hierarchy, optionally filtered by name."),
			mcp.WithString("query", mcp.Description("Case-insensitive name filter")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			view, err := svc.SubprojectTree(ctx, req.GetString("query", ""))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("subproject_tree", common.TreeFromView(view))
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"pipedesk.list_events",
			mcp.WithDescription("List recent change events, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum rows (default 50)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			events, err := svc.ListChangeEvents(ctx, req.GetInt("limit", 0))
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_events", map[string]any{
				"events": common.ChangeEventsFromDomain(events),
			})
		},
	)
}
