package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/models"
	"github.com/ekaya-inc/whereabouts/pkg/services"
)

const (
	defaultHistoryDepth = 20
	maxHistoryDepth     = services.DefaultHistoryLimit
)

// ToolDeps contains the services the whereabouts MCP tools read from.
type ToolDeps struct {
	Tracker services.LocalityTracker
	Social  services.SocialGraphService
	Spatial services.SpatialGraphService
	Query   services.ProximityQueryService
	Logger  *zap.Logger
}

// RegisterTools registers every whereabouts tool. All of them are read-only.
func RegisterTools(s *server.MCPServer, deps *ToolDeps) {
	registerGetCurrentLocalityTool(s, deps)
	registerGetLocalityHistoryTool(s, deps)
	registerQueryProximityTool(s, deps)
	registerGetContactsTool(s, deps)
	registerGetNearbyLocationsTool(s, deps)
}

type currentLocalityResult struct {
	UserID   string           `json:"user_id"`
	Present  bool             `json:"present"`
	Locality *models.Locality `json:"locality,omitempty"`
}

type historyResult struct {
	UserID     string             `json:"user_id"`
	Localities []*models.Locality `json:"localities"`
	Count      int                `json:"count"`
}

// requireID reads a required id argument, returning a structured error result
// when it is missing or blank.
func requireID(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	id, err := req.RequireString(key)
	if err != nil {
		return "", NewErrorResult("invalid_parameters", err.Error())
	}
	id = trimString(id)
	if id == "" {
		return "", NewErrorResult("invalid_parameters", key+" cannot be empty")
	}
	return id, nil
}

func registerGetCurrentLocalityTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_current_locality",
		mcp.WithDescription("Returns where a user is right now: the active locality, its location and how it was detected. "+
			"present is false when the user is not checked in anywhere."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the user")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, errResult := requireID(req, "user_id")
		if errResult != nil {
			return errResult, nil
		}

		locality, err := deps.Tracker.GetCurrent(ctx, userID)
		if err != nil {
			logToolError(deps.Logger, "get_current_locality", err, zap.String("user_id", userID))
			return serviceResult("get current locality", err)
		}
		return jsonResult(currentLocalityResult{UserID: userID, Present: locality != nil, Locality: locality})
	})
}

func registerGetLocalityHistoryTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_locality_history",
		mcp.WithDescription("Returns a user's closed localities, newest first. "+
			"With start (and optionally end) only localities that arrived in that window are returned; "+
			"otherwise the most recent ones up to limit."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the user")),
		mcp.WithString("start", mcp.Description("Earliest arrival, RFC 3339")),
		mcp.WithString("end", mcp.Description("Latest arrival, RFC 3339 (default: now)")),
		mcp.WithNumber("limit", mcp.Description("Max localities to return (default: 20, max: 1024)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, errResult := requireID(req, "user_id")
		if errResult != nil {
			return errResult, nil
		}
		start, err := getOptionalTime(req, "start")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		end, err := getOptionalTime(req, "end")
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		limit := clampLimit(req, defaultHistoryDepth, maxHistoryDepth)

		var localities []*models.Locality
		switch {
		case start != nil:
			to := time.Now().UTC()
			if end != nil {
				to = *end
			}
			localities, err = deps.Tracker.GetHistoryInRange(ctx, userID, *start, to, limit)
		case end != nil:
			localities, err = deps.Tracker.GetHistoryInRange(ctx, userID, time.Time{}, *end, limit)
		default:
			localities, err = deps.Tracker.GetHistory(ctx, userID, limit)
		}
		if err != nil {
			logToolError(deps.Logger, "get_locality_history", err, zap.String("user_id", userID))
			return serviceResult("get locality history", err)
		}
		if localities == nil {
			localities = []*models.Locality{}
		}
		return jsonResult(historyResult{UserID: userID, Localities: localities, Count: len(localities)})
	})
}

// logToolError logs input errors at DEBUG and everything else at ERROR.
func logToolError(logger *zap.Logger, tool string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("tool", tool), zap.Error(err))
	if IsInputError(err) {
		logger.Debug("MCP tool input error", fields...)
		return
	}
	logger.Error("MCP tool failed", fields...)
}
