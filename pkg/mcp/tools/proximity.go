package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/models"
)

const (
	defaultContactLimit = 50
	maxContactLimit     = 1024
	defaultNearbyLimit  = 50
	maxNearbyLimit      = 1024
)

type proximityResult struct {
	Strategy   string             `json:"strategy"`
	Localities []*models.Locality `json:"localities"`
	Count      int                `json:"count"`
}

type contactsResult struct {
	UserID   string            `json:"user_id"`
	Contacts []*models.Contact `json:"contacts"`
	Count    int               `json:"count"`
}

type nearbyResult struct {
	LocationID string           `json:"location_id"`
	Nearby     []*models.Nearby `json:"nearby"`
	Count      int              `json:"count"`
}

func registerQueryProximityTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"query_proximity",
		mcp.WithDescription(`Answers "where is this user, or the people they know".
Which optional arguments are present picks the strategy:
- none: the user's current locality
- start: the user's own history
- strength: current localities of contacts at least that strong
- strength + start: contacts' history
- strength + location_id: contacts currently at that location
- strength + location_id + start: contacts' history at that location
max_distance (meters) narrows current-contact results to those near the user.`),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the requesting user")),
		mcp.WithString("location_id", mcp.Description("Restrict to one location")),
		mcp.WithNumber("strength", mcp.Description("Minimum relationship strength, 0 to 100")),
		mcp.WithNumber("max_distance", mcp.Description("Max distance in meters from the user's current location")),
		mcp.WithString("start", mcp.Description("Earliest arrival, RFC 3339")),
		mcp.WithString("end", mcp.Description("Latest arrival, RFC 3339 (default: now)")),
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

		q := &models.ProximityQuery{UserID: userID}
		if locationID, ok := getOptionalString(req, "location_id"); ok {
			q.LocationID = &locationID
		}
		if strength, ok := getOptionalInt(req, "strength"); ok {
			q.Strength = &strength
		}
		if maxDistance, ok := getOptionalFloat(req, "max_distance"); ok {
			q.MaxDistance = &maxDistance
		}
		var err error
		if q.DateStart, err = getOptionalTime(req, "start"); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if q.DateEnd, err = getOptionalTime(req, "end"); err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		if deps.Query.Classify(q) == models.QueryTypeUnknown {
			return NewErrorResultWithDetails("invalid_parameters",
				"location_id requires strength",
				map[string]any{"location_id": *q.LocationID}), nil
		}

		result, err := deps.Query.Resolve(ctx, q)
		if err != nil {
			logToolError(deps.Logger, "query_proximity", err, zap.String("user_id", userID))
			return serviceResult("resolve proximity query", err)
		}
		return jsonResult(proximityResult{
			Strategy:   result.Strategy,
			Localities: result.Localities,
			Count:      len(result.Localities),
		})
	})
}

func registerGetContactsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_contacts",
		mcp.WithDescription("Lists the users someone knows, with relationship strength. "+
			"direction=inbound lists who knows them instead."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("ID of the user")),
		mcp.WithNumber("min_strength", mcp.Description("Minimum strength, 0 to 100 (default: 0)")),
		mcp.WithString("direction", mcp.Description("outbound (default) or inbound")),
		mcp.WithNumber("limit", mcp.Description("Max contacts to return (default: 50, max: 1024)")),
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
		minStrength, _ := getOptionalInt(req, "min_strength")
		raw, _ := getOptionalString(req, "direction")
		dir, err := models.ParseDirection(raw)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		limit := clampLimit(req, defaultContactLimit, maxContactLimit)

		contacts, err := deps.Social.GetKnows(ctx, userID, minStrength, dir, limit)
		if err != nil {
			logToolError(deps.Logger, "get_contacts", err, zap.String("user_id", userID))
			return serviceResult("get contacts", err)
		}
		return jsonResult(contactsResult{UserID: userID, Contacts: contacts, Count: len(contacts)})
	})
}

func registerGetNearbyLocationsTool(s *server.MCPServer, deps *ToolDeps) {
	tool := mcp.NewTool(
		"get_nearby_locations",
		mcp.WithDescription("Lists locations recorded as nearby a location, with their distance in meters."),
		mcp.WithString("location_id", mcp.Required(), mcp.Description("ID of the location")),
		mcp.WithNumber("max_distance", mcp.Description("Only return locations at most this many meters away")),
		mcp.WithNumber("limit", mcp.Description("Max locations to return (default: 50, max: 1024)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		locationID, errResult := requireID(req, "location_id")
		if errResult != nil {
			return errResult, nil
		}
		maxDistance, ok := getOptionalFloat(req, "max_distance")
		if !ok {
			maxDistance = -1
		}
		limit := clampLimit(req, defaultNearbyLimit, maxNearbyLimit)

		nearby, err := deps.Spatial.GetNearby(ctx, locationID, maxDistance, limit)
		if err != nil {
			logToolError(deps.Logger, "get_nearby_locations", err, zap.String("location_id", locationID))
			return serviceResult("get nearby locations", err)
		}
		return jsonResult(nearbyResult{LocationID: locationID, Nearby: nearby, Count: len(nearby)})
	})
}
