package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/graphstore/memstore"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/mcp/tools"
	"github.com/ekaya-inc/whereabouts/pkg/services"
)

func TestNewServer(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	require.NotNil(t, s)
	require.NotNil(t, s.mcp)
	assert.Same(t, s.mcp, s.MCP())
	assert.NotNil(t, s.logger)
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	assert.NotNil(t, s.NewStreamableHTTPServer())
}

func toolNames(t *testing.T, s *Server) []string {
	t.Helper()
	result := s.MCP().HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))
	var names []string
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())

	handlerCalled := false
	s.RegisterTool(mcp.NewTool("test-tool", mcp.WithDescription("A test tool")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			handlerCalled = true
			return mcp.NewToolResultText("success"), nil
		})

	assert.False(t, handlerCalled, "handler should not be called during registration")
	assert.Contains(t, toolNames(t, s), "test-tool")
}

func TestServer_RegisterTools(t *testing.T) {
	logger := zap.NewNop()
	store := memstore.New()
	locker := locking.NewKeyedMutex()
	tracker := services.NewLocalityTracker(store, locker, nil, logger)
	social := services.NewSocialGraphService(store, locker, nil, logger)
	spatial := services.NewSpatialGraphService(store, locker, nil, logger)

	s := NewServer(ServerName, "1.0.0", logger)
	s.RegisterTools("1.0.0", "memory", &tools.ToolDeps{
		Tracker: tracker,
		Social:  social,
		Spatial: spatial,
		Query:   services.NewProximityQueryService(store, tracker, social, spatial, services.DefaultQueryLimits, nil, logger),
	})

	assert.ElementsMatch(t, []string{
		"health",
		"get_current_locality",
		"get_locality_history",
		"query_proximity",
		"get_contacts",
		"get_nearby_locations",
	}, toolNames(t, s))
}

func TestServer_RecoversToolPanics(t *testing.T) {
	s := NewServer("test-server", "1.0.0", zap.NewNop())
	s.RegisterTool(mcp.NewTool("boom"), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		panic("boom")
	})

	result := s.MCP().HandleMessage(context.Background(),
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"boom"}}`))
	raw, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &response))
	require.NotNil(t, response.Error, "panic surfaces as a JSON-RPC error")
	assert.Contains(t, response.Error.Message, "panic")
}
