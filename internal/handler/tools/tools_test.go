package tools

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/commerce-router/internal/mcp"
	"github.com/zhouzirui/commerce-router/internal/model/profile"
	"github.com/zhouzirui/commerce-router/internal/service/router"
	"github.com/zhouzirui/commerce-router/internal/store/memstore"
)

type recordingRouter struct {
	got    router.Request
	ctxErr error
}

func (r *recordingRouter) Route(ctx context.Context, req router.Request) (router.Reply, error) {
	r.got = req
	r.ctxErr = ctx.Err()
	return router.Reply{
		Text:     "I specialize in commerce services",
		Decision: router.DecisionRejected,
		Err:      router.ErrUnsupportedIntent,
	}, nil
}

func connect(t *testing.T, rr *recordingRouter) *mcp.Client {
	t.Helper()
	profiles := memstore.NewProfileStore([]profile.Profile{{ID: "u1", FullName: "John Smith", Phone: "555-1234"}})
	srv, err := NewServer(rr, profiles, "test")
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	client := mcp.NewClient("test-client", "test", mcp.NewHTTPTransport(mcp.HTTPConfig{URL: ts.URL}))
	require.NoError(t, client.Initialize(context.Background()))
	return client
}

func TestListsBothTools(t *testing.T) {
	client := connect(t, &recordingRouter{})

	defs, err := client.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, RouteTool, defs[0].Name)
	assert.Equal(t, ProfileTool, defs[1].Name)
}

func TestRouteToolRelaysUserVisibleText(t *testing.T) {
	rr := &recordingRouter{}
	client := connect(t, rr)

	out, err := client.CallTool(context.Background(), RouteTool, map[string]any{
		"user_id":           "u1",
		"message":           "What's the weather?",
		"force_service":     "uber",
		"force_new_session": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "I specialize in commerce services", out)
	assert.Equal(t, router.Request{UserID: "u1", Message: "What's the weather?", ForceService: "uber", ForceNewSession: true}, rr.got)
}

func TestRouteToolRejectsBadArguments(t *testing.T) {
	client := connect(t, &recordingRouter{})

	_, err := client.CallTool(context.Background(), RouteTool, map[string]any{"user_id": "u1"})
	var rpcErr *mcp.RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, mcp.CodeInvalidParams, rpcErr.Code)

	_, err = client.CallTool(context.Background(), RouteTool, map[string]any{"message": "hi", "force_new_session": "yes"})
	require.True(t, errors.As(err, &rpcErr))
}

func TestRouteToolSynthesizesUserID(t *testing.T) {
	rr := &recordingRouter{}
	client := connect(t, rr)

	_, err := client.CallTool(context.Background(), RouteTool, map[string]any{"message": "I want pizza"})
	require.NoError(t, err)
	assert.NotEmpty(t, rr.got.UserID)
}

func TestProfileTool(t *testing.T) {
	client := connect(t, &recordingRouter{})

	out, err := client.CallTool(context.Background(), ProfileTool, map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	assert.Contains(t, out, "Profile found:")
	assert.Contains(t, out, `"name": "John Smith"`)
	assert.Contains(t, out, `"has_phone": true`)
	assert.NotContains(t, out, "555-1234")

	out, err = client.CallTool(context.Background(), ProfileTool, map[string]any{"user_id": "ghost"})
	require.NoError(t, err)
	assert.Equal(t, "No profile found for user ghost", out)
}

func TestRouteToolIgnoresCallerCancellation(t *testing.T) {
	rr := &recordingRouter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := routeHandler(rr)(ctx, map[string]any{"user_id": "u1", "message": "ride to the airport"})
	require.NoError(t, err)
	assert.Equal(t, "I specialize in commerce services", out)
	assert.Equal(t, "ride to the airport", rr.got.Message)
	assert.NoError(t, rr.ctxErr)
}
