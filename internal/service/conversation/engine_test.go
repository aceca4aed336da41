package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/commerce-router/internal/metrics"
	"github.com/zhouzirui/commerce-router/internal/model/profile"
	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/service/completion"
	"github.com/zhouzirui/commerce-router/internal/store"
	"github.com/zhouzirui/commerce-router/internal/store/memstore"
)

type step struct {
	result *completion.Result
	err    error
	block  bool
}

// fakeCompleter replays steps in order and records every request.
type fakeCompleter struct {
	mu       sync.Mutex
	steps    []step
	requests []completion.Request
}

func (f *fakeCompleter) Generate(ctx context.Context, req completion.Request) (*completion.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	if len(f.steps) == 0 {
		f.mu.Unlock()
		return nil, errors.New("unexpected call")
	}
	s := f.steps[0]
	f.steps = f.steps[1:]
	f.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.result, s.err
}

func text(parts ...string) *completion.Result {
	r := &completion.Result{}
	for _, p := range parts {
		r.Blocks = append(r.Blocks, completion.Block{Kind: completion.BlockText, Text: p})
	}
	return r
}

type failingUpdates struct {
	store.SessionStore
}

func (failingUpdates) Update(context.Context, *session.Session) (bool, error) {
	return false, errors.New("db down")
}

var fixedNow = time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)

func setup(t *testing.T, fc *fakeCompleter, p *profile.Profile) (*Engine, *memstore.SessionStore, *session.Session, *metrics.Metrics) {
	t.Helper()
	reg := service.MustRegistry(service.Seed())
	desc, _ := reg.Lookup("dominos")
	st := memstore.NewSessionStore(24 * time.Hour)
	m := metrics.New(prometheus.NewRegistry())

	sess := session.New("u1", desc, p, fixedNow.Add(-time.Minute), session.UserMessage("handoff"))
	require.NoError(t, st.Create(context.Background(), sess))

	e := NewEngine(fc, st, reg, WithClock(func() time.Time { return fixedNow }), WithMetrics(m))
	return e, st, sess, m
}

func TestRespondAppendsAndPersists(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{result: text("Sure, ", "what size?")}}}
	e, st, sess, _ := setup(t, fc, nil)

	reply, err := e.Respond(context.Background(), sess, "large pepperoni")
	require.NoError(t, err)
	assert.Equal(t, "Sure, what size?", reply)

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	require.NotNil(t, req.ToolProvider)
	assert.Equal(t, []session.Message{session.UserMessage("handoff"), session.UserMessage("large pepperoni")}, req.History)
	assert.True(t, strings.HasPrefix(req.SystemPrompt, sess.Context.Service.SystemPrompt))
	assert.Contains(t, req.SystemPrompt, "RESPONSE STYLE:")
	assert.NotContains(t, req.SystemPrompt, "CUSTOMER PROFILE")

	stored, err := store.FindActive(context.Background(), st, "u1", "", fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []session.Message{
		session.UserMessage("handoff"),
		session.UserMessage("large pepperoni"),
		session.AssistantMessage("Sure, what size?"),
	}, stored.History)
	assert.Equal(t, fixedNow, stored.LastActiveAt)
}

func TestRespondEmptyIncrementalAddsNoUserTurn(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{result: text("Welcome!")}}}
	e, _, sess, _ := setup(t, fc, nil)

	_, err := e.Respond(context.Background(), sess, "")
	require.NoError(t, err)
	assert.Len(t, fc.requests[0].History, 1)
	assert.Len(t, sess.History, 2)
}

func TestRespondIncludesProfileBlock(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{result: text("ok")}}}
	p := &profile.Profile{ID: "u1", FullName: "John Smith", Phone: "555-1234", Address: &profile.Address{Street: "1 Main St", City: "Springfield"}}
	e, _, sess, _ := setup(t, fc, p)

	_, err := e.Respond(context.Background(), sess, "hi")
	require.NoError(t, err)

	prompt := fc.requests[0].SystemPrompt
	assert.Contains(t, prompt, "CUSTOMER PROFILE:")
	assert.Contains(t, prompt, "- User ID: u1")
	assert.Contains(t, prompt, "- Name: John Smith")
	assert.Contains(t, prompt, "- Phone: 555-1234")
	assert.Contains(t, prompt, "- Email: Not provided")
	assert.Contains(t, prompt, "- Address: 1 Main St, Springfield")
	assert.Contains(t, prompt, "personalized service")
	assert.Less(t, strings.Index(prompt, "RESPONSE STYLE"), strings.Index(prompt, "CUSTOMER PROFILE"))
}

func TestRespondToolResultsFollowModelOrder(t *testing.T) {
	res := &completion.Result{Blocks: []completion.Block{
		{Kind: completion.BlockText, Text: "Found:"},
		{Kind: completion.BlockToolResult, Text: "Store #42"},
		{Kind: completion.BlockText, Text: " Anything else?"},
	}}
	fc := &fakeCompleter{steps: []step{{result: res}}}
	e, _, sess, _ := setup(t, fc, nil)

	reply, err := e.Respond(context.Background(), sess, "find store")
	require.NoError(t, err)
	assert.Equal(t, "Found:\n\nStore #42 Anything else?", reply)
}

func TestRespondDegradesExactlyOnce(t *testing.T) {
	fc := &fakeCompleter{steps: []step{
		{err: errors.New("mcp unreachable")},
		{result: text("I can still help.")},
	}}
	e, _, sess, m := setup(t, fc, nil)

	reply, err := e.Respond(context.Background(), sess, "order pizza")
	require.NoError(t, err)
	assert.Equal(t, "I can still help.", reply)

	require.Len(t, fc.requests, 2)
	assert.NotNil(t, fc.requests[0].ToolProvider)
	assert.Nil(t, fc.requests[1].ToolProvider)
	assert.True(t, strings.HasSuffix(fc.requests[1].SystemPrompt,
		"Note: I don't have access to external tools right now, but I can still help you with general information about dominos."))
	assert.Equal(t, fc.requests[0].History, fc.requests[1].History)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionDegraded.WithLabelValues("dominos")))
}

func TestRespondTimeoutDegrades(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{block: true}, {result: text("fallback answer")}}}
	e, _, sess, _ := setup(t, fc, nil)
	e.timeout = 20 * time.Millisecond

	reply, err := e.Respond(context.Background(), sess, "order pizza")
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", reply)
	assert.Len(t, fc.requests, 2)
}

func TestRespondEmptyOutputUsesFallbackText(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{err: errors.New("boom")}, {result: &completion.Result{}}}}
	e, _, sess, _ := setup(t, fc, nil)

	reply, err := e.Respond(context.Background(), sess, "order pizza")
	require.NoError(t, err)
	assert.Equal(t, "I received a response from dominos but couldn't process it properly.", reply)
}

func TestRespondBothAttemptsFailPersistsNothing(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{err: errors.New("mcp down")}, {err: errors.New("api down")}}}
	e, st, sess, m := setup(t, fc, nil)
	before := sess.Clone()

	_, err := e.Respond(context.Background(), sess, "order pizza")
	require.ErrorIs(t, err, ErrCompletionFailed)
	assert.Len(t, fc.requests, 2)

	assert.Equal(t, before.History, sess.History)
	assert.Equal(t, before.LastActiveAt, sess.LastActiveAt)
	stored, _ := store.FindActive(context.Background(), st, "u1", "", time.Time{})
	assert.Len(t, stored.History, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompletionFailures.WithLabelValues("dominos")))
}

func TestRespondWithoutToolProviderMakesSingleCall(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{err: errors.New("api down")}}}
	reg := service.MustRegistry([]service.Descriptor{{Tag: "florist", Keywords: []string{"flowers"}, Description: "flowers", SystemPrompt: "sell flowers"}})
	desc, _ := reg.Lookup("florist")
	st := memstore.NewSessionStore(time.Hour)
	sess := session.New("u1", desc, nil, time.Now())
	require.NoError(t, st.Create(context.Background(), sess))

	_, err := NewEngine(fc, st, reg).Respond(context.Background(), sess, "roses")
	require.ErrorIs(t, err, ErrCompletionFailed)
	assert.Len(t, fc.requests, 1)
}

func TestRespondUpdateFailureStillReturnsText(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{result: text("done")}}}
	e, st, sess, m := setup(t, fc, nil)
	e.sessions = failingUpdates{st}

	reply, err := e.Respond(context.Background(), sess, "order pizza")
	require.NoError(t, err)
	assert.Equal(t, "done", reply)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("update")))
}

func TestRespondRestoresCredentialsFromRegistry(t *testing.T) {
	fc := &fakeCompleter{steps: []step{{result: text("ok")}}}
	reg := service.MustRegistry([]service.Descriptor{{
		Tag: "florist", Keywords: []string{"flowers"}, Description: "flowers", SystemPrompt: "sell flowers",
		ToolProvider: &service.ToolProvider{Type: "url", URL: "https://mcp.example.com", Name: "florist", AuthorizationToken: "secret"},
	}})
	desc, _ := reg.Lookup("florist")
	desc.ToolProvider.AuthorizationToken = ""
	st := memstore.NewSessionStore(time.Hour)
	sess := session.New("u1", desc, nil, time.Now())
	require.NoError(t, st.Create(context.Background(), sess))

	_, err := NewEngine(fc, st, reg).Respond(context.Background(), sess, "roses")
	require.NoError(t, err)
	assert.Equal(t, "secret", fc.requests[0].ToolProvider.AuthorizationToken)
}
