package memstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/commerce-router/internal/model/service"
	"github.com/zhouzirui/commerce-router/internal/model/session"
	"github.com/zhouzirui/commerce-router/internal/store"
)

func newSession(user, svc string, last time.Time) *session.Session {
	s := session.New(user, service.Descriptor{Tag: svc}, nil, last.Add(-time.Minute), session.UserMessage("hi"))
	s.LastActiveAt = last
	return s
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	st := NewSessionStore(24 * time.Hour)
	now := time.Now().UTC()

	a := newSession("u1", "dominos", now.Add(-5*time.Minute))
	b := newSession("u1", "uber", now.Add(-time.Minute))
	stale := newSession("u1", "opentable", now.Add(-time.Hour))
	other := newSession("u2", "uber", now)
	for _, s := range []*session.Session{a, b, stale, other} {
		require.NoError(t, st.Create(ctx, s))
	}
	assert.ErrorIs(t, st.Create(ctx, a), store.ErrDuplicateSession)

	since := now.Add(-session.DefaultActiveWindow)
	active, err := store.FindActive(ctx, st, "u1", "", since)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, b.ID, active.ID)

	byService, err := store.FindActive(ctx, st, "u1", "dominos", since)
	require.NoError(t, err)
	assert.Equal(t, a.ID, byService.ID)

	none, err := store.FindActive(ctx, st, "u1", "opentable", since)
	require.NoError(t, err)
	assert.Nil(t, none)

	a.History = append(a.History, session.AssistantMessage("ok"))
	a.LastActiveAt = now
	ok, err := st.Update(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)
	active, _ = store.FindActive(ctx, st, "u1", "", since)
	assert.Equal(t, a.ID, active.ID)
	assert.Len(t, active.History, 2)

	require.NoError(t, st.Expire(ctx, "u1"))
	active, _ = store.FindActive(ctx, st, "u1", "", since)
	assert.Nil(t, active)
	ok, _ = st.Update(ctx, a)
	assert.False(t, ok)

	stillThere, _ := store.FindActive(ctx, st, "u2", "", since)
	assert.NotNil(t, stillThere)
}

func TestStoredCopiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := NewSessionStore(time.Hour)
	s := newSession("u1", "dominos", time.Now())
	require.NoError(t, st.Create(ctx, s))

	s.History = append(s.History, session.AssistantMessage("not persisted"))
	got, _ := store.FindActive(ctx, st, "u1", "", time.Time{})
	assert.Len(t, got.History, 1)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	st := NewSessionStore(48 * time.Hour)
	now := time.Now()
	require.NoError(t, st.Create(ctx, newSession("u1", "uber", now.Add(-25*time.Hour))))
	require.NoError(t, st.Create(ctx, newSession("u2", "uber", now)))

	n, err := st.Purge(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, st.Len())
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := `
profiles:
  - id: u1
    full_name: John Smith
    phone: 555-1234
    address:
      street: 1 Main St
      city: Springfield
  - id: u2
    email: jane@example.com
    address: 42 Elm Road
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	st, err := LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Len())

	p, err := st.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "John Smith", p.FullName)
	assert.Equal(t, "1 Main St, Springfield", p.Address.String())

	p2, _ := st.Get(context.Background(), "u2")
	assert.Equal(t, "42 Elm Road", p2.Address.String())

	missing, err := st.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}
