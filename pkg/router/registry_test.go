package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/discord-router/pkg/domain"
	"github.com/sipeed/discord-router/pkg/infrastructure/eventbus"
)

func mustListener(t *testing.T, id, token string, kind EventKind, f FilterSpec, reply ReplyAddress) *Listener {
	t.Helper()
	l, err := NewListener(id, token, kind, f, reply, true)
	require.NoError(t, err)
	return l
}

func TestRegisterThenDeregisterLeavesNothing(t *testing.T) {
	reg := NewRegistry(nil)
	reg.EnsureToken("tok")

	reg.Register(mustListener(t, "n1", "tok", KindMessage, FilterSpec{}, &recorder{}))
	assert.Equal(t, 1, reg.Count("tok"))

	assert.True(t, reg.Deregister("n1"))
	assert.Equal(t, 0, reg.Count("tok"))
	assert.Equal(t, 0, reg.Len())
	assert.False(t, reg.Deregister("n1"))
}

func TestRegisterIsUpsert(t *testing.T) {
	reg := NewRegistry(nil)
	rec := &recorder{}

	reg.Register(mustListener(t, "n1", "tok-a", KindMessage, FilterSpec{}, rec))
	reg.Register(mustListener(t, "n1", "tok-a", KindRoleCreate, FilterSpec{}, rec))
	require.Len(t, reg.Snapshot("tok-a"), 1)
	assert.Equal(t, KindRoleCreate, reg.Snapshot("tok-a")[0].Kind)

	reg.Register(mustListener(t, "n1", "tok-b", KindRoleCreate, FilterSpec{}, rec))
	assert.Equal(t, 0, reg.Count("tok-a"))
	assert.Equal(t, 1, reg.Count("tok-b"))
	assert.Equal(t, 1, reg.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	reg := NewRegistry(nil)
	rec := &recorder{}
	reg.Register(mustListener(t, "b", "tok", KindMessage, FilterSpec{}, rec))
	reg.Register(mustListener(t, "a", "tok", KindMessage, FilterSpec{}, rec))

	snap := reg.Snapshot("tok")
	reg.Deregister("a")
	reg.Register(mustListener(t, "c", "tok", KindMessage, FilterSpec{}, rec))

	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)
}

func TestDeregisterReply(t *testing.T) {
	reg := NewRegistry(nil)
	gone, stays := &recorder{}, &recorder{}

	reg.Register(mustListener(t, "n1", "tok-a", KindMessage, FilterSpec{}, gone))
	reg.Register(mustListener(t, "n2", "tok-b", KindRoleCreate, FilterSpec{}, gone))
	reg.Register(mustListener(t, "n3", "tok-a", KindMessage, FilterSpec{}, stays))

	assert.Equal(t, 2, reg.DeregisterReply(gone))
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "n3", reg.Snapshot("tok-a")[0].ID)
}

func TestForgetOnlyEmptyTokens(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(mustListener(t, "n1", "tok", KindMessage, FilterSpec{}, &recorder{}))

	assert.False(t, reg.Forget("tok"))
	reg.Deregister("n1")
	assert.True(t, reg.Forget("tok"))
}

func TestRegistryPublishesLifecycleEvents(t *testing.T) {
	bus := eventbus.New()
	var seen []domain.EventType
	bus.SubscribeAll(func(e domain.Event) { seen = append(seen, e.EventType()) })

	reg := NewRegistry(bus)
	reg.Register(mustListener(t, "n1", "tok", KindMessage, FilterSpec{}, &recorder{}))
	reg.Deregister("n1")

	assert.Equal(t, []domain.EventType{domain.EventListenerRegistered, domain.EventListenerDeregistered}, seen)
}
