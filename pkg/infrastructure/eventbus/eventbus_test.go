package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sipeed/discord-router/pkg/domain"
)

func TestPublishTypedThenGlobal(t *testing.T) {
	bus := New()
	var order []string

	bus.SubscribeAll(func(domain.Event) { order = append(order, "all") })
	bus.Subscribe(domain.EventConnectionReady, func(domain.Event) { order = append(order, "typed") })
	bus.Subscribe(domain.EventConnectionFailed, func(domain.Event) { order = append(order, "other") })

	bus.Publish(domain.NewEvent(domain.EventConnectionReady, "tok", nil))

	assert.Equal(t, []string{"typed", "all"}, order)
	assert.Equal(t, 3, bus.HandlerCount())
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	bus := New()
	called := false

	bus.Subscribe(domain.EventListenerRegistered, func(domain.Event) { panic("boom") })
	bus.Subscribe(domain.EventListenerRegistered, func(domain.Event) { called = true })

	assert.NotPanics(t, func() {
		bus.Publish(domain.NewEvent(domain.EventListenerRegistered, "node-1", nil))
	})
	assert.True(t, called)
}

func TestHandlerMaySubscribeDuringPublish(t *testing.T) {
	bus := New()
	bus.SubscribeAll(func(domain.Event) {
		bus.Subscribe(domain.EventSystemHealthCheck, func(domain.Event) {})
	})

	bus.Publish(domain.NewEvent(domain.EventSystemStartup, "", nil))
	assert.Equal(t, 2, bus.HandlerCount())
}

func TestClosedBusDropsEvents(t *testing.T) {
	bus := New()
	called := false
	bus.SubscribeAll(func(domain.Event) { called = true })
	bus.Close()

	bus.PublishAll([]domain.Event{domain.NewEvent(domain.EventSystemShutdown, "", nil)})
	assert.False(t, called)
}
