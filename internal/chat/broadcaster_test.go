package chat

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster() (*Broadcaster, *recordingSink, *recordingSink, *recordingSink) {
	b := NewBroadcaster(zerolog.Nop(), nil)
	a, c, d := &recordingSink{}, &recordingSink{}, &recordingSink{}
	b.Attach("a", a)
	b.Attach("b", c)
	b.Attach("c", d)
	return b, a, c, d
}

func TestBroadcaster_ToAll(t *testing.T) {
	b, a, c, d := newTestBroadcaster()

	b.ToAll(Event{Name: EventMessage, Data: "hello"})

	for _, sink := range []*recordingSink{a, c, d} {
		envs := sink.envelopes(t)
		require.Len(t, envs, 1)
		assert.Equal(t, EventMessage, envs[0].Event)
		assert.JSONEq(t, `"hello"`, string(envs[0].Data))
	}
}

func TestBroadcaster_ToAllExcept(t *testing.T) {
	b, a, c, d := newTestBroadcaster()

	b.ToAllExcept("b", Event{Name: EventUserTyping, Data: TypingChange{Username: "bob", IsTyping: true}})

	assert.Len(t, a.envelopes(t), 1)
	assert.Empty(t, c.envelopes(t))
	require.Len(t, d.envelopes(t), 1)
	assert.JSONEq(t, `{"username":"bob","isTyping":true}`, string(d.envelopes(t)[0].Data))
}

func TestBroadcaster_ToOne(t *testing.T) {
	b, a, c, _ := newTestBroadcaster()

	b.ToOne("a", ErrorEvent("nope"))
	b.ToOne("missing", ErrorEvent("ignored"))

	require.Len(t, a.envelopes(t), 1)
	assert.Equal(t, EventError, a.envelopes(t)[0].Event)
	assert.Empty(t, c.envelopes(t))
}

func TestBroadcaster_FailingSinkDoesNotBlockOthers(t *testing.T) {
	b, a, c, d := newTestBroadcaster()
	c.fail = true

	b.ToAll(Event{Name: EventMessage, Data: "hello"})

	assert.Len(t, a.envelopes(t), 1)
	assert.Empty(t, c.envelopes(t))
	assert.Len(t, d.envelopes(t), 1)
	assert.Equal(t, 3, b.Len(), "a failing sink stays attached")
}

func TestBroadcaster_DetachAndCloseAll(t *testing.T) {
	b, a, c, d := newTestBroadcaster()

	sink, ok := b.Detach("a")
	require.True(t, ok)
	assert.Same(t, a, sink)

	_, ok = b.Detach("a")
	assert.False(t, ok)

	assert.Equal(t, 2, b.CloseAll())
	assert.Equal(t, 0, b.Len())
	assert.False(t, a.isClosed(), "detached sinks are left to the caller")
	assert.True(t, c.isClosed())
	assert.True(t, d.isClosed())
}

func TestBroadcaster_EncodeFailureSkipsDelivery(t *testing.T) {
	b, a, _, _ := newTestBroadcaster()

	b.ToAll(Event{Name: EventMessage, Data: make(chan int)})

	assert.Empty(t, a.envelopes(t))
}
