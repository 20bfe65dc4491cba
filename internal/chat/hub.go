package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/livechat/internal/telemetry"
)

// State is the lifecycle state of one connection.
type State int

const (
	StateUnauthenticated State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Hub. Zero values fall back to MaxMessages and TypingTimeout.
type Options struct {
	MaxMessages   int
	TypingTimeout time.Duration
	Logger        zerolog.Logger
	Metrics       *telemetry.Metrics
}

// Stats is a consistent view of the hub taken on its event loop.
type Stats struct {
	Connections int       `json:"connections"`
	Sessions    int       `json:"sessions"`
	Messages    int       `json:"messages"`
	Users       []Session `json:"users"`
}

type registration struct {
	id   string
	sink Sink
}

type inbound struct {
	id  string
	env Envelope
	err error
}

type expiry struct {
	id         string
	generation uint64
}

// Hub drives the session lifecycle of every connection. All state mutations
// happen on the goroutine running Run; the exported methods only hand events to
// that loop over unbuffered channels, so events submitted from one goroutine are
// handled in submission order.
type Hub struct {
	registry *Registry
	messages *MessageLog
	typing   *TypingTracker
	out      *Broadcaster

	conns map[string]State

	register   chan registration
	unregister chan string
	inbound    chan inbound
	expire     chan expiry
	stats      chan chan Stats

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	log     zerolog.Logger
	metrics *telemetry.Metrics
}

// NewHub creates a Hub. Call Run in its own goroutine before submitting events.
func NewHub(opts Options) *Hub {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.Default()
	}
	log := opts.Logger.With().Str("component", "hub").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:   NewRegistry(),
		messages:   NewMessageLog(opts.MaxMessages),
		out:        NewBroadcaster(opts.Logger.With().Str("component", "broadcaster").Logger(), metrics),
		conns:      make(map[string]State),
		register:   make(chan registration),
		unregister: make(chan string),
		inbound:    make(chan inbound),
		expire:     make(chan expiry),
		stats:      make(chan chan Stats),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
		metrics:    metrics,
	}
	h.typing = NewTypingTracker(h.registry, opts.TypingTimeout, func(id string, generation uint64) {
		_ = submit(h, h.expire, expiry{id: id, generation: generation})
	})
	return h
}

func submit[T any](h *Hub, ch chan T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// Connect attaches sink as a new unauthenticated connection. Reusing the id
// of a live connection disconnects the old one first.
func (h *Hub) Connect(connectionID string, sink Sink) error {
	if connectionID == "" || sink == nil {
		return fmt.Errorf("%w: connection id and sink are required", ErrValidation)
	}
	return submit(h, h.register, registration{id: connectionID, sink: sink})
}

// Dispatch decodes one raw client frame and hands it to the event loop.
// Malformed frames are answered with an error event on the loop.
func (h *Hub) Dispatch(connectionID string, frame []byte) error {
	env, err := DecodeEnvelope(frame)
	return submit(h, h.inbound, inbound{id: connectionID, env: env, err: err})
}

// Disconnect moves the connection to Closed. Unknown ids are a no-op.
func (h *Hub) Disconnect(connectionID string) error {
	return submit(h, h.unregister, connectionID)
}

// Stats returns connection, session and message counts plus the presence list.
func (h *Hub) Stats() (Stats, error) {
	reply := make(chan Stats, 1)
	if err := submit(h, h.stats, reply); err != nil {
		return Stats{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-h.ctx.Done():
		return Stats{}, ErrHubClosed
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run starts the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	h.log.Info().
		Int("max_messages", h.messages.Capacity()).
		Dur("typing_timeout", h.typing.timeout).
		Msg("hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownConnections()
			return

		case reg := <-h.register:
			h.handleConnect(reg)

		case id := <-h.unregister:
			h.handleDisconnect(id)

		case in := <-h.inbound:
			h.handleInbound(in)

		case exp := <-h.expire:
			h.handleExpire(exp)

		case reply := <-h.stats:
			reply <- Stats{
				Connections: len(h.conns),
				Sessions:    h.registry.Len(),
				Messages:    h.messages.Len(),
				Users:       h.registry.Snapshot(),
			}
		}
	}
}

// Shutdown stops the event loop, closes every sink and waits for Run to return
// or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Info().Msg("initiating hub shutdown")
	h.cancel()

	select {
	case <-h.done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-ctx.Done():
		h.log.Warn().Msg("hub shutdown timed out")
		return ctx.Err()
	}
}

func (h *Hub) shutdownConnections() {
	h.typing.CancelAll()
	closed := h.out.CloseAll()
	h.conns = make(map[string]State)
	h.log.Info().Int("connections", closed).Msg("closed all connections")
}

func (h *Hub) handleConnect(reg registration) {
	if _, live := h.conns[reg.id]; live {
		h.log.Warn().Str("conn_id", reg.id).Msg("connection id reused while live, replacing")
		h.handleDisconnect(reg.id)
	}

	h.conns[reg.id] = StateUnauthenticated
	h.out.Attach(reg.id, reg.sink)
	h.metrics.ConnectionsActive.Add(h.ctx, 1)

	h.log.Debug().Str("conn_id", reg.id).Int("connections", len(h.conns)).Msg("connection attached")
}

func (h *Hub) handleDisconnect(id string) {
	if _, known := h.conns[id]; !known {
		h.log.Debug().Str("conn_id", id).Msg("disconnect for unknown connection")
		return
	}

	h.typing.Cancel(id)
	if sink, ok := h.out.Detach(id); ok {
		if err := sink.Close(); err != nil {
			h.log.Debug().Err(err).Str("conn_id", id).Msg("error closing sink")
		}
	}
	delete(h.conns, id)
	h.metrics.ConnectionsActive.Add(h.ctx, -1)

	session, ok := h.registry.Remove(id)
	if !ok {
		h.log.Debug().Str("conn_id", id).Msg("unauthenticated connection closed")
		return
	}

	h.metrics.SessionsActive.Add(h.ctx, -1)
	h.log.Info().Str("conn_id", id).Str("username", session.Username).Msg("user disconnected")
	h.out.ToAll(Event{Name: EventUsersUpdate, Data: h.registry.Snapshot()})
}

func (h *Hub) handleInbound(in inbound) {
	state, ok := h.conns[in.id]
	if !ok {
		h.log.Debug().Str("conn_id", in.id).Msg("event from unknown connection")
		return
	}

	if in.err != nil {
		h.reject(in.id, "frame", errTextInvalidMessage, in.err)
		return
	}

	switch in.env.Event {
	case EventLogin:
		h.handleLogin(in.id, state, in.env.Data)
	case EventMessage:
		h.handleMessage(in.id, state, in.env.Data)
	case EventTyping:
		h.handleTyping(in.id, state, in.env.Data)
	default:
		h.reject(in.id, in.env.Event, errTextUnknownEvent, fmt.Errorf("%w: %q", ErrUnknownEvent, in.env.Event))
	}
}

func (h *Hub) handleLogin(id string, state State, data json.RawMessage) {
	if state == StateActive {
		h.reject(id, EventLogin, errTextAlreadyLogged, ErrAlreadyLoggedIn)
		return
	}

	username, err := decodeString(data)
	if err == nil {
		_, err = h.registry.Register(id, username)
	}
	if err != nil {
		h.reject(id, EventLogin, errTextLogin, err)
		return
	}

	h.conns[id] = StateActive
	h.metrics.SessionsActive.Add(h.ctx, 1)
	h.log.Info().Str("conn_id", id).Str("username", username).Msg("user logged in")

	h.out.ToAll(Event{Name: EventUsersUpdate, Data: h.registry.Snapshot()})
	h.out.ToOne(id, Event{Name: EventMessageHistory, Data: h.messages.Recent(h.messages.Capacity())})
}

func (h *Hub) handleMessage(id string, state State, data json.RawMessage) {
	session, ok := h.registry.Get(id)
	if state != StateActive || !ok {
		h.reject(id, EventMessage, errTextMessage, ErrSessionNotFound)
		return
	}

	var msg Message
	text, err := decodeString(data)
	if err == nil {
		msg, err = h.messages.Append(text, session.Username)
	}
	if err != nil {
		h.reject(id, EventMessage, errTextMessage, err)
		return
	}

	h.registry.Touch(id, msg.Timestamp)
	h.metrics.MessagesTotal.Add(h.ctx, 1)
	h.out.ToAll(Event{Name: EventMessage, Data: msg})
}

func (h *Hub) handleTyping(id string, state State, data json.RawMessage) {
	if state != StateActive {
		h.log.Debug().Str("conn_id", id).Msg("ignoring typing signal before login")
		return
	}

	isTyping, err := decodeBool(data)
	if err != nil {
		h.reject(id, EventTyping, errTextTyping, err)
		return
	}

	change, changed, err := h.typing.SetTyping(id, isTyping)
	if err != nil {
		h.log.Debug().Err(err).Str("conn_id", id).Msg("typing signal without session")
		return
	}
	if changed {
		h.out.ToAllExcept(id, Event{Name: EventUserTyping, Data: change})
	}
}

func (h *Hub) handleExpire(exp expiry) {
	change, ok := h.typing.Expire(exp.id, exp.generation)
	if !ok {
		return
	}
	h.metrics.TypingExpiredTotal.Add(h.ctx, 1)
	h.out.ToAllExcept(exp.id, Event{Name: EventUserTyping, Data: change})
}

// reject answers an invalid event with an error event to its sender only.
func (h *Hub) reject(id, event, text string, err error) {
	h.log.Warn().Err(err).Str("conn_id", id).Str("event", event).Msg("rejected event")
	h.metrics.EventRejected(h.ctx, event)
	h.out.ToOne(id, ErrorEvent(text))
}
