package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingSink stores every delivered frame.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	fail   bool
}

func (s *recordingSink) Deliver(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.closed {
		return errors.Join(ErrDelivery, errors.New("sink unavailable"))
	}
	s.frames = append(s.frames, payload)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// envelopes decodes every frame received so far.
func (s *recordingSink) envelopes(t *testing.T) []Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Envelope, 0, len(s.frames))
	for _, frame := range s.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

// named returns the payloads of all received events called name.
func (s *recordingSink) named(t *testing.T, name string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, env := range s.envelopes(t) {
		if env.Event == name {
			out = append(out, env.Data)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}
