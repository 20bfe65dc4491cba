package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// MaxMessages is the default capacity of the shared message log.
const MaxMessages = 100

// Message is one accepted chat message. Messages are immutable once stored.
type Message struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageLog is a bounded, order-preserving store of recent messages. When full,
// appending evicts exactly the oldest entry.
type MessageLog struct {
	mu     sync.RWMutex
	buf    []Message
	head   int // index of the oldest entry
	size   int
	nextID int64
	now    func() time.Time
}

// NewMessageLog creates a log holding at most capacity messages. A non-positive
// capacity falls back to MaxMessages.
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = MaxMessages
	}
	return &MessageLog{
		buf:    make([]Message, capacity),
		nextID: 1,
		now:    time.Now,
	}
}

// Append trims text, assigns an id and timestamp, and stores the message.
func (l *MessageLog) Append(text, username string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: message text must not be empty", ErrValidation)
	}
	if username == "" {
		return Message{}, fmt.Errorf("%w: username must not be empty", ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := Message{
		ID:        l.nextID,
		Text:      text,
		User:      username,
		Timestamp: l.now(),
	}
	l.nextID++

	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.head+l.size)%capacity] = msg
		l.size++
	} else {
		l.buf[l.head] = msg
		l.head = (l.head + 1) % capacity
	}
	return msg, nil
}

// Recent returns the most recent n messages, oldest first. It returns fewer
// when the log holds fewer, and an empty non-nil slice for n <= 0.
func (l *MessageLog) Recent(n int) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > l.size {
		n = l.size
	}
	if n < 0 {
		n = 0
	}
	out := make([]Message, n)
	capacity := len(l.buf)
	start := l.head + l.size - n
	for i := range n {
		out[i] = l.buf[(start+i)%capacity]
	}
	return out
}

// Len returns the number of stored messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the maximum number of stored messages.
func (l *MessageLog) Capacity() int {
	return len(l.buf)
}
