// Package integration runs the chat protocol end to end over real WebSocket
// connections.
package integration

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/livechat/internal/chat"
	"github.com/Tyrowin/livechat/internal/server"
	"github.com/Tyrowin/livechat/test/testhelpers"
)

func TestChatEndToEnd(t *testing.T) {
	env := testhelpers.StartServer(t, nil)

	alice := testhelpers.Dial(t, env)
	history := alice.Login("alice")
	assert.Empty(t, history)

	bob := testhelpers.Dial(t, env)
	bob.Emit(chat.EventLogin, "bob")
	assert.Equal(t, []string{"alice", "bob"}, testhelpers.Usernames(t, alice.Expect(chat.EventUsersUpdate)))
	assert.Equal(t, []string{"alice", "bob"}, testhelpers.Usernames(t, bob.Expect(chat.EventUsersUpdate)))
	bob.Expect(chat.EventMessageHistory)

	alice.Emit(chat.EventMessage, "hello bob")
	for _, c := range []*testhelpers.Client{alice, bob} {
		var msg chat.Message
		c.Decode(c.Expect(chat.EventMessage), &msg)
		assert.Equal(t, int64(1), msg.ID)
		assert.Equal(t, "hello bob", msg.Text)
		assert.Equal(t, "alice", msg.User)
	}

	bob.Emit(chat.EventTyping, true)
	var change chat.TypingChange
	alice.Decode(alice.Expect(chat.EventUserTyping), &change)
	assert.Equal(t, "bob", change.Username)
	assert.True(t, change.IsTyping)

	bob.Close()
	assert.Equal(t, []string{"alice"}, testhelpers.Usernames(t, alice.Expect(chat.EventUsersUpdate)))
}

func TestLateJoinerReceivesHistory(t *testing.T) {
	env := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.Chat.MaxMessages = 5
	})

	alice := testhelpers.Dial(t, env)
	alice.Login("alice")
	for i := 1; i <= 8; i++ {
		alice.Emit(chat.EventMessage, fmt.Sprintf("message %d", i))
		alice.Expect(chat.EventMessage)
	}

	carol := testhelpers.Dial(t, env)
	history := carol.Login("carol")

	require.Len(t, history, 5)
	assert.Equal(t, "message 4", history[0].Text)
	assert.Equal(t, "message 8", history[4].Text)
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].ID, history[i-1].ID)
	}
}

func TestTypingIndicatorExpires(t *testing.T) {
	env := testhelpers.StartServer(t, func(cfg *server.Config) {
		cfg.Chat.TypingTimeout = 100 * time.Millisecond
	})

	alice := testhelpers.Dial(t, env)
	alice.Login("alice")
	bob := testhelpers.Dial(t, env)
	bob.Login("bob")
	alice.Expect(chat.EventUsersUpdate)

	bob.Emit(chat.EventTyping, true)

	var change chat.TypingChange
	alice.Decode(alice.Expect(chat.EventUserTyping), &change)
	require.True(t, change.IsTyping)

	start := time.Now()
	alice.Decode(alice.Expect(chat.EventUserTyping), &change)
	assert.False(t, change.IsTyping)
	assert.Equal(t, "bob", change.Username)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestErrorsGoToSenderOnly(t *testing.T) {
	env := testhelpers.StartServer(t, nil)

	alice := testhelpers.Dial(t, env)
	alice.Login("alice")
	stranger := testhelpers.Dial(t, env)
	env.WaitForConnections(t, 2)

	stranger.Emit(chat.EventMessage, "sneaky")
	var text string
	stranger.Decode(stranger.Expect(chat.EventError), &text)
	assert.Equal(t, "Failed to send message. Please try again.", text)

	alice.Emit(chat.EventLogin, "alice-again")
	alice.Decode(alice.Expect(chat.EventError), &text)
	assert.Equal(t, "Already logged in.", text)

	alice.Emit("dance", nil)
	alice.Decode(alice.Expect(chat.EventError), &text)
	assert.Equal(t, "Unknown event.", text)

	stranger.ExpectNone(chat.EventMessage, 200*time.Millisecond)
}

func TestManyClientsSeeSameOrder(t *testing.T) {
	const clients = 6
	const perClient = 5

	env := testhelpers.StartServer(t, nil)

	conns := make([]*testhelpers.Client, clients)
	for i := range clients {
		conns[i] = testhelpers.Dial(t, env)
		conns[i].Login(fmt.Sprintf("user%d", i))
	}
	env.WaitForConnections(t, clients)

	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range perClient {
				_ = c.Conn.WriteJSON(map[string]any{"event": chat.EventMessage, "data": fmt.Sprintf("%d-%d", i, j)})
			}
		}()
	}
	wg.Wait()

	var reference []int64
	for i, c := range conns {
		ids := make([]int64, 0, clients*perClient)
		for len(ids) < clients*perClient {
			var msg chat.Message
			c.Decode(c.Expect(chat.EventMessage), &msg)
			ids = append(ids, msg.ID)
		}
		if i == 0 {
			reference = ids
			continue
		}
		assert.Equal(t, reference, ids, "client %d sees the same order", i)
	}
}
