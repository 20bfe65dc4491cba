package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageLog_AppendAssignsIncreasingIDs(t *testing.T) {
	l := NewMessageLog(10)

	first, err := l.Append("hello", "alice")
	require.NoError(t, err)
	second, err := l.Append("hi", "bob")
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, "alice", first.User)
	assert.False(t, first.Timestamp.IsZero())
}

func TestMessageLog_AppendTrimsText(t *testing.T) {
	l := NewMessageLog(10)

	msg, err := l.Append("  hi there \n", "alice")
	require.NoError(t, err)
	assert.Equal(t, "hi there", msg.Text)
}

func TestMessageLog_AppendRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		username string
	}{
		{name: "empty text", text: "", username: "alice"},
		{name: "whitespace text", text: "   \t", username: "alice"},
		{name: "empty username", text: "hello", username: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewMessageLog(10)
			_, err := l.Append(tt.text, tt.username)
			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, 0, l.Len())
		})
	}
}

func TestMessageLog_EvictsOldestWhenFull(t *testing.T) {
	l := NewMessageLog(3)
	for i := 1; i <= 5; i++ {
		_, err := l.Append(fmt.Sprintf("m%d", i), "alice")
		require.NoError(t, err)
	}

	require.Equal(t, 3, l.Len())
	recent := l.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "m3", recent[0].Text)
	assert.Equal(t, "m4", recent[1].Text)
	assert.Equal(t, "m5", recent[2].Text)
	assert.Equal(t, int64(5), recent[2].ID)
}

func TestMessageLog_DefaultCapacity(t *testing.T) {
	l := NewMessageLog(0)
	assert.Equal(t, MaxMessages, l.Capacity())

	for i := range MaxMessages + 1 {
		_, err := l.Append(fmt.Sprintf("m%d", i), "alice")
		require.NoError(t, err)
	}

	recent := l.Recent(MaxMessages)
	require.Len(t, recent, MaxMessages)
	assert.Equal(t, "m1", recent[0].Text)
	assert.Equal(t, fmt.Sprintf("m%d", MaxMessages), recent[MaxMessages-1].Text)
}

func TestMessageLog_Recent(t *testing.T) {
	l := NewMessageLog(5)
	for i := 1; i <= 4; i++ {
		_, err := l.Append(fmt.Sprintf("m%d", i), "alice")
		require.NoError(t, err)
	}

	t.Run("fewer than stored", func(t *testing.T) {
		recent := l.Recent(2)
		require.Len(t, recent, 2)
		assert.Equal(t, "m3", recent[0].Text)
		assert.Equal(t, "m4", recent[1].Text)
	})

	t.Run("more than stored", func(t *testing.T) {
		assert.Len(t, l.Recent(50), 4)
	})

	t.Run("zero and negative", func(t *testing.T) {
		assert.NotNil(t, l.Recent(0))
		assert.Empty(t, l.Recent(0))
		assert.Empty(t, l.Recent(-3))
	})

	t.Run("empty log", func(t *testing.T) {
		empty := NewMessageLog(5)
		got := empty.Recent(5)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestMessageLog_RecentReturnsCopy(t *testing.T) {
	l := NewMessageLog(5)
	_, err := l.Append("original", "alice")
	require.NoError(t, err)

	recent := l.Recent(1)
	recent[0].Text = "changed"

	assert.Equal(t, "original", l.Recent(1)[0].Text)
}

func TestMessageLog_UsesClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := NewMessageLog(5)
	l.now = func() time.Time { return fixed }

	msg, err := l.Append("hello", "alice")
	require.NoError(t, err)
	assert.Equal(t, fixed, msg.Timestamp)
}
