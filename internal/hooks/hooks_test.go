package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/soyeahso/supportchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var called bool
	m.On(EventMessageAppended, "test", func(_ context.Context, p Payload) error {
		called = true
		assert.Equal(t, EventMessageAppended, p.Event)
		return nil
	})

	m.Emit(context.Background(), EventMessageAppended, nil)
	assert.True(t, called)
}

func TestManager_Emit_MultipleHandlers(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventTypingChanged, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventTypingChanged, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventTypingChanged, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_WithData(t *testing.T) {
	m := testManager()

	var gotData map[string]any
	m.On(EventStatusChanged, "test", func(_ context.Context, p Payload) error {
		gotData = p.Data
		return nil
	})

	m.Emit(context.Background(), EventStatusChanged, map[string]any{
		"session_id": "session_abc",
		"agent_id":   "A1",
	})

	assert.Equal(t, "session_abc", gotData["session_id"])
	assert.Equal(t, "A1", gotData["agent_id"])
}

func TestManager_Emit_HandlerError(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventErrorChanged, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventErrorChanged, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventErrorChanged, nil)
	assert.True(t, secondCalled)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	m := testManager()
	m.Emit(context.Background(), EventConnStateChanged, nil)
}

func TestManager_Off(t *testing.T) {
	m := testManager()

	var callCount int
	m.On(EventMessageAppended, "removable", func(_ context.Context, _ Payload) error {
		callCount++
		return nil
	})

	m.Emit(context.Background(), EventMessageAppended, nil)
	assert.Equal(t, 1, callCount)

	m.Off(EventMessageAppended, "removable")
	m.Emit(context.Background(), EventMessageAppended, nil)
	assert.Equal(t, 1, callCount)
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()

	var keepCalled int
	m.On(EventMessageAppended, "remove-me", func(_ context.Context, _ Payload) error { return nil })
	m.On(EventMessageAppended, "keep-me", func(_ context.Context, _ Payload) error {
		keepCalled++
		return nil
	})

	m.Off(EventMessageAppended, "remove-me")
	m.Emit(context.Background(), EventMessageAppended, nil)
	assert.Equal(t, 1, keepCalled)
}

func TestManager_OnAll(t *testing.T) {
	m := testManager()

	var seen []string
	m.OnAll("render", func(_ context.Context, p Payload) error {
		seen = append(seen, p.Event)
		return nil
	})

	for _, ev := range AllEvents {
		assert.Equal(t, 1, m.Count(ev))
		m.Emit(context.Background(), ev, nil)
	}
	assert.Equal(t, AllEvents, seen)
}

func TestManager_Count(t *testing.T) {
	m := testManager()

	assert.Equal(t, 0, m.Count(EventHistoryReplaced))

	m.On(EventHistoryReplaced, "h1", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 1, m.Count(EventHistoryReplaced))

	m.On(EventHistoryReplaced, "h2", func(_ context.Context, _ Payload) error { return nil })
	assert.Equal(t, 2, m.Count(EventHistoryReplaced))
}

func TestAllEvents_NotEmpty(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	assert.Contains(t, AllEvents, EventMessageAppended)
	assert.Contains(t, AllEvents, EventMessageRolledBack)
}
