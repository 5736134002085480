package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

type testEvent string

func (e testEvent) EventType() string { return string(e) }

func drain(sub *Subscriber) []Event {
	var out []Event
	for {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSubscriber_Push(t *testing.T) {
	s := NewSubscriber(4)
	require.NoError(t, s.Push(testEvent("hello")))

	ev := <-s.Events()
	assert.Equal(t, testEvent("hello"), ev)
}

func TestSubscriber_PushClosed(t *testing.T) {
	s := NewSubscriber(4)
	s.Close()
	assert.True(t, s.IsClosed())
	assert.ErrorIs(t, s.Push(testEvent("fail")), ErrSubscriberClosed)
}

func TestSubscriber_PushFull(t *testing.T) {
	s := NewSubscriber(1)
	require.NoError(t, s.Push(testEvent("first")))
	err := s.Push(testEvent("overflow"))
	assert.True(t, errors.Is(err, ErrBufferFull))
}

func TestSubscriber_CloseIdempotent(t *testing.T) {
	s := NewSubscriber(4)
	s.Close()
	s.Close()
	assert.True(t, s.IsClosed())
}

func TestSubscriber_UniqueIDsAndUsername(t *testing.T) {
	a, b := NewSubscriber(0), NewSubscriber(0)
	assert.NotEqual(t, a.ID(), b.ID())
	a.SetUsername("Alice")
	assert.Equal(t, "Alice", a.Username())
	assert.Empty(t, b.Username())
}

func TestGroup_SubscribeIdempotent(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))
	s := NewSubscriber(4)

	assert.True(t, g.Subscribe("ROOM", s))
	assert.False(t, g.Subscribe("ROOM", s))
	assert.Equal(t, 1, g.Count("ROOM"))

	g.Broadcast("ROOM", testEvent("once"))
	assert.Len(t, drain(s), 1)
}

func TestGroup_UnsubscribeReclaims(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))
	a, b := NewSubscriber(4), NewSubscriber(4)
	g.Subscribe("ROOM", a)
	g.Subscribe("ROOM", b)

	assert.False(t, g.Unsubscribe("ROOM", a))
	assert.Equal(t, 1, g.RoomCount())
	assert.True(t, g.Unsubscribe("ROOM", b))
	assert.Equal(t, 0, g.RoomCount())
	assert.False(t, g.Unsubscribe("ROOM", b), "absent subscriber is a no-op")
	assert.False(t, g.Unsubscribe("OTHER", b))
}

func TestGroup_BroadcastOnlyToRoom(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))
	a, b, c := NewSubscriber(4), NewSubscriber(4), NewSubscriber(4)
	g.Subscribe("R1", a)
	g.Subscribe("R1", b)
	g.Subscribe("R2", c)

	assert.Equal(t, 2, g.Broadcast("R1", testEvent("hi")))
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(c))
	assert.Equal(t, 0, g.Broadcast("NOPE", testEvent("hi")))
}

func TestGroup_BroadcastSkipsFailedRecipients(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))
	full, closed, ok := NewSubscriber(1), NewSubscriber(1), NewSubscriber(4)
	require.NoError(t, full.Push(testEvent("filler")))
	closed.Close()
	g.Subscribe("R", full)
	g.Subscribe("R", closed)
	g.Subscribe("R", ok)

	assert.Equal(t, 1, g.Broadcast("R", testEvent("x")))
	assert.Equal(t, []Event{testEvent("x")}, drain(ok))
}

func TestGroup_OrderPreservedPerSubscriber(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))
	s := NewSubscriber(16)
	g.Subscribe("R", s)
	for i := 0; i < 10; i++ {
		g.Broadcast("R", testEvent(fmt.Sprintf("e%d", i)))
	}
	got := drain(s)
	require.Len(t, got, 10)
	for i, ev := range got {
		assert.Equal(t, fmt.Sprintf("e%d", i), ev.EventType())
	}
}

func TestGroup_NoDeliveryAfterUnsubscribe(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))
	s := NewSubscriber(4)
	g.Subscribe("R", s)
	g.Unsubscribe("R", s)
	g.Broadcast("R", testEvent("late"))
	assert.Empty(t, drain(s))
}

func TestGroup_ConcurrentSubscribeUnsubscribeBroadcast(t *testing.T) {
	g := NewGroup(zaptest.NewLogger(t))
	const n = 100
	var wg sync.WaitGroup
	subs := make([]*Subscriber, n)
	for i := range subs {
		subs[i] = NewSubscriber(n * 4)
	}

	for i := 0; i < n; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			g.Subscribe(fmt.Sprintf("room%d", i%5), subs[i])
		}(i)
		go func(i int) {
			defer wg.Done()
			g.Broadcast(fmt.Sprintf("room%d", i%5), testEvent("tick"))
		}(i)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				g.Unsubscribe(fmt.Sprintf("room%d", i%5), subs[i])
			}
		}(i)
	}
	wg.Wait()

	// Remaining membership must be consistent with what Count reports.
	total := 0
	for r := 0; r < 5; r++ {
		members := g.Members(fmt.Sprintf("room%d", r))
		assert.Equal(t, len(members), g.Count(fmt.Sprintf("room%d", r)))
		total += len(members)
	}
	assert.LessOrEqual(t, total, n)
	assert.GreaterOrEqual(t, total, n/2)
}

// Property: after any sequence of subscribe/unsubscribe operations, every
// room's membership matches a simple set model and empty rooms are reclaimed.
func TestProperty_GroupMatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := NewGroup(zaptest.NewLogger(t))
		rooms := []string{"A", "B", "C"}
		subs := []*Subscriber{NewSubscriber(256), NewSubscriber(256), NewSubscriber(256), NewSubscriber(256)}
		model := map[string]map[string]bool{}

		ops := rapid.IntRange(1, 80).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			room := rapid.SampledFrom(rooms).Draw(rt, "room")
			sub := subs[rapid.IntRange(0, len(subs)-1).Draw(rt, "sub")]
			if rapid.Bool().Draw(rt, "subscribe") {
				g.Subscribe(room, sub)
				if model[room] == nil {
					model[room] = map[string]bool{}
				}
				model[room][sub.ID()] = true
			} else {
				g.Unsubscribe(room, sub)
				delete(model[room], sub.ID())
				if len(model[room]) == 0 {
					delete(model, room)
				}
			}
		}

		if g.RoomCount() != len(model) {
			rt.Fatalf("RoomCount %d, model has %d rooms", g.RoomCount(), len(model))
		}
		for _, room := range rooms {
			if g.Count(room) != len(model[room]) {
				rt.Fatalf("room %s: Count %d, model %d", room, g.Count(room), len(model[room]))
			}
			for _, m := range g.Members(room) {
				if !model[room][m.ID()] {
					rt.Fatalf("room %s has unexpected member %s", room, m.ID())
				}
			}
		}
	})
}
