package redis_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/mimic/internal/game/session"
	"github.com/cory-johannsen/mimic/internal/gameserver"
	mredis "github.com/cory-johannsen/mimic/internal/storage/redis"
	"github.com/cory-johannsen/mimic/internal/testutil"
)

func newRelay(t *testing.T, rc *testutil.RedisContainer) *mredis.Relay {
	t.Helper()
	logger := zaptest.NewLogger(t)
	relay := mredis.NewRelay(rc.Client, gameserver.JSONCodec{}, session.NewGroup(logger), rc.Config.ChannelPrefix, logger)
	t.Cleanup(func() { _ = relay.Close() })
	return relay
}

func receive(t *testing.T, sub *session.Subscriber) session.Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for relayed event")
		return nil
	}
}

func TestRelay_DeliversAcrossInstances(t *testing.T) {
	rc := testutil.NewRedisContainer(t)
	ctx := context.Background()
	east, west := newRelay(t, rc), newRelay(t, rc)

	alice := session.NewSubscriber(8)
	bob := session.NewSubscriber(8)
	require.NoError(t, east.Subscribe(ctx, "ABCDEFGH", alice))
	require.NoError(t, west.Subscribe(ctx, "ABCDEFGH", bob))

	sent := gameserver.GameStarted{Type: gameserver.TypeGameStarted, RoomID: "ABCDEFGH", CurrentTurn: "Alice", Emoji: "🐶"}
	require.NoError(t, west.Broadcast(ctx, "ABCDEFGH", sent))

	assert.Equal(t, sent, receive(t, alice))
	assert.Equal(t, sent, receive(t, bob))
}

func TestRelay_PreservesOrder(t *testing.T) {
	rc := testutil.NewRedisContainer(t)
	ctx := context.Background()
	relay := newRelay(t, rc)

	sub := session.NewSubscriber(64)
	require.NoError(t, relay.Subscribe(ctx, "ORDERING", sub))

	for _, guess := range []string{"🐭", "🐮", "🐯", "🐰"} {
		require.NoError(t, relay.Broadcast(ctx, "ORDERING", gameserver.GuessSubmitted{
			Type: gameserver.TypeGuessSubmitted, RoomID: "ORDERING", Username: "Bob", Guess: guess,
		}))
	}
	for _, want := range []string{"🐭", "🐮", "🐯", "🐰"} {
		got, ok := receive(t, sub).(gameserver.GuessSubmitted)
		require.True(t, ok)
		assert.Equal(t, want, got.Guess)
	}
}

func TestRelay_ReleasesChannelWhenEmpty(t *testing.T) {
	rc := testutil.NewRedisContainer(t)
	ctx := context.Background()
	relay := newRelay(t, rc)

	sub := session.NewSubscriber(8)
	require.NoError(t, relay.Subscribe(ctx, "RELEASED", sub))
	assert.Eventually(t, func() bool {
		n, err := rc.Client.PubSubNumSub(ctx, relay.Channel("RELEASED")).Result()
		return err == nil && n[relay.Channel("RELEASED")] == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, relay.Unsubscribe(ctx, "RELEASED", sub))
	require.NoError(t, relay.Unsubscribe(ctx, "RELEASED", sub), "unsubscribe is idempotent")
	assert.Equal(t, 0, relay.Group().Count("RELEASED"))
	assert.Eventually(t, func() bool {
		n, err := rc.Client.PubSubNumSub(ctx, relay.Channel("RELEASED")).Result()
		return err == nil && n[relay.Channel("RELEASED")] == 0
	}, 5*time.Second, 50*time.Millisecond)
}

// gatedClient holds Subscribe calls for one channel until released.
type gatedClient struct {
	goredis.UniversalClient
	channel string
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (c *gatedClient) Subscribe(ctx context.Context, channels ...string) *goredis.PubSub {
	if slices.Contains(channels, c.channel) {
		c.once.Do(func() { close(c.entered) })
		<-c.gate
	}
	return c.UniversalClient.Subscribe(ctx, channels...)
}

func TestRelay_SlowRoomDoesNotBlockOthers(t *testing.T) {
	rc := testutil.NewRedisContainer(t)
	logger := zaptest.NewLogger(t)
	gated := &gatedClient{
		UniversalClient: rc.Client,
		channel:         rc.Config.ChannelPrefix + "SLOWROOM",
		entered:         make(chan struct{}),
		gate:            make(chan struct{}),
	}
	relay := mredis.NewRelay(gated, gameserver.JSONCodec{}, session.NewGroup(logger), rc.Config.ChannelPrefix, logger)
	t.Cleanup(func() { _ = relay.Close() })
	var openGate sync.Once
	t.Cleanup(func() { openGate.Do(func() { close(gated.gate) }) })

	slowDone := make(chan error, 1)
	go func() {
		slowDone <- relay.Subscribe(context.Background(), "SLOWROOM", session.NewSubscriber(8))
	}()
	select {
	case <-gated.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("slow subscribe never reached Redis")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	fast := session.NewSubscriber(8)
	require.NoError(t, relay.Subscribe(ctx, "FASTROOM", fast))
	sent := gameserver.GuessSubmitted{Type: gameserver.TypeGuessSubmitted, RoomID: "FASTROOM", Username: "Bob", Guess: "🐶"}
	require.NoError(t, relay.Broadcast(ctx, "FASTROOM", sent))
	assert.Equal(t, sent, receive(t, fast))
	require.NoError(t, relay.Unsubscribe(ctx, "FASTROOM", fast))

	select {
	case <-slowDone:
		t.Fatal("slow subscribe finished while its gate was closed")
	default:
	}
	openGate.Do(func() { close(gated.gate) })
	select {
	case err := <-slowDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("slow subscribe did not finish after the gate opened")
	}
	assert.Equal(t, 1, relay.Group().Count("SLOWROOM"))
}
