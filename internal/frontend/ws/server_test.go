package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/mimic/internal/config"
	"github.com/cory-johannsen/mimic/internal/frontend/ws"
	"github.com/cory-johannsen/mimic/internal/game/dice"
	"github.com/cory-johannsen/mimic/internal/game/room"
	"github.com/cory-johannsen/mimic/internal/game/session"
	"github.com/cory-johannsen/mimic/internal/gameserver"
	"github.com/cory-johannsen/mimic/internal/testutil"
)

// zeroSource always draws 0 so the room creator is the first actor.
type zeroSource struct{}

func (zeroSource) Intn(int) int { return 0 }

func testConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		Host:            "127.0.0.1",
		Path:            "/ws/room",
		PongWait:        10 * time.Second,
		WriteTimeout:    2 * time.Second,
		PingInterval:    5 * time.Second,
		MaxMessageBytes: 4096,
		AllowOrigins:    "*",
	}
}

type stubRooms struct {
	rooms     map[string]*room.Room
	createErr error
	getErr    error
}

func (s *stubRooms) CreateRoom(context.Context) (*room.Room, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	r, err := room.New("NEWROOMA", room.DefaultSettings(), time.Now())
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *stubRooms) Room(_ context.Context, id string) (*room.Room, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	r, ok := s.rooms[id]
	if !ok {
		return nil, room.ErrRoomNotFound
	}
	return r, nil
}

type noSessions struct{}

func (noSessions) HandleSession(context.Context, gameserver.Conn, string) error { return nil }

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestCreateRoomRoute(t *testing.T) {
	srv := ws.NewServer(testConfig(), noSessions{}, &stubRooms{}, zaptest.NewLogger(t))

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/createRoom", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, map[string]any{"message": "Room created", "roomId": "NEWROOMA"}, decode(t, resp.Body))
}

func TestCreateRoomRoute_StoreFailure(t *testing.T) {
	srv := ws.NewServer(testConfig(), noSessions{}, &stubRooms{createErr: errors.New("db down")}, zaptest.NewLogger(t))

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/createRoom", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "Internal error", decode(t, resp.Body)["error"])
}

func TestRoomStatusRoute(t *testing.T) {
	r, err := room.New("ABCDEFGH", room.DefaultSettings(), time.Now())
	require.NoError(t, err)
	_, err = r.Join("Alice")
	require.NoError(t, err)
	require.NoError(t, r.Start(dice.NewCryptoSource(), room.DefaultCatalog()))
	srv := ws.NewServer(testConfig(), noSessions{}, &stubRooms{rooms: map[string]*room.Room{r.ID: r}}, zaptest.NewLogger(t))

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/rooms/ABCDEFGH/status", nil))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	body := decode(t, resp.Body)
	assert.Equal(t, "ABCDEFGH", body["roomId"])
	assert.Equal(t, []any{"Alice"}, body["participants"])
	assert.Equal(t, "in_progress", body["gameState"])
	assert.Equal(t, "Alice", body["currentTurn"])
	assert.NotContains(t, body, "currentEmoji", "the symbol is never exposed over http")

	for _, path := range []string{"/api/rooms/ZZZZZZZZ/status", "/api/rooms/abc/status"} {
		resp, err := srv.App().Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode, path)
		assert.Equal(t, "Room does not exist", decode(t, resp.Body)["error"], path)
	}
}

func TestSocketRoute_RequiresUpgrade(t *testing.T) {
	srv := ws.NewServer(testConfig(), noSessions{}, &stubRooms{}, zaptest.NewLogger(t))

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/ws/room", nil))
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := ws.NewServer(testConfig(), noSessions{}, &stubRooms{}, zaptest.NewLogger(t))

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

// startServer runs a Server backed by a real coordinator and an in-memory store.
func startServer(t *testing.T) (string, *ws.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	coord := gameserver.NewCoordinator(
		room.NewMemoryStore(),
		gameserver.NewLocalBroadcaster(session.NewGroup(logger)),
		zeroSource{},
		room.DefaultCatalog(),
		nil, nil,
		gameserver.Options{},
		logger,
	)
	srv := ws.NewServer(testConfig(), coord, coord, logger)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Stop(ctx))
		assert.NoError(t, <-served)
	})
	return "ws://" + ln.Addr().String() + "/ws/room", srv
}

func TestSocket_EndToEnd(t *testing.T) {
	url, _ := startServer(t)
	const wait = 5 * time.Second

	alice := testutil.NewWSClient(t, url)
	assert.Equal(t, "connection_ready", alice.Receive(wait)["type"])
	alice.Send(map[string]string{"type": "user", "username": "Alice"})
	alice.Send(map[string]string{"type": "create_room"})
	created := alice.ReceiveType("room_created", wait)
	roomID, ok := created["room_id"].(string)
	require.True(t, ok, "room_created carries the id: %v", created)

	bob := testutil.NewWSClient(t, url)
	bob.ReceiveType("connection_ready", wait)
	bob.Send(map[string]string{"type": "user", "username": "Bob"})
	bob.Send(map[string]string{"type": "join_room", "room_id": roomID})
	joined := bob.ReceiveType("joined_room", wait)
	assert.Equal(t, []any{"Alice", "Bob"}, joined["participants"])

	update := alice.ReceiveType("participants_updated", wait)
	assert.Equal(t, "user_joined", update["action"])

	bob.Send(map[string]string{"type": "start_game"})
	actorView := alice.ReceiveType("game_started", wait)
	assert.Equal(t, "actor", actorView["role"])
	symbol, _ := actorView["emoji"].(string)
	require.NotEmpty(t, symbol)

	guesserView := bob.ReceiveType("game_started", wait)
	assert.Equal(t, "guesser", guesserView["role"])
	assert.Empty(t, guesserView["emoji"])

	bob.Send(map[string]string{"type": "submit_guess", "guess": symbol})
	result := bob.ReceiveType("guess_result", wait)
	assert.Equal(t, true, result["correct"])
	assert.Equal(t, "Correct!", result["message"])

	submitted := alice.ReceiveType("guess_submitted", wait)
	assert.Equal(t, "Bob guessed correctly!", submitted["message"])

	bob.Close()
	left := alice.ReceiveType("participants_updated", wait)
	assert.Equal(t, "user_left", left["action"])
	assert.Equal(t, []any{"Alice"}, left["participants"])
}

func TestSocket_StopEndsSessions(t *testing.T) {
	url, srv := startServer(t)

	c := testutil.NewWSClient(t, url)
	c.ReceiveType("connection_ready", 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
}

// A peer that stays connected but neither sends nor reads must not hold up
// shutdown.
func TestSocket_StopWithSilentPeer(t *testing.T) {
	url, srv := startServer(t)
	const wait = 5 * time.Second

	idle := testutil.NewWSClient(t, url)
	idle.ReceiveType("connection_ready", wait)
	idle.Send(map[string]string{"type": "user", "username": "Idle"})
	idle.Send(map[string]string{"type": "create_room"})
	idle.ReceiveType("room_created", wait)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopped := make(chan error, 1)
	start := time.Now()
	go func() { stopped <- srv.Stop(ctx) }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
		assert.Less(t, time.Since(start), wait, "Stop waited on the silent peer")
	case <-time.After(wait):
		t.Fatal("Stop did not return while a peer was connected and silent")
	}
}
