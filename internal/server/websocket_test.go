package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"shiritori/internal/db"
)

func dialWS(t *testing.T, tsURL, path string, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(tsURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Skipf("skipping test; websocket dial unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) wsEnvelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	var env wsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

// readUntil drains messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, eventType string) wsEnvelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		env := readEnvelope(t, conn, time.Until(deadline))
		if env.Type == eventType {
			return env
		}
	}
	t.Fatalf("no %s message before deadline", eventType)
	return wsEnvelope{}
}

func TestGameWebsocketUnknownGame(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/games/zzzzz"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown game")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %+v", http.StatusNotFound, resp)
	}
}

func TestGameWebsocketSendsSnapshotOnConnect(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	game := createTestGame(t, srv)
	conn := dialWS(t, ts.URL, "/ws/games/"+game.ID, nil)

	env := readUntil(t, conn, "connected")
	payload, _ := env.Data.(map[string]any)
	gameData, _ := payload["game"].(map[string]any)
	if gameData == nil || gameData["id"] != game.ID {
		t.Fatalf("expected game snapshot in connected message, got %#v", env.Data)
	}
	if payload["self_player"] != nil {
		t.Fatalf("expected nil self player for spectator, got %v", payload["self_player"])
	}
}

func TestGameWebsocketBroadcastsJoins(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	game := createTestGame(t, srv)
	conn := dialWS(t, ts.URL, "/ws/games/"+game.ID, nil)
	readUntil(t, conn, "connected")

	joinTestPlayer(t, srv, game.ID, "Ada", "sess-ada")

	env := readUntil(t, conn, eventPlayerJoined)
	payload, _ := env.Data.(map[string]any)
	if payload["name"] != "Ada" {
		t.Fatalf("expected joined player payload, got %#v", env.Data)
	}
	readUntil(t, conn, eventGameUpdated)
}

func TestGameWebsocketIdentifiesSelfPlayer(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	game := createTestGame(t, srv)
	client := newTestClient(t)
	resp := client.doRequest(t, ts, http.MethodPost, "/api/games/"+game.ID+"/join", map[string]string{"name": "Ada"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("join: got %d", resp.StatusCode)
	}
	playerID := decodeBody(t, resp)["id"].(string)

	wsTarget, _ := http.NewRequest(http.MethodGet, ts.URL+"/ws/games/"+game.ID, nil)
	header := http.Header{}
	for _, cookie := range client.http.Jar.Cookies(wsTarget.URL) {
		header.Add("Cookie", cookie.String())
	}
	conn := dialWS(t, ts.URL, "/ws/games/"+game.ID, header)

	env := readUntil(t, conn, "connected")
	payload, _ := env.Data.(map[string]any)
	if payload["self_player"] != playerID {
		t.Fatalf("expected self player %s, got %v", playerID, payload["self_player"])
	}
}

func TestDisconnectSchedulesRemoval(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	game := createTestGame(t, srv)
	joinTestPlayer(t, srv, game.ID, "Ada", "sess-ada")
	ben := joinTestPlayer(t, srv, game.ID, "Ben", "sess-ben")

	header := http.Header{}
	header.Add("Cookie", sessionCookie+"=sess-ben")
	conn := dialWS(t, ts.URL, "/ws/games/"+game.ID, header)
	readUntil(t, conn, "connected")
	_ = conn.Close()

	// Grace period in test config is one second; the player should be
	// gone shortly after.
	deadline := time.Now().Add(5 * time.Second)
	for {
		var count int64
		if err := srv.db.Model(&db.Player{}).Where("id = ?", ben.ID).Count(&count).Error; err != nil {
			t.Fatalf("count players: %v", err)
		}
		if count == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected disconnected player to be removed after grace period")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestReconnectCancelsRemoval(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	game := createTestGame(t, srv)
	joinTestPlayer(t, srv, game.ID, "Ada", "sess-ada")
	ben := joinTestPlayer(t, srv, game.ID, "Ben", "sess-ben")

	header := http.Header{}
	header.Add("Cookie", sessionCookie+"=sess-ben")
	conn := dialWS(t, ts.URL, "/ws/games/"+game.ID, header)
	readUntil(t, conn, "connected")
	_ = conn.Close()
	time.Sleep(100 * time.Millisecond)

	conn2 := dialWS(t, ts.URL, "/ws/games/"+game.ID, header)
	readUntil(t, conn2, "connected")

	// Wait past the grace period; the reconnected player must survive.
	time.Sleep(1500 * time.Millisecond)
	var player db.Player
	if err := srv.db.First(&player, "id = ?", ben.ID).Error; err != nil {
		t.Fatalf("expected player to survive reconnect: %v", err)
	}
	if !player.IsConnected {
		t.Fatal("expected player marked connected after reconnect")
	}
}

func TestLobbyWebsocketListsWaitingGames(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	createTestGame(t, srv)
	conn := dialWS(t, ts.URL, "/ws/lobby", nil)

	env := readUntil(t, conn, "connected")
	payload, _ := env.Data.(map[string]any)
	games, _ := payload["games"].([]any)
	if len(games) != 1 {
		t.Fatalf("expected one waiting game, got %#v", env.Data)
	}

	game := createTestGame(t, srv)
	created := readUntil(t, conn, eventGameCreated)
	data, _ := created.Data.(map[string]any)
	if data["id"] != game.ID {
		t.Fatalf("expected created game broadcast, got %#v", created.Data)
	}
}

func TestLobbyWebsocketRemovesStartedGames(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	conn := dialWS(t, ts.URL, "/ws/lobby", nil)
	readUntil(t, conn, "connected")

	game := createTestGame(t, srv)
	joinTestPlayer(t, srv, game.ID, "Ada", "sess-ada")
	joinTestPlayer(t, srv, game.ID, "Ben", "sess-ben")
	readUntil(t, conn, eventGameCreated)
	startTestGame(t, srv, game.ID)

	removed := readUntil(t, conn, eventGameRemoved)
	data, _ := removed.Data.(map[string]any)
	if data["id"] != game.ID {
		t.Fatalf("expected removal for %s, got %#v", game.ID, removed.Data)
	}
}

func TestRemovalDeclinesReconnectedPlayer(t *testing.T) {
	srv := newTestSrv(t)
	game := createTestGame(t, srv)
	joinTestPlayer(t, srv, game.ID, "Ada", "sess-ada")
	ben := joinTestPlayer(t, srv, game.ID, "Ben", "sess-ben")

	if _, _, err := srv.setPlayerConnected(game.ID, "sess-ben", false); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, _, err := srv.setPlayerConnected(game.ID, "sess-ben", true); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	// The guard reads the connected flag under the game lock.
	if err := srv.leaveGame(game.ID, "sess-ben", true); !isKind(err, KindInvalidState) {
		t.Fatalf("expected invalid state for connected player, got %v", err)
	}
	var player db.Player
	if err := srv.db.First(&player, "id = ?", ben.ID).Error; err != nil {
		t.Fatalf("expected player to survive: %v", err)
	}

	if _, _, err := srv.setPlayerConnected(game.ID, "sess-ben", false); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := srv.leaveGame(game.ID, "sess-ben", true); err != nil {
		t.Fatalf("remove disconnected player: %v", err)
	}
	if err := srv.db.First(&player, "id = ?", ben.ID).Error; err == nil {
		t.Fatal("expected disconnected player removed")
	}
}

func TestBroadcastsSerializePerConnection(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	game := createTestGame(t, srv)
	conn := dialWS(t, ts.URL, "/ws/games/"+game.ID, nil)
	readUntil(t, conn, "connected")

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				srv.ws.Broadcast(game.ID, envelope(eventTimerUpdated, timerPayload{TurnTimeLeft: i}))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < writers*perWriter; i++ {
		env := readEnvelope(t, conn, 5*time.Second)
		if env.Type != eventTimerUpdated {
			t.Fatalf("frame %d: expected %s, got %q", i, eventTimerUpdated, env.Type)
		}
	}
}

func TestBroadcastsArriveInIssueOrder(t *testing.T) {
	srv := newTestSrv(t)
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	game := createTestGame(t, srv)
	conn := dialWS(t, ts.URL, "/ws/games/"+game.ID, nil)
	readUntil(t, conn, "connected")

	const count = 20
	for i := 0; i < count; i++ {
		srv.ws.Broadcast(game.ID, envelope(eventTimerUpdated, timerPayload{TurnTimeLeft: i}))
	}
	for i := 0; i < count; i++ {
		env := readEnvelope(t, conn, 5*time.Second)
		data, _ := env.Data.(map[string]any)
		left, _ := data["turn_time_left"].(float64)
		if env.Type != eventTimerUpdated || int(left) != i {
			t.Fatalf("expected frame %d in issue order, got %s %v", i, env.Type, env.Data)
		}
	}
}
