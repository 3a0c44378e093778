package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"shiritori/internal/config"
	"shiritori/internal/db"
)

var testDBCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:shiritori_test_%d?mode=memory&cache=shared", testDBCounter.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return conn
}

func testConfig() config.Config {
	cfg := config.Default()
	// A near-idle tick keeps the turn loop from racing the assertions.
	cfg.TimerTickMillis = 60_000
	cfg.DisconnectGraceSeconds = 1
	cfg.StartCountdownSeconds = 0
	return cfg
}

func newTestSrv(t *testing.T) *Server {
	t.Helper()
	return New(newTestDB(t), testConfig(), zap.NewNop())
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	return ts
}

// testClient is one simulated browser: its cookie jar carries the session
// key across requests.
type testClient struct {
	http *http.Client
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return &testClient{http: &http.Client{Jar: jar}}
}

func (c *testClient) doRequest(t *testing.T, ts *httptest.Server, method, path string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func seedDictionary(t *testing.T, srv *Server, words ...string) {
	t.Helper()
	if _, err := srv.LoadDictionary(db.DefaultLocale, words); err != nil {
		t.Fatalf("seed dictionary: %v", err)
	}
}

func createTestGame(t *testing.T, srv *Server) *db.Game {
	t.Helper()
	game, err := srv.CreateGame(nil)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func joinTestPlayer(t *testing.T, srv *Server, gameID, name, sessionKey string) *db.Player {
	t.Helper()
	player, err := srv.JoinGame(gameID, name, sessionKey)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return player
}

func startTestGame(t *testing.T, srv *Server, gameID string) {
	t.Helper()
	if err := srv.StartGame(gameID, "", nil); err != nil {
		t.Fatalf("start game: %v", err)
	}
}

func loadGame(t *testing.T, srv *Server, gameID string) *db.Game {
	t.Helper()
	var game db.Game
	if err := srv.db.Preload("Settings").First(&game, "id = ?", gameID).Error; err != nil {
		t.Fatalf("load game: %v", err)
	}
	return &game
}

func forceLastWord(t *testing.T, srv *Server, gameID, word string) {
	t.Helper()
	if err := srv.db.Model(&db.Game{}).Where("id = ?", gameID).
		Update("last_word", word).Error; err != nil {
		t.Fatalf("force last word: %v", err)
	}
}

func currentTestPlayer(t *testing.T, srv *Server, gameID string) *db.Player {
	t.Helper()
	var player db.Player
	if err := srv.db.First(&player, "game_id = ? AND is_current = ?", gameID, true).Error; err != nil {
		t.Fatalf("load current player: %v", err)
	}
	return &player
}
