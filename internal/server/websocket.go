package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shiritori/internal/db"
)

// wsClient owns all writes to one connection. gorilla/websocket allows at
// most one concurrent writer per connection, so every send goes through
// the queue and a single pump goroutine.
type wsClient struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	queue  chan []byte
	closed bool
}

const wsClientQueueSize = 256

func newWSClient(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn, queue: make(chan []byte, wsClientQueueSize)}
	go client.writePump()
	return client
}

func (c *wsClient) writePump() {
	for data := range c.queue {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	_ = c.conn.Close()
}

// enqueue reports false when the client is closed or its queue is full.
func (c *wsClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.queue)
}

type wsHub struct {
	mu     sync.Mutex
	groups map[string]map[*websocket.Conn]*wsClient
}

type lobbyHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]*wsClient
}

func newWSHub() *wsHub {
	return &wsHub{
		groups: make(map[string]map[*websocket.Conn]*wsClient),
	}
}

func newLobbyHub() *lobbyHub {
	return &lobbyHub{
		conns: make(map[*websocket.Conn]*wsClient),
	}
}

func (h *wsHub) Add(gameID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		group = make(map[*websocket.Conn]*wsClient)
		h.groups[gameID] = group
	}
	group[conn] = newWSClient(conn)
}

func (h *wsHub) Remove(gameID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		return
	}
	if client, ok := group[conn]; ok {
		client.close()
	}
	delete(group, conn)
	if len(group) == 0 {
		delete(h.groups, gameID)
	}
}

func (h *wsHub) Send(gameID string, conn *websocket.Conn, payload any) {
	h.mu.Lock()
	client := h.groups[gameID][conn]
	h.mu.Unlock()
	if client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	client.enqueue(data)
}

// Broadcast enqueues under the hub lock, so every subscriber of a game
// sees messages in the same order broadcasts were issued.
func (h *wsHub) Broadcast(gameID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	var stale []*websocket.Conn
	h.mu.Lock()
	for conn, client := range h.groups[gameID] {
		if !client.enqueue(data) {
			stale = append(stale, conn)
		}
	}
	h.mu.Unlock()
	for _, conn := range stale {
		h.Remove(gameID, conn)
	}
}

func (h *lobbyHub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = newWSClient(conn)
}

func (h *lobbyHub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client, ok := h.conns[conn]; ok {
		client.close()
	}
	delete(h.conns, conn)
}

func (h *lobbyHub) Send(conn *websocket.Conn, payload any) {
	h.mu.Lock()
	client := h.conns[conn]
	h.mu.Unlock()
	if client == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	client.enqueue(data)
}

func (h *lobbyHub) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	var stale []*websocket.Conn
	h.mu.Lock()
	for conn, client := range h.conns {
		if !client.enqueue(data) {
			stale = append(stale, conn)
		}
	}
	h.mu.Unlock()
	for _, conn := range stale {
		h.Remove(conn)
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleGameWebsocket(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseWebsocketPath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	var game db.Game
	if err := s.db.First(&game, "id = ?", gameID).Error; err != nil {
		http.NotFound(w, r)
		return
	}
	// The upgrade writes its own response, so a freshly minted session
	// cookie has to ride on the handshake headers.
	sessionKey := s.sessions.Key(r)
	var handshake http.Header
	if sessionKey == "" {
		sessionKey = newSessionKey()
		handshake = http.Header{}
		handshake.Add("Set-Cookie", sessionHandshakeCookie(sessionKey))
	}

	conn, err := wsUpgrader.Upgrade(w, r, handshake)
	if err != nil {
		return
	}
	s.logger.Info("ws connected",
		zap.String("game_id", gameID), zap.String("remote", r.RemoteAddr))
	s.ws.Add(gameID, conn)

	player := s.resolveConnect(gameID, sessionKey)
	var selfID *string
	if player != nil {
		id := player.ID
		selfID = &id
	}
	if view, err := s.snapshotGame(gameID); err == nil {
		s.ws.Send(gameID, conn, envelope("connected", connectedPayload{Game: view, SelfPlayer: selfID}))
	}
	go s.readGameWS(gameID, sessionKey, conn)
}

func (s *Server) handleLobbyWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.logger.Info("ws connected", zap.String("channel", "lobby"), zap.String("remote", r.RemoteAddr))
	s.lobby.Add(conn)
	if views, err := s.snapshotWaitingGames(); err == nil {
		s.lobby.Send(conn, envelope("connected", map[string]any{"games": views}))
	}
	go s.readLobbyWS(conn)
}

func (s *Server) readGameWS(gameID, sessionKey string, conn *websocket.Conn) {
	defer func() {
		s.ws.Remove(gameID, conn)
		s.resolveDisconnect(gameID, sessionKey)
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.logger.Info("ws disconnected", zap.String("game_id", gameID), zap.Error(err))
			return
		}
	}
}

func (s *Server) readLobbyWS(conn *websocket.Conn) {
	defer s.lobby.Remove(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// resolveConnect marks the caller's player connected when the session has
// one in this game, and cancels any pending removal from an earlier drop.
func (s *Server) resolveConnect(gameID, sessionKey string) *db.Player {
	player, game, err := s.setPlayerConnected(gameID, sessionKey, true)
	if err != nil || player == nil {
		return nil
	}
	s.cancelRemoval(player.ID)
	s.broadcastGameEvent(gameID, eventPlayerConnected, playerRefPayload{PlayerID: player.ID}, &player.ID)
	s.broadcastGameUpdated(game)
	if game.Status == db.StatusPlaying {
		// The timer loop stops when too few players stay connected; a
		// reconnect has to pick the game back up. The token claim makes
		// this a no-op while a loop is still running.
		s.startTurnLoop(gameID)
	}
	return player
}

// resolveDisconnect marks the player disconnected and schedules removal
// after the grace period. Reconnecting within the window cancels it.
func (s *Server) resolveDisconnect(gameID, sessionKey string) {
	player, game, err := s.setPlayerConnected(gameID, sessionKey, false)
	if err != nil || player == nil {
		return
	}
	s.broadcastGameEvent(gameID, eventPlayerDisconnected, playerRefPayload{PlayerID: player.ID}, &player.ID)
	s.broadcastGameUpdated(game)
	s.scheduleRemoval(gameID, player.ID, sessionKey)
}

func (s *Server) setPlayerConnected(gameID, sessionKey string, connected bool) (*db.Player, *db.Game, error) {
	if sessionKey == "" {
		return nil, nil, nil
	}
	var found *db.Player
	game, err := s.withGame(gameID, func(tx *gorm.DB, game *db.Game) error {
		player, err := playerBySessionKey(tx, game.ID, sessionKey)
		if err != nil || player == nil {
			return err
		}
		if player.IsConnected == connected {
			return nil
		}
		if err := tx.Model(player).Update("is_connected", connected).Error; err != nil {
			return err
		}
		player.IsConnected = connected
		found = player
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return found, game, nil
}

func (s *Server) scheduleRemoval(gameID, playerID, sessionKey string) {
	grace := time.Duration(s.cfg.DisconnectGraceSeconds) * time.Second
	s.removalsMu.Lock()
	defer s.removalsMu.Unlock()
	if existing, ok := s.removals[playerID]; ok {
		existing.Stop()
	}
	s.removals[playerID] = time.AfterFunc(grace, func() {
		s.removalsMu.Lock()
		delete(s.removals, playerID)
		s.removalsMu.Unlock()

		// The connected-state recheck happens under the game lock; a
		// reconnect always either cancels the timer or commits
		// is_connected=true before the leave reads it.
		err := s.leaveGame(gameID, sessionKey, true)
		switch {
		case err == nil:
			s.logger.Info("removed disconnected player",
				zap.String("game_id", gameID), zap.String("player_id", playerID))
		case isExpectedStateError(err):
		default:
			s.logger.Warn("disconnect removal failed",
				zap.String("game_id", gameID), zap.String("player_id", playerID), zap.Error(err))
		}
	})
}

func (s *Server) cancelRemoval(playerID string) {
	s.removalsMu.Lock()
	defer s.removalsMu.Unlock()
	if timer, ok := s.removals[playerID]; ok {
		timer.Stop()
		delete(s.removals, playerID)
	}
}

func parseWebsocketPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/ws/games/")
	if !ok {
		return "", false
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
