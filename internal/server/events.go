package server

import (
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"shiritori/internal/db"
)

const (
	eventGameCreated        = "game_created"
	eventGameUpdated        = "game_updated"
	eventGameRemoved        = "game_removed"
	eventTimerUpdated       = "game_timer_updated"
	eventPlayerJoined       = "player_joined"
	eventPlayerUpdated      = "player_updated"
	eventPlayerLeft         = "player_left"
	eventPlayerConnected    = "player_connected"
	eventPlayerDisconnected = "player_disconnected"
	eventTurnTaken          = "turn_taken"
	eventCountdownStart     = "game_start_countdown_start"
	eventCountdownTick      = "game_start_countdown_tick"
	eventCountdownEnd       = "game_start_countdown_end"
	eventCountdownCancel    = "game_start_countdown_cancel"
)

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func envelope(eventType string, data any) wsEnvelope {
	return wsEnvelope{Type: eventType, Data: data}
}

type playerLeftPayload struct {
	PlayerID string `json:"player_id"`
}

type playerRefPayload struct {
	PlayerID string `json:"player_id"`
}

type timerPayload struct {
	TurnTimeLeft int `json:"turn_time_left"`
}

type countdownPayload struct {
	Seconds int `json:"seconds"`
}

type connectedPayload struct {
	Game       *GameView `json:"game"`
	SelfPlayer *string   `json:"self_player"`
}

// eventLog appends every per-game broadcast to the events table.
// Persistence is fire-and-forget: failures are logged and never reach the
// caller of the state-machine operation.
type eventLog struct {
	db     *gorm.DB
	logger *zap.Logger
}

func (l *eventLog) persist(gameID, eventType string, payload any, playerID *string) {
	data, err := json.Marshal(payload)
	if err != nil {
		l.logger.Warn("event payload marshal failed",
			zap.String("game_id", gameID), zap.String("type", eventType), zap.Error(err))
		return
	}
	event := db.Event{
		GameID:   gameID,
		PlayerID: playerID,
		Type:     eventType,
		Payload:  datatypes.JSON(data),
	}
	if err := l.db.Create(&event).Error; err != nil {
		l.logger.Warn("event persist failed",
			zap.String("game_id", gameID), zap.String("type", eventType), zap.Error(err))
	}
}

// broadcastGameEvent publishes a typed event on the game channel and logs
// it to the event table.
func (s *Server) broadcastGameEvent(gameID, eventType string, payload any, playerID *string) {
	s.events.persist(gameID, eventType, payload, playerID)
	s.ws.Broadcast(gameID, envelope(eventType, payload))
}

// broadcastGameUpdated sends a fresh full snapshot to the game channel,
// and to the lobby while the game is still WAITING.
func (s *Server) broadcastGameUpdated(game *db.Game) {
	if game == nil {
		return
	}
	view, err := s.snapshotGame(game.ID)
	if err != nil {
		s.logger.Warn("snapshot for broadcast failed", zap.String("game_id", game.ID), zap.Error(err))
		return
	}
	s.broadcastGameEvent(game.ID, eventGameUpdated, view, nil)
	if view.Status == db.StatusWaiting {
		s.lobby.Broadcast(envelope(eventGameUpdated, view))
	}
}

func (s *Server) broadcastLobby(eventType string, game *db.Game) {
	view, err := s.snapshotGame(game.ID)
	if err != nil {
		s.logger.Warn("snapshot for lobby broadcast failed", zap.String("game_id", game.ID), zap.Error(err))
		return
	}
	s.lobby.Broadcast(envelope(eventType, view))
}

func (s *Server) broadcastLobbyRemoved(gameID string) {
	s.lobby.Broadcast(envelope(eventGameRemoved, map[string]string{"id": gameID}))
}

// Timer ticks are broadcast-only; they are too chatty for the event log.
func (s *Server) broadcastTimer(gameID string, timeLeft int) {
	s.ws.Broadcast(gameID, envelope(eventTimerUpdated, timerPayload{TurnTimeLeft: timeLeft}))
}

func (s *Server) broadcastTurn(game *db.Game, taken *db.GameWord) {
	if game == nil || taken == nil {
		return
	}
	s.broadcastGameEvent(game.ID, eventTurnTaken, wordView(taken), taken.PlayerID)
	s.broadcastGameUpdated(game)
}

func (s *Server) broadcastCountdown(gameID, eventType string, seconds int) {
	s.broadcastGameEvent(gameID, eventType, countdownPayload{Seconds: seconds}, nil)
}
