package server

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"shiritori/internal/db"
)

// RequestStart handles the host's start request. With a countdown
// configured the start is announced and deferred; with none it happens
// immediately. Preconditions are checked up front either way so the caller
// gets a synchronous error.
func (s *Server) RequestStart(gameID, sessionKey string, override *SettingsInput) error {
	if err := s.checkStartable(gameID, sessionKey); err != nil {
		return err
	}
	seconds := s.cfg.StartCountdownSeconds
	if seconds <= 0 {
		return s.StartGame(gameID, sessionKey, override)
	}

	s.countdownsMu.Lock()
	if _, running := s.countdowns[gameID]; running {
		s.countdownsMu.Unlock()
		return errConflict("start countdown already in progress")
	}
	s.countdowns[gameID] = struct{}{}
	s.countdownsMu.Unlock()

	s.broadcastCountdown(gameID, eventCountdownStart, seconds)
	go s.runCountdown(gameID, sessionKey, override, seconds)
	return nil
}

func (s *Server) runCountdown(gameID, sessionKey string, override *SettingsInput, seconds int) {
	defer func() {
		s.countdownsMu.Lock()
		delete(s.countdowns, gameID)
		s.countdownsMu.Unlock()
	}()
	for remaining := seconds; remaining > 0; remaining-- {
		s.broadcastCountdown(gameID, eventCountdownTick, remaining)
		time.Sleep(time.Second)
		if err := s.checkStartable(gameID, sessionKey); err != nil {
			s.logger.Info("start countdown cancelled",
				zap.String("game_id", gameID), zap.Error(err))
			s.broadcastCountdown(gameID, eventCountdownCancel, remaining)
			return
		}
	}
	s.broadcastCountdown(gameID, eventCountdownEnd, 0)
	if err := s.StartGame(gameID, sessionKey, override); err != nil {
		s.logger.Warn("start after countdown failed",
			zap.String("game_id", gameID), zap.Error(err))
		s.broadcastCountdown(gameID, eventCountdownCancel, 0)
	}
}

// checkStartable verifies the StartGame preconditions without mutating
// anything.
func (s *Server) checkStartable(gameID, sessionKey string) error {
	_, err := s.withGame(gameID, func(tx *gorm.DB, game *db.Game) error {
		if game.Status != db.StatusWaiting {
			return errInvalidState("cannot start a game that is not waiting")
		}
		if sessionKey != "" {
			host, err := gameHost(tx, game)
			if err != nil {
				return err
			}
			if host == nil || host.SessionKey != sessionKey {
				return errForbidden("only the host can start the game")
			}
		}
		players, err := gamePlayers(tx, game)
		if err != nil {
			return err
		}
		if len(players) < 2 {
			return errInvalidState("cannot start a game with less than 2 players")
		}
		return nil
	})
	return err
}
