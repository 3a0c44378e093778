package server

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shiritori/internal/db"
)

const timerRetryLimit = 5

// startTurnLoop claims ownership of the game's timer via a compare-and-set
// on the active loop token. If another loop already holds the token this
// is a no-op, so at most one loop drives a game at a time.
func (s *Server) startTurnLoop(gameID string) {
	token := uuid.NewString()
	result := s.db.Model(&db.Game{}).
		Where("id = ? AND status = ? AND (active_loop_id IS NULL OR active_loop_id = '')",
			gameID, db.StatusPlaying).
		Update("active_loop_id", token)
	if result.Error != nil {
		s.logger.Error("timer loop claim failed", zap.String("game_id", gameID), zap.Error(result.Error))
		return
	}
	if result.RowsAffected == 0 {
		return
	}
	s.loopWG.Add(1)
	go s.runTurnLoop(gameID, token)
}

// runTurnLoop decrements the turn clock once per tick and force-ends the
// turn when it reaches zero. It exits as soon as the game stops PLAYING
// under this loop's token: finish, restart, deletion, or a newer loop all
// invalidate the token and the loop observes that on its next pass.
func (s *Server) runTurnLoop(gameID, token string) {
	defer s.loopWG.Done()
	defer s.releaseTurnLoop(gameID, token)
	s.logger.Info("timer loop started", zap.String("game_id", gameID), zap.String("token", token))

	retries := 0
	for {
		var game db.Game
		err := s.db.
			Where("id = ? AND status = ? AND active_loop_id = ?", gameID, db.StatusPlaying, token).
			First(&game).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Info("timer loop finished", zap.String("game_id", gameID))
			return
		}
		if err != nil {
			if retries++; retries > timerRetryLimit {
				s.logger.Error("timer loop giving up", zap.String("game_id", gameID), zap.Error(err))
				return
			}
			time.Sleep(s.tick() * time.Duration(retries))
			continue
		}
		retries = 0

		if game.TurnTimeLeft > 0 {
			time.Sleep(s.tick())
			if err := s.decrementTurnTime(gameID, token); err != nil {
				if retries++; retries > timerRetryLimit {
					s.logger.Error("timer loop giving up", zap.String("game_id", gameID), zap.Error(err))
					return
				}
				time.Sleep(s.tick() * time.Duration(retries))
				continue
			}
			s.broadcastTimer(gameID, game.TurnTimeLeft-1)
			continue
		}

		if err := s.EndTurn(gameID); err != nil {
			if _, expected := errKind(err); expected {
				// The game became unviable or moved on; stop driving it.
				s.logger.Info("timer loop stopping",
					zap.String("game_id", gameID), zap.String("reason", err.Error()))
				return
			}
			if retries++; retries > timerRetryLimit {
				s.logger.Error("timer loop giving up", zap.String("game_id", gameID), zap.Error(err))
				return
			}
			time.Sleep(s.tick() * time.Duration(retries))
			continue
		}
		s.broadcastTimer(gameID, s.currentTurnTime(gameID))
	}
}

// decrementTurnTime atomically takes one second off the clock, guarded by
// the loop token so a superseded loop cannot touch the game.
func (s *Server) decrementTurnTime(gameID, token string) error {
	return s.db.Model(&db.Game{}).
		Where("id = ? AND active_loop_id = ? AND turn_time_left > 0", gameID, token).
		Update("turn_time_left", gorm.Expr("turn_time_left - 1")).Error
}

// releaseTurnLoop clears the token only if this loop still owns it.
func (s *Server) releaseTurnLoop(gameID, token string) {
	err := s.db.Model(&db.Game{}).
		Where("id = ? AND active_loop_id = ?", gameID, token).
		Update("active_loop_id", "").Error
	if err != nil {
		s.logger.Warn("timer loop release failed", zap.String("game_id", gameID), zap.Error(err))
	}
}

func (s *Server) currentTurnTime(gameID string) int {
	var game db.Game
	if err := s.db.Select("turn_time_left").First(&game, "id = ?", gameID).Error; err != nil {
		return 0
	}
	return game.TurnTimeLeft
}

func (s *Server) tick() time.Duration {
	return time.Duration(s.cfg.TimerTickMillis) * time.Millisecond
}
