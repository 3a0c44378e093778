package server

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"shiritori/internal/db"
)

// TakeTurn submits a word for the current player. The word is normalized
// to lowercase NFKC form before validation.
func (s *Server) TakeTurn(gameID, sessionKey, word string) error {
	normalized := normalizeWord(word)
	if utf8Len(normalized) > maxWordLength {
		return errValidation("word must be at most %d characters long", maxWordLength)
	}
	var taken *db.GameWord
	game, err := s.withGame(gameID, func(tx *gorm.DB, game *db.Game) error {
		if game.Status != db.StatusPlaying {
			return errInvalidState("game is not in progress")
		}
		current, err := currentPlayer(tx, game)
		if err != nil {
			return err
		}
		if current == nil || current.SessionKey != sessionKey {
			return errForbidden("it is not your turn")
		}
		if game.TurnTimeLeft <= 0 {
			return errInvalidState("turn time has expired")
		}
		taken, err = s.handleTurn(tx, game, &normalized)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("turn taken",
		zap.String("game_id", gameID),
		zap.String("word", normalized),
		zap.Float64("score", taken.Score))
	s.broadcastTurn(game, taken)
	return nil
}

// EndTurn force-submits an empty word for the current player. This is the
// timeout path used by the timer loop: it records the turn and advances
// the machine even though the turn time is exhausted.
func (s *Server) EndTurn(gameID string) error {
	var taken *db.GameWord
	game, err := s.withGame(gameID, func(tx *gorm.DB, game *db.Game) error {
		if game.Status != db.StatusPlaying {
			return errInvalidState("game is not in progress")
		}
		var err error
		taken, err = s.handleTurn(tx, game, nil)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("turn timed out",
		zap.String("game_id", gameID),
		zap.Float64("score", taken.Score))
	s.broadcastTurn(game, taken)
	return nil
}

// handleTurn records the turn, then either finishes the game when the turn
// budget is exhausted or rotates to the next player and resets the clock.
// A nil word is a timed-out submission: it skips word validation and keeps
// lastWord unchanged.
func (s *Server) handleTurn(tx *gorm.DB, game *db.Game, word *string) (*db.GameWord, error) {
	current, err := currentPlayer(tx, game)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errInvalidState("game has no current player")
	}
	words, err := gameWords(tx, game)
	if err != nil {
		return nil, err
	}

	duration := float64(game.Settings.TurnTime - game.TurnTimeLeft)
	isNewLetter := false
	if word != nil {
		if err := validateTurnWord(s, game, words, *word); err != nil {
			return nil, err
		}
		_, seen := usedLetters(words)[lastLetter(*word)]
		isNewLetter = !seen
	}
	score, err := calculateScore(word, duration, isNewLetter)
	if err != nil {
		return nil, err
	}

	taken := db.GameWord{
		ID:       newEntityID(),
		GameID:   game.ID,
		PlayerID: &current.ID,
		Word:     word,
		Score:    score,
		Duration: duration,
	}
	if err := tx.Create(&taken).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, errValidation("word already used")
		}
		return nil, err
	}
	if word != nil {
		game.LastWord = *word
	}

	players, err := gamePlayers(tx, game)
	if err != nil {
		return nil, err
	}
	game.CurrentTurn++
	if game.CurrentTurn > game.Settings.MaxTurns*len(players) {
		if err := finishGame(tx, game); err != nil {
			return nil, err
		}
		if err := tx.Model(&db.Game{}).Where("id = ?", game.ID).
			Updates(map[string]any{
				"current_turn": game.CurrentTurn,
				"last_word":    game.LastWord,
			}).Error; err != nil {
			return nil, err
		}
		return &taken, nil
	}

	if lastConnected := lastConnectedPlayer(players); lastConnected != nil && lastConnected.ID == current.ID {
		game.CurrentRound++
	}
	if err := s.calculateCurrentPlayer(tx, game); err != nil {
		return nil, err
	}
	game.TurnTimeLeft = game.Settings.TurnTime
	if err := tx.Model(&db.Game{}).Where("id = ?", game.ID).
		Updates(map[string]any{
			"current_turn":   game.CurrentTurn,
			"current_round":  game.CurrentRound,
			"last_word":      game.LastWord,
			"turn_time_left": game.TurnTimeLeft,
		}).Error; err != nil {
		return nil, err
	}
	return &taken, nil
}

// validateTurnWord applies the word rules in fixed order; the first broken
// rule names the failure.
func validateTurnWord(s *Server, game *db.Game, words []db.GameWord, word string) error {
	if game.LastWord != "" && firstLetter(word) != lastLetter(game.LastWord) {
		return errValidation("word must start with the last letter of the previous word")
	}
	for _, used := range words {
		if used.Word != nil && strings.EqualFold(*used.Word, word) {
			return errValidation("word already used")
		}
	}
	if utf8Len(word) < game.Settings.WordLength {
		return errValidation("word must be at least %d characters long", game.Settings.WordLength)
	}
	if !s.ValidateWord(word, game.Settings.Locale) {
		return errValidation("word not found in dictionary")
	}
	return nil
}

func lastConnectedPlayer(players []db.Player) *db.Player {
	for i := len(players) - 1; i >= 0; i-- {
		if players[i].IsConnected {
			return &players[i]
		}
	}
	return nil
}

func normalizeWord(word string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(word)))
}
