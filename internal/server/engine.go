package server

import (
	"errors"
	"math"
	"strings"

	"gorm.io/gorm"

	"shiritori/internal/db"
)

// withGame runs fn inside the game's lock and a transaction, with the
// aggregate freshly loaded from the store. State is never cached between
// operations; every mutation re-reads inside its lock scope.
func (s *Server) withGame(gameID string, fn func(tx *gorm.DB, game *db.Game) error) (*db.Game, error) {
	unlock := s.locks.Lock(gameID)
	defer unlock()

	var game db.Game
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Settings").First(&game, "id = ?", gameID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errNotFound("game %s not found", gameID)
			}
			return err
		}
		if game.Settings == nil {
			settings := db.DefaultSettings()
			settings.ID = newEntityID()
			if err := tx.Create(&settings).Error; err != nil {
				return err
			}
			game.Settings = &settings
			game.SettingsID = settings.ID
			if err := tx.Model(&db.Game{}).Where("id = ?", game.ID).
				Update("settings_id", settings.ID).Error; err != nil {
				return err
			}
		}
		return fn(tx, &game)
	})
	if err != nil {
		return nil, err
	}
	return &game, nil
}

// gamePlayers returns the game's non-spectator players: by turn order once
// the game has started, otherwise by join order.
func gamePlayers(tx *gorm.DB, game *db.Game) ([]db.Player, error) {
	var players []db.Player
	query := tx.Where("game_id = ? AND type <> ?", game.ID, db.PlayerTypeSpectator)
	if game.Status == db.StatusPlaying {
		query = query.Order("turn_order")
	} else {
		query = query.Order("created_at")
	}
	if err := query.Find(&players).Error; err != nil {
		return nil, err
	}
	return players, nil
}

func allPlayers(tx *gorm.DB, game *db.Game) ([]db.Player, error) {
	var players []db.Player
	err := tx.Where("game_id = ?", game.ID).Order("created_at").Find(&players).Error
	return players, err
}

func gameHost(tx *gorm.DB, game *db.Game) (*db.Player, error) {
	var host db.Player
	err := tx.Where("game_id = ? AND is_host = ?", game.ID, true).First(&host).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

func currentPlayer(tx *gorm.DB, game *db.Game) (*db.Player, error) {
	var player db.Player
	err := tx.Where("game_id = ? AND is_current = ?", game.ID, true).First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func playerBySessionKey(tx *gorm.DB, gameID, sessionKey string) (*db.Player, error) {
	var player db.Player
	err := tx.Where("game_id = ? AND session_key = ?", gameID, sessionKey).First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func gameWords(tx *gorm.DB, game *db.Game) ([]db.GameWord, error) {
	var words []db.GameWord
	err := tx.Where("game_id = ?", game.ID).Order("created_at").Find(&words).Error
	return words, err
}

// setCurrentPlayer clears the current flag across the game's players and
// sets it on the given player as one step inside the operation's
// transaction.
func setCurrentPlayer(tx *gorm.DB, game *db.Game, playerID string) error {
	if err := tx.Model(&db.Player{}).Where("game_id = ?", game.ID).
		Update("is_current", false).Error; err != nil {
		return err
	}
	return tx.Model(&db.Player{}).Where("id = ?", playerID).
		Update("is_current", true).Error
}

// setWinner demotes any previous winner back to HUMAN before promoting the
// new one, keeping at most one WINNER per game.
func setWinner(tx *gorm.DB, game *db.Game, playerID string) error {
	if err := tx.Model(&db.Player{}).
		Where("game_id = ? AND type = ?", game.ID, db.PlayerTypeWinner).
		Update("type", db.PlayerTypeHuman).Error; err != nil {
		return err
	}
	return tx.Model(&db.Player{}).Where("id = ?", playerID).
		Update("type", db.PlayerTypeWinner).Error
}

type leaderboardEntry struct {
	Player db.Player
	Score  float64
}

// leaderboard ranks the game's players by summed word score, descending.
// Ties keep the players' row order, which makes the winner deterministic.
func leaderboard(tx *gorm.DB, game *db.Game) ([]leaderboardEntry, error) {
	players, err := gamePlayers(tx, game)
	if err != nil {
		return nil, err
	}
	words, err := gameWords(tx, game)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]float64, len(players))
	for _, word := range words {
		if word.PlayerID != nil {
			totals[*word.PlayerID] += word.Score
		}
	}
	entries := make([]leaderboardEntry, 0, len(players))
	for _, player := range players {
		entries = append(entries, leaderboardEntry{Player: player, Score: totals[player.ID]})
	}
	// Stable insertion sort; player lists are small.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Score > entries[j-1].Score; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries, nil
}

func playerScore(words []db.GameWord, playerID string) float64 {
	total := 0.0
	for _, word := range words {
		if word.PlayerID != nil && *word.PlayerID == playerID {
			total += word.Score
		}
	}
	return math.Round(total)
}

// usedLetters is the set of ending letters across the game's recorded
// words, used for the new-letter score bonus.
func usedLetters(words []db.GameWord) map[string]struct{} {
	used := make(map[string]struct{})
	for _, word := range words {
		if word.Word == nil || *word.Word == "" {
			continue
		}
		used[lastLetter(*word.Word)] = struct{}{}
	}
	return used
}

func lastLetter(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return ""
	}
	return strings.ToLower(string(runes[len(runes)-1]))
}

func firstLetter(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return ""
	}
	return strings.ToLower(string(runes[0]))
}

func longestWord(words []db.GameWord) *db.GameWord {
	var longest *db.GameWord
	for i := range words {
		if words[i].Word == nil {
			continue
		}
		if longest == nil || utf8Len(*words[i].Word) > utf8Len(*longest.Word) {
			longest = &words[i]
		}
	}
	return longest
}

func utf8Len(word string) int {
	return len([]rune(word))
}
