package server

import (
	"time"

	"shiritori/internal/db"
)

// GameView is the full game snapshot sent over the API and every
// game_updated broadcast.
type GameView struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"`
	Settings        SettingsView `json:"settings"`
	Players         []PlayerView `json:"players"`
	Words           []WordView   `json:"words"`
	CurrentTurn     int          `json:"current_turn"`
	CurrentRound    int          `json:"current_round"`
	TurnTimeLeft    int          `json:"turn_time_left"`
	LastWord        string       `json:"last_word"`
	CurrentPlayerID *string      `json:"current_player_id"`
	WinnerID        *string      `json:"winner_id"`
	LongestWordID   *string      `json:"longest_word_id"`
	PlayerCount     int          `json:"player_count"`
	WordCount       int          `json:"word_count"`
	IsFinished      bool         `json:"is_finished"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type SettingsView struct {
	Locale     string `json:"locale"`
	WordLength int    `json:"word_length"`
	TurnTime   int    `json:"turn_time"`
	MaxTurns   int    `json:"max_turns"`
}

type PlayerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Score       int    `json:"score"`
	IsCurrent   bool   `json:"is_current"`
	IsHost      bool   `json:"is_host"`
	IsConnected bool   `json:"is_connected"`
}

type WordView struct {
	ID       string  `json:"id"`
	PlayerID *string `json:"player_id"`
	Word     *string `json:"word"`
	Score    float64 `json:"score"`
	Duration float64 `json:"duration"`
}

func playerPayload(p *db.Player) PlayerView {
	return PlayerView{
		ID:          p.ID,
		Name:        p.Name,
		Type:        p.Type,
		IsCurrent:   p.IsCurrent,
		IsHost:      p.IsHost,
		IsConnected: p.IsConnected,
	}
}

func wordView(w *db.GameWord) WordView {
	return WordView{
		ID:       w.ID,
		PlayerID: w.PlayerID,
		Word:     w.Word,
		Score:    w.Score,
		Duration: w.Duration,
	}
}

// snapshotGame reads the game fresh and assembles the view. It runs outside
// the per-game lock; callers inside an operation should broadcast after the
// transaction commits.
func (s *Server) snapshotGame(gameID string) (*GameView, error) {
	var game db.Game
	if err := s.db.Preload("Settings").First(&game, "id = ?", gameID).Error; err != nil {
		return nil, err
	}

	players, err := allPlayers(s.db, &game)
	if err != nil {
		return nil, err
	}
	var words []db.GameWord
	if err := s.db.Where("game_id = ?", game.ID).
		Order("created_at asc, id asc").Find(&words).Error; err != nil {
		return nil, err
	}

	settings := db.DefaultSettings()
	if game.Settings != nil {
		settings = *game.Settings
	}

	view := &GameView{
		ID:     game.ID,
		Status: game.Status,
		Settings: SettingsView{
			Locale:     settings.Locale,
			WordLength: settings.WordLength,
			TurnTime:   settings.TurnTime,
			MaxTurns:   settings.MaxTurns,
		},
		Players:      make([]PlayerView, 0, len(players)),
		Words:        make([]WordView, 0, len(words)),
		CurrentTurn:  game.CurrentTurn,
		CurrentRound: game.CurrentRound,
		TurnTimeLeft: game.TurnTimeLeft,
		LastWord:     game.LastWord,
		WordCount:    len(words),
		IsFinished:   game.Status == db.StatusFinished,
		CreatedAt:    game.CreatedAt,
		UpdatedAt:    game.UpdatedAt,
	}

	for i := range players {
		p := &players[i]
		view.Players = append(view.Players, PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			Type:        p.Type,
			Score:       int(playerScore(words, p.ID)),
			IsCurrent:   p.IsCurrent,
			IsHost:      p.IsHost,
			IsConnected: p.IsConnected,
		})
		if p.Type != db.PlayerTypeSpectator {
			view.PlayerCount++
		}
		if p.IsCurrent {
			id := p.ID
			view.CurrentPlayerID = &id
		}
		if p.Type == db.PlayerTypeWinner {
			id := p.ID
			view.WinnerID = &id
		}
	}
	for i := range words {
		view.Words = append(view.Words, wordView(&words[i]))
	}
	if longest := longestWord(words); longest != nil {
		id := longest.ID
		view.LongestWordID = &id
	}
	return view, nil
}

// snapshotWaitingGames lists joinable games for the lobby, newest first.
func (s *Server) snapshotWaitingGames() ([]*GameView, error) {
	var games []db.Game
	if err := s.db.Where("status = ?", db.StatusWaiting).
		Order("created_at desc").Find(&games).Error; err != nil {
		return nil, err
	}
	views := make([]*GameView, 0, len(games))
	for i := range games {
		view, err := s.snapshotGame(games[i].ID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}
