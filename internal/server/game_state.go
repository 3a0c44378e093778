package server

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"shiritori/internal/db"
)

// CreateGame creates a WAITING game with defaulted settings and a random
// seed letter, and announces it to the lobby.
func (s *Server) CreateGame(input *SettingsInput) (*db.Game, error) {
	settings := db.DefaultSettings()
	if input != nil {
		if err := input.apply(&settings); err != nil {
			return nil, err
		}
	}
	settings.ID = newEntityID()

	game := db.Game{
		ID:         newGameID(),
		Status:     db.StatusWaiting,
		LastWord:   s.randomLetter(),
		SettingsID: settings.ID,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&settings).Error; err != nil {
			return err
		}
		return tx.Create(&game).Error
	})
	if err != nil {
		return nil, err
	}
	game.Settings = &settings
	s.logger.Info("game created", zap.String("game_id", game.ID))
	s.broadcastLobby(eventGameCreated, &game)
	return &game, nil
}

// JoinGame adds a named player to a WAITING game, binding the session key
// to the new player. The first player to join becomes host.
func (s *Server) JoinGame(gameID, name, sessionKey string) (*db.Player, error) {
	name, err := validatePlayerName(name)
	if err != nil {
		return nil, err
	}

	var player db.Player
	game, err := s.withGame(gameID, func(tx *gorm.DB, game *db.Game) error {
		if game.Status != db.StatusWaiting {
			return errInvalidState("game has already started or is finished")
		}
		var taken int64
		if err := tx.Model(&db.Player{}).
			Where("game_id = ? AND (name = ? OR session_key = ?)", game.ID, name, sessionKey).
			Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return errConflict("name or session already taken in this game")
		}
		players, err := gamePlayers(tx, game)
		if err != nil {
			return err
		}
		player = db.Player{
			ID:          newEntityID(),
			GameID:      game.ID,
			Name:        name,
			Type:        db.PlayerTypeHuman,
			IsHost:      len(players) == 0,
			IsConnected: true,
			SessionKey:  sessionKey,
		}
		if err := tx.Create(&player).Error; err != nil {
			if isUniqueViolation(err) {
				return errConflict("name or session already taken in this game")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("player joined",
		zap.String("game_id", gameID),
		zap.String("player_id", player.ID),
		zap.String("name", player.Name))
	s.broadcastGameEvent(gameID, eventPlayerJoined, playerPayload(&player), &player.ID)
	s.broadcastGameUpdated(game)
	return &player, nil
}

// LeaveGame removes the player bound to sessionKey. The last player to
// leave deletes the game; a departing host hands the role to the earliest
// joined player; a PLAYING game that drops below two players finishes.
func (s *Server) LeaveGame(gameID, sessionKey string) error {
	return s.leaveGame(gameID, sessionKey, false)
}

// leaveGame removes the session's player. With onlyIfDisconnected set it
// refuses under the game lock when the player is connected again, which
// is how grace-period removal stays safe against a late reconnect.
func (s *Server) leaveGame(gameID, sessionKey string, onlyIfDisconnected bool) error {
	var (
		removed     db.Player
		gameDeleted bool
		newHost     *db.Player
	)
	game, err := s.withGame(gameID, func(tx *gorm.DB, game *db.Game) error {
		player, err := playerBySessionKey(tx, game.ID, sessionKey)
		if err != nil {
			return err
		}
		if player == nil {
			return errNotFound("no player for this session in game %s", game.ID)
		}
		if onlyIfDisconnected && player.IsConnected {
			return errInvalidState("player is connected")
		}
		removed = *player
		if err := tx.Delete(&db.Player{}, "id = ?", player.ID).Error; err != nil {
			return err
		}
		// The word rows survive with a dangling player reference.
		if err := tx.Model(&db.GameWord{}).
			Where("game_id = ? AND player_id = ?", game.ID, player.ID).
			Update("player_id", nil).Error; err != nil {
			return err
		}

		remaining, err := gamePlayers(tx, game)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			gameDeleted = true
			return deleteGame(tx, game)
		}
		if player.IsHost {
			promoted, err := recalculateHost(tx, game)
			if err != nil {
				return err
			}
			newHost = promoted
		}
		if game.Status == db.StatusPlaying {
			if len(remaining) < 2 {
				if err := finishGame(tx, game); err != nil {
					return err
				}
			} else if err := s.calculateCurrentPlayer(tx, game); err != nil {
				if _, expected := errKind(err); !expected {
					return err
				}
				if err := finishGame(tx, game); err != nil {
					return err
				}
			}
		}
		return tx.Model(&db.Game{}).Where("id = ?", game.ID).
			Updates(map[string]any{
				"status":         game.Status,
				"active_loop_id": game.ActiveLoopID,
			}).Error
	})
	if err != nil {
		return err
	}
	s.cancelRemoval(removed.ID)
	s.logger.Info("player left",
		zap.String("game_id", gameID),
		zap.String("player_id", removed.ID),
		zap.Bool("game_deleted", gameDeleted))
	if gameDeleted {
		s.broadcastLobbyRemoved(gameID)
		s.ws.Broadcast(gameID, envelope(eventPlayerLeft, playerLeftPayload{PlayerID: removed.ID}))
		return nil
	}
	s.broadcastGameEvent(gameID, eventPlayerLeft, playerLeftPayload{PlayerID: removed.ID}, nil)
	if newHost != nil {
		s.broadcastGameEvent(gameID, eventPlayerUpdated, playerPayload(newHost), &newHost.ID)
	}
	s.broadcastGameUpdated(game)
	return nil
}

// StartGame moves a WAITING game to PLAYING: shuffles turn order, picks
// the first current player, applies any settings override, and launches
// the turn timer loop. When sessionKey is non-empty it must belong to the
// host.
func (s *Server) StartGame(gameID, sessionKey string, override *SettingsInput) error {
	game, err := s.withGame(gameID, func(tx *gorm.DB, game *db.Game) error {
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
		if override != nil {
			if err := override.apply(game.Settings); err != nil {
				return err
			}
			if err := tx.Model(&db.GameSettings{}).Where("id = ?", game.Settings.ID).
				Updates(map[string]any{
					"locale":      game.Settings.Locale,
					"word_length": game.Settings.WordLength,
					"turn_time":   game.Settings.TurnTime,
					"max_turns":   game.Settings.MaxTurns,
				}).Error; err != nil {
				return err
			}
		}
		if err := s.shufflePlayerOrder(tx, players); err != nil {
			return err
		}
		game.Status = db.StatusPlaying
		game.TurnTimeLeft = game.Settings.TurnTime
		first := players[game.CurrentTurn%len(players)]
		if err := setCurrentPlayer(tx, game, first.ID); err != nil {
			return err
		}
		return tx.Model(&db.Game{}).Where("id = ?", game.ID).
			Updates(map[string]any{
				"status":         game.Status,
				"turn_time_left": game.TurnTimeLeft,
			}).Error
	})
	if err != nil {
		return err
	}
	s.logger.Info("game started", zap.String("game_id", gameID))
	s.broadcastLobbyRemoved(gameID)
	s.broadcastGameUpdated(game)
	s.startTurnLoop(gameID)
	return nil
}

// RestartGame resets a game back to WAITING: words cleared, turn order and
// current flags unset, counters zeroed, fresh seed letter, timer loop
// token invalidated. Host only when sessionKey is non-empty.
func (s *Server) RestartGame(gameID, sessionKey string) error {
	game, err := s.withGame(gameID, func(tx *gorm.DB, game *db.Game) error {
		if sessionKey != "" {
			host, err := gameHost(tx, game)
			if err != nil {
				return err
			}
			if host == nil || host.SessionKey != sessionKey {
				return errForbidden("only the host can restart the game")
			}
		}
		if err := tx.Delete(&db.GameWord{}, "game_id = ?", game.ID).Error; err != nil {
			return err
		}
		if err := tx.Model(&db.Player{}).Where("game_id = ?", game.ID).
			Updates(map[string]any{"is_current": false, "turn_order": nil}).Error; err != nil {
			return err
		}
		game.Status = db.StatusWaiting
		game.CurrentTurn = 0
		game.CurrentRound = 0
		game.TurnTimeLeft = 0
		game.ActiveLoopID = ""
		game.LastWord = s.randomLetter()
		return tx.Model(&db.Game{}).Where("id = ?", game.ID).
			Updates(map[string]any{
				"status":         game.Status,
				"current_turn":   0,
				"current_round":  0,
				"turn_time_left": 0,
				"active_loop_id": "",
				"last_word":      game.LastWord,
			}).Error
	})
	if err != nil {
		return err
	}
	s.logger.Info("game restarted", zap.String("game_id", gameID))
	s.broadcastLobby(eventGameCreated, game)
	s.broadcastGameUpdated(game)
	return nil
}

// finishGame marks the game FINISHED, crowns the leaderboard leader, and
// invalidates the timer loop token.
func finishGame(tx *gorm.DB, game *db.Game) error {
	game.Status = db.StatusFinished
	game.ActiveLoopID = ""
	if err := tx.Model(&db.Player{}).Where("game_id = ?", game.ID).
		Update("is_current", false).Error; err != nil {
		return err
	}
	entries, err := leaderboard(tx, game)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		if err := setWinner(tx, game, entries[0].Player.ID); err != nil {
			return err
		}
	}
	return tx.Model(&db.Game{}).Where("id = ?", game.ID).
		Updates(map[string]any{
			"status":         game.Status,
			"active_loop_id": "",
		}).Error
}

func deleteGame(tx *gorm.DB, game *db.Game) error {
	if err := tx.Delete(&db.Player{}, "game_id = ?", game.ID).Error; err != nil {
		return err
	}
	if err := tx.Delete(&db.GameWord{}, "game_id = ?", game.ID).Error; err != nil {
		return err
	}
	if err := tx.Delete(&db.Event{}, "game_id = ?", game.ID).Error; err != nil {
		return err
	}
	if err := tx.Delete(&db.Game{}, "id = ?", game.ID).Error; err != nil {
		return err
	}
	return tx.Delete(&db.GameSettings{}, "id = ?", game.SettingsID).Error
}

// recalculateHost promotes the earliest joined player when the game has no
// host. Join order breaks ties deterministically. Returns the promoted
// player, or nil when a host was already present.
func recalculateHost(tx *gorm.DB, game *db.Game) (*db.Player, error) {
	host, err := gameHost(tx, game)
	if err != nil {
		return nil, err
	}
	if host != nil {
		return nil, nil
	}
	var first db.Player
	err = tx.Where("game_id = ? AND type <> ?", game.ID, db.PlayerTypeSpectator).
		Order("created_at").First(&first).Error
	if err != nil {
		return nil, errInvalidState("cannot recalculate host when there are no players")
	}
	if err := tx.Model(&db.Player{}).Where("id = ?", first.ID).
		Update("is_host", true).Error; err != nil {
		return nil, err
	}
	first.IsHost = true
	return &first, nil
}

// calculateCurrentPlayer picks the player at index currentTurn mod
// playerCount, skipping over disconnected players.
func (s *Server) calculateCurrentPlayer(tx *gorm.DB, game *db.Game) error {
	players, err := gamePlayers(tx, game)
	if err != nil {
		return err
	}
	switch len(players) {
	case 0:
		return errInvalidState("cannot calculate current player when there are no players")
	case 1:
		return errInvalidState("cannot calculate current player when there is only 1 player")
	}
	next := players[game.CurrentTurn%len(players)]
	if !next.IsConnected {
		return s.skipTurn(tx, game)
	}
	return setCurrentPlayer(tx, game, next.ID)
}

// skipTurn advances past the current player to the next connected one.
// Fails when fewer than two connected players remain; the caller decides
// whether that finishes the game.
func (s *Server) skipTurn(tx *gorm.DB, game *db.Game) error {
	players, err := gamePlayers(tx, game)
	if err != nil {
		return err
	}
	connected := 0
	for _, player := range players {
		if player.IsConnected {
			connected++
		}
	}
	if connected < 2 {
		return errInvalidState("not enough connected players to continue")
	}
	current, err := currentPlayer(tx, game)
	if err != nil {
		return err
	}
	if current == nil {
		return errInvalidState("no current player to skip")
	}
	position := -1
	for i, player := range players {
		if player.ID == current.ID {
			position = i
			break
		}
	}
	if position < 0 {
		return errInvalidState("current player is not in the turn order")
	}
	for i := 1; i <= len(players); i++ {
		candidate := players[(position+i)%len(players)]
		if candidate.IsConnected {
			return setCurrentPlayer(tx, game, candidate.ID)
		}
	}
	return errInvalidState("not enough connected players to continue")
}

// shufflePlayerOrder assigns order indices 0..n-1 by Fisher-Yates over the
// injected random source, so every permutation is equally likely and tests
// can fix the seed.
func (s *Server) shufflePlayerOrder(tx *gorm.DB, players []db.Player) error {
	s.rngMu.Lock()
	s.rng.Shuffle(len(players), func(i, j int) {
		players[i], players[j] = players[j], players[i]
	})
	s.rngMu.Unlock()
	for index := range players {
		order := index
		players[index].TurnOrder = &order
		if err := tx.Model(&db.Player{}).Where("id = ?", players[index].ID).
			Update("turn_order", order).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) randomLetter() string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return randomLetter(s.rng)
}
