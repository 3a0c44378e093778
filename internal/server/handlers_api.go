package server

import (
	"bufio"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type createGameRequest struct {
	Settings *SettingsInput `json:"settings"`
}

type joinGameRequest struct {
	Name string `json:"name"`
}

type startGameRequest struct {
	Settings *SettingsInput `json:"settings"`
}

type takeTurnRequest struct {
	Word string `json:"word"`
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if r.ContentLength != 0 {
		if err := readJSON(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	game, err := s.CreateGame(req.Settings)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	view, err := s.snapshotGame(game.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	views, err := s.snapshotWaitingGames()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list games")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": views})
}

func (s *Server) handleGameSubroutes(w http.ResponseWriter, r *http.Request) {
	gameID, action, ok := parseGamePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method == http.MethodGet {
		if action != "" {
			http.NotFound(w, r)
			return
		}
		s.handleGetGame(w, r, gameID)
		return
	}
	switch action {
	case "join":
		s.handleJoinGame(w, r, gameID)
	case "start":
		s.handleStartGame(w, r, gameID)
	case "turn":
		s.handleTakeTurn(w, r, gameID)
	case "leave":
		s.handleLeaveGame(w, r, gameID)
	case "restart":
		s.handleRestartGame(w, r, gameID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request, gameID string) {
	view, err := s.snapshotGame(gameID)
	if err != nil {
		writeError(w, statusForError(err), "game not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleJoinGame(w http.ResponseWriter, r *http.Request, gameID string) {
	var req joinGameRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionKey := s.sessions.EnsureKey(w, r)
	player, err := s.JoinGame(gameID, req.Name, sessionKey)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, playerPayload(player))
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request, gameID string) {
	var req startGameRequest
	if r.ContentLength != 0 {
		if err := readJSON(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	sessionKey := s.sessions.Key(r)
	if err := s.RequestStart(gameID, sessionKey, req.Settings); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
}

func (s *Server) handleTakeTurn(w http.ResponseWriter, r *http.Request, gameID string) {
	var req takeTurnRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionKey := s.sessions.Key(r)
	if sessionKey == "" {
		writeError(w, http.StatusForbidden, "no session")
		return
	}
	if err := s.TakeTurn(gameID, sessionKey, req.Word); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	view, err := s.snapshotGame(gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLeaveGame(w http.ResponseWriter, r *http.Request, gameID string) {
	sessionKey := s.sessions.Key(r)
	if sessionKey == "" {
		writeError(w, http.StatusForbidden, "no session")
		return
	}
	if err := s.LeaveGame(gameID, sessionKey); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleRestartGame(w http.ResponseWriter, r *http.Request, gameID string) {
	sessionKey := s.sessions.Key(r)
	if err := s.RestartGame(gameID, sessionKey); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	view, err := s.snapshotGame(gameID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleLoadDictionary ingests a newline-separated word list for a locale.
func (s *Server) handleLoadDictionary(w http.ResponseWriter, r *http.Request) {
	locale, ok := strings.CutPrefix(r.URL.Path, "/api/dictionaries/")
	locale = strings.TrimSuffix(locale, "/")
	if !ok || locale == "" || strings.Contains(locale, "/") {
		http.NotFound(w, r)
		return
	}

	words := make([]string, 0, 1024)
	scanner := bufio.NewScanner(r.Body)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			words = append(words, line)
		}
	}
	if err := scanner.Err(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid word list")
		return
	}
	inserted, err := s.LoadDictionary(locale, words)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	s.logger.Info("dictionary loaded",
		zap.String("locale", locale), zap.Int("inserted", inserted))
	writeJSON(w, http.StatusOK, map[string]any{"locale": locale, "inserted": inserted})
}

// parseGamePath splits /api/games/{id} and /api/games/{id}/{action}.
func parseGamePath(path string) (gameID, action string, ok bool) {
	rest, found := strings.CutPrefix(path, "/api/games/")
	if !found {
		return "", "", false
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], true
	default:
		return "", "", false
	}
}
