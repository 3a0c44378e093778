package server

import (
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"shiritori/internal/config"
)

type Server struct {
	db       *gorm.DB
	cfg      config.Config
	logger   *zap.Logger
	ws       *wsHub
	lobby    *lobbyHub
	sessions *sessionStore
	locks    *gameLocks
	events   *eventLog

	rngMu sync.Mutex
	rng   *rand.Rand

	// loopWG tracks running turn loops so tests can wait for them to drain.
	loopWG sync.WaitGroup

	removalsMu sync.Mutex
	removals   map[string]*time.Timer

	countdownsMu sync.Mutex
	countdowns   map[string]struct{}
}

func New(conn *gorm.DB, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		db:         conn,
		cfg:        cfg,
		logger:     logger,
		ws:         newWSHub(),
		lobby:      newLobbyHub(),
		sessions:   newSessionStore(),
		locks:      newGameLocks(),
		events:     &eventLog{db: conn, logger: logger},
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		removals:   make(map[string]*time.Timer),
		countdowns: make(map[string]struct{}),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games", s.handleListGames)
	mux.HandleFunc("GET /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("POST /api/games/", s.handleGameSubroutes)
	mux.HandleFunc("POST /api/dictionaries/", s.handleLoadDictionary)
	mux.HandleFunc("GET /ws/games/", s.handleGameWebsocket)
	mux.HandleFunc("GET /ws/lobby", s.handleLobbyWebsocket)
	return mux
}

// Wait blocks until every turn loop has exited. Used on shutdown and in
// tests that need timer side effects settled.
func (s *Server) Wait() {
	s.loopWG.Wait()
}
