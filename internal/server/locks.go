package server

import "sync"

// gameLocks serializes all state-machine operations per game id.
type gameLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newGameLocks() *gameLocks {
	return &gameLocks{locks: make(map[string]*sync.Mutex)}
}

func (g *gameLocks) Lock(gameID string) func() {
	g.mu.Lock()
	lock, ok := g.locks[gameID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[gameID] = lock
	}
	g.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}
