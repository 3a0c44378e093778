package server

import (
	"testing"
	"time"

	"shiritori/internal/db"
)

func TestStartTurnLoopClaimsOnce(t *testing.T) {
	srv := newTestSrv(t)
	game := setupPlayingGame(t, srv, "Ada", "Ben")

	token := loadGame(t, srv, game.ID).ActiveLoopID
	if token == "" {
		t.Fatal("expected loop token after start")
	}

	// A second claim must not displace the running loop.
	srv.startTurnLoop(game.ID)
	if again := loadGame(t, srv, game.ID).ActiveLoopID; again != token {
		t.Fatalf("expected token %q to survive, got %q", token, again)
	}
}

func TestStartTurnLoopIgnoresNonPlayingGame(t *testing.T) {
	srv := newTestSrv(t)
	game := createTestGame(t, srv)
	joinTestPlayer(t, srv, game.ID, "Ada", "sess-ada")

	srv.startTurnLoop(game.ID)
	if token := loadGame(t, srv, game.ID).ActiveLoopID; token != "" {
		t.Fatalf("expected no loop for waiting game, got token %q", token)
	}
}

func TestDecrementTurnTimeGuardedByToken(t *testing.T) {
	srv := newTestSrv(t)
	game := setupPlayingGame(t, srv, "Ada", "Ben")
	token := loadGame(t, srv, game.ID).ActiveLoopID
	before := loadGame(t, srv, game.ID).TurnTimeLeft

	if err := srv.decrementTurnTime(game.ID, "stale-token"); err != nil {
		t.Fatalf("decrement with stale token: %v", err)
	}
	if after := loadGame(t, srv, game.ID).TurnTimeLeft; after != before {
		t.Fatalf("expected stale token to be a no-op, got %d -> %d", before, after)
	}

	if err := srv.decrementTurnTime(game.ID, token); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if after := loadGame(t, srv, game.ID).TurnTimeLeft; after != before-1 {
		t.Fatalf("expected clock %d, got %d", before-1, after)
	}
}

func TestDecrementTurnTimeStopsAtZero(t *testing.T) {
	srv := newTestSrv(t)
	game := setupPlayingGame(t, srv, "Ada", "Ben")
	token := loadGame(t, srv, game.ID).ActiveLoopID

	if err := srv.db.Model(&db.Game{}).Where("id = ?", game.ID).
		Update("turn_time_left", 0).Error; err != nil {
		t.Fatalf("zero clock: %v", err)
	}
	if err := srv.decrementTurnTime(game.ID, token); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if left := loadGame(t, srv, game.ID).TurnTimeLeft; left != 0 {
		t.Fatalf("expected clock to stay at 0, got %d", left)
	}
}

func TestReleaseTurnLoopOnlyForOwner(t *testing.T) {
	srv := newTestSrv(t)
	game := setupPlayingGame(t, srv, "Ada", "Ben")
	token := loadGame(t, srv, game.ID).ActiveLoopID

	srv.releaseTurnLoop(game.ID, "stale-token")
	if got := loadGame(t, srv, game.ID).ActiveLoopID; got != token {
		t.Fatalf("expected stale release to be a no-op, got %q", got)
	}

	srv.releaseTurnLoop(game.ID, token)
	if got := loadGame(t, srv, game.ID).ActiveLoopID; got != "" {
		t.Fatalf("expected token cleared, got %q", got)
	}
}

func TestFinishInvalidatesTimerLoopToken(t *testing.T) {
	srv := newTestSrv(t)
	game := setupPlayingGame(t, srv, "Ada", "Ben")
	token := loadGame(t, srv, game.ID).ActiveLoopID

	if err := srv.LeaveGame(game.ID, "sess-ada"); err != nil {
		t.Fatalf("leave game: %v", err)
	}
	loaded := loadGame(t, srv, game.ID)
	if loaded.Status != db.StatusFinished {
		t.Fatalf("expected FINISHED, got %s", loaded.Status)
	}
	if loaded.ActiveLoopID == token {
		t.Fatal("expected loop token invalidated by finish")
	}
	if err := srv.decrementTurnTime(game.ID, token); err != nil {
		t.Fatalf("decrement: %v", err)
	}
}

func TestReconnectRestartsStalledTurnLoop(t *testing.T) {
	srv := newTestSrv(t)
	game := setupPlayingGame(t, srv, "Ada", "Ben")

	// Everyone drops, the clock runs out, and the loop gives up.
	if err := srv.db.Model(&db.Player{}).Where("game_id = ?", game.ID).
		Update("is_connected", false).Error; err != nil {
		t.Fatalf("disconnect players: %v", err)
	}
	if err := srv.db.Model(&db.Game{}).Where("id = ?", game.ID).
		Updates(map[string]any{"turn_time_left": 0, "active_loop_id": ""}).Error; err != nil {
		t.Fatalf("stall game: %v", err)
	}

	if _, _, err := srv.setPlayerConnected(game.ID, "sess-ben", true); err != nil {
		t.Fatalf("reconnect ben: %v", err)
	}
	srv.resolveConnect(game.ID, "sess-ada")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		loaded := loadGame(t, srv, game.ID)
		if loaded.CurrentTurn > 0 && loaded.TurnTimeLeft > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected reconnect to drive the stalled game forward")
}
