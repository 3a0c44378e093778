package db

import "time"

const (
	PlayerTypeHuman     = "HUMAN"
	PlayerTypeBot       = "BOT"
	PlayerTypeSpectator = "SPECTATOR"
	PlayerTypeWinner    = "WINNER"
)

type Player struct {
	ID          string `gorm:"primaryKey;size:21"`
	GameID      string `gorm:"size:5;not null;index;uniqueIndex:idx_players_game_name;uniqueIndex:idx_players_game_session"`
	Name        string `gorm:"size:15;not null;uniqueIndex:idx_players_game_name"`
	Type        string `gorm:"size:25;not null;default:HUMAN;index"`
	IsCurrent   bool   `gorm:"not null;default:false"`
	IsHost      bool   `gorm:"not null;default:false"`
	IsConnected bool   `gorm:"not null;default:true"`
	SessionKey  string `gorm:"size:64;not null;uniqueIndex:idx_players_game_session"`
	// TurnOrder is assigned by shuffle when the game starts; nil before then.
	TurnOrder *int      `gorm:"index"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
	Words     []GameWord
}
