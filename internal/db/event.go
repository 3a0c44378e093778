package db

import (
	"time"

	"gorm.io/datatypes"
)

// Event is an append-only log row for every broadcast a game emits.
type Event struct {
	ID        uint           `gorm:"primaryKey"`
	GameID    string         `gorm:"size:5;not null;index"`
	PlayerID  *string        `gorm:"size:21;index"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
