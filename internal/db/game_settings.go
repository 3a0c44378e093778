package db

import "time"

const (
	DefaultLocale     = "en"
	DefaultWordLength = 3
	DefaultTurnTime   = 60
	DefaultMaxTurns   = 10
)

// GameSettings is owned 1:1 by a Game and is created with defaults when a
// game is saved without one.
type GameSettings struct {
	ID         string    `gorm:"primaryKey;size:21"`
	Locale     string    `gorm:"size:10;not null;default:en"`
	WordLength int       `gorm:"not null;default:3"`
	TurnTime   int       `gorm:"not null;default:60"`
	MaxTurns   int       `gorm:"not null;default:10"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func DefaultSettings() GameSettings {
	return GameSettings{
		Locale:     DefaultLocale,
		WordLength: DefaultWordLength,
		TurnTime:   DefaultTurnTime,
		MaxTurns:   DefaultMaxTurns,
	}
}
