package db

import "time"

// GameWord records one completed turn. Word is nil for a timed-out turn
// with no submission. A player deletion leaves the word behind with a nil
// player reference.
type GameWord struct {
	ID       string  `gorm:"primaryKey;size:21"`
	GameID   string  `gorm:"size:5;not null;index;uniqueIndex:idx_game_words_game_word"`
	PlayerID *string `gorm:"size:21;index;constraint:OnDelete:SET NULL"`
	Word     *string `gorm:"size:255;uniqueIndex:idx_game_words_game_word"`
	Score    float64 `gorm:"not null;default:0"`
	Duration float64 `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"not null;index"`
}
