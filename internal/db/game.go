package db

import "time"

const (
	StatusWaiting  = "WAITING"
	StatusPlaying  = "PLAYING"
	StatusFinished = "FINISHED"
)

type Game struct {
	ID           string `gorm:"primaryKey;size:5"`
	Status       string `gorm:"size:8;not null;default:WAITING;index"`
	CurrentTurn  int    `gorm:"not null;default:0"`
	CurrentRound int    `gorm:"not null;default:0"`
	TurnTimeLeft int    `gorm:"not null;default:0"`
	LastWord     string `gorm:"size:255"`
	// ActiveLoopID is the token of the timer loop that currently owns this
	// game. Empty when no loop is running.
	ActiveLoopID string        `gorm:"size:64"`
	SettingsID   string        `gorm:"size:21"`
	Settings     *GameSettings `gorm:"foreignKey:SettingsID"`
	CreatedAt    time.Time     `gorm:"not null"`
	UpdatedAt    time.Time     `gorm:"not null"`
	Players      []Player      `gorm:"constraint:OnDelete:CASCADE"`
	Words        []GameWord    `gorm:"constraint:OnDelete:CASCADE"`
	Events       []Event       `gorm:"constraint:OnDelete:CASCADE"`
}
