package server

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"shiritori/internal/db"
)

const (
	maxPlayerNameLength = 15
	maxWordLength       = 50
)

var validate = validator.New()

// SettingsInput carries the optional settings fields from game creation
// and the host's start request. Nil fields keep their current value.
type SettingsInput struct {
	Locale     *string `json:"locale" validate:"omitempty,oneof=en de es fr it ja"`
	WordLength *int    `json:"word_length" validate:"omitempty,min=3,max=5"`
	TurnTime   *int    `json:"turn_time" validate:"omitempty,min=5,max=120"`
	MaxTurns   *int    `json:"max_turns" validate:"omitempty,min=5,max=20"`
}

func (in *SettingsInput) apply(settings *db.GameSettings) error {
	if in == nil {
		return nil
	}
	if err := validate.Struct(in); err != nil {
		return errValidation("invalid settings: %v", err)
	}
	if in.Locale != nil {
		settings.Locale = *in.Locale
	}
	if in.WordLength != nil {
		settings.WordLength = *in.WordLength
	}
	if in.TurnTime != nil {
		settings.TurnTime = *in.TurnTime
	}
	if in.MaxTurns != nil {
		settings.MaxTurns = *in.MaxTurns
	}
	return nil
}

type playerNameInput struct {
	Name string `validate:"required,alphanum,max=15"`
}

// validatePlayerName trims and checks a join name. Names are alphanumeric
// and at most 15 characters.
func validatePlayerName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := validate.Struct(playerNameInput{Name: trimmed}); err != nil {
		return "", errValidation("name must be 1-%d alphanumeric characters", maxPlayerNameLength)
	}
	return trimmed, nil
}
