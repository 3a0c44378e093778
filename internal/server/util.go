package server

import (
	"crypto/rand"
	"fmt"
	mrand "math/rand"
	"time"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// gameIDLength keeps game ids short enough to share by hand.
const gameIDLength = 5

func newID(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())[:length]
	}
	for i := range buf {
		buf[i] = idAlphabet[int(buf[i])%len(idAlphabet)]
	}
	return string(buf)
}

func newGameID() string {
	return newID(gameIDLength)
}

func newEntityID() string {
	return newID(21)
}

func randomLetter(rng *mrand.Rand) string {
	return string(rune('a' + rng.Intn(26)))
}
