package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgconn"
	"gorm.io/gorm"
)

// Kind classifies a failed game operation so the API layer can pick a
// response status without inspecting message strings.
type Kind int

const (
	// KindInvalidState means the operation is not legal for the game's
	// current status.
	KindInvalidState Kind = iota
	// KindForbidden means the caller lacks the required role.
	KindForbidden
	// KindValidation means a word or input broke a content rule.
	KindValidation
	// KindConflict means a uniqueness constraint was violated.
	KindConflict
	// KindNotFound means the game or player does not exist.
	KindNotFound
)

type gameError struct {
	kind   Kind
	reason string
}

func (e *gameError) Error() string {
	return e.reason
}

func errInvalidState(format string, args ...any) error {
	return &gameError{kind: KindInvalidState, reason: fmt.Sprintf(format, args...)}
}

func errForbidden(format string, args ...any) error {
	return &gameError{kind: KindForbidden, reason: fmt.Sprintf(format, args...)}
}

func errValidation(format string, args ...any) error {
	return &gameError{kind: KindValidation, reason: fmt.Sprintf(format, args...)}
}

func errConflict(format string, args ...any) error {
	return &gameError{kind: KindConflict, reason: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) error {
	return &gameError{kind: KindNotFound, reason: fmt.Sprintf(format, args...)}
}

// errKind reports the classification of err, or false for plain errors
// (storage failures and the like).
func errKind(err error) (Kind, bool) {
	var ge *gameError
	if errors.As(err, &ge) {
		return ge.kind, true
	}
	return 0, false
}

func isKind(err error, kind Kind) bool {
	got, ok := errKind(err)
	return ok && got == kind
}

// isExpectedStateError reports whether err is a normal outcome of the game
// state machine rather than a storage or programming failure.
func isExpectedStateError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true
	}
	_, ok := errKind(err)
	return ok
}

func statusForError(err error) int {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	kind, ok := errKind(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
