package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrOutcomeNotFound   = errors.New("outcome not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrParsing           = errors.New("parsing error")
	ErrConfiguration     = errors.New("configuration error")
	ErrSpecialistTimeout = errors.New("specialist timed out")
	ErrSpecialistFailure = errors.New("specialist failure")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsFatal reports whether err must halt processing of a document.
func IsFatal(err error) bool {
	return IsKind(err, ErrParsing) || IsKind(err, ErrConfiguration)
}
