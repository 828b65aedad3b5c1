package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrTemporary       = errors.New("temporary failure")
	ErrMalformedDOI    = errors.New("malformed doi")
	ErrTEIParse        = errors.New("tei parse error")
	ErrMissingTEIFile  = errors.New("tei xml file missing")
	ErrNoFencedBlock   = errors.New("no fenced json block found")
	ErrInvalidJSON     = errors.New("invalid json in fenced block")
	ErrUnexpectedShape = errors.New("unexpected json shape")
	ErrBatchIncomplete = errors.New("batch incomplete")
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
