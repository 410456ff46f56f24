package main

import (
	"errors"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/locking"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK             = 0
	exitValidation     = 2
	exitUsage          = 3
	exitDB             = 4
	exitDBWrite        = 5
	exitPermission     = 6
	exitNeedsAttention = 7
	exitLocked         = 8
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// classify maps engine errors to exit codes.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrPermissionDenied):
		return withCode(exitPermission, err)
	case errors.Is(err, domain.ErrInvalidPlan), errors.Is(err, domain.ErrNoParsableFiles), errors.Is(err, domain.ErrMalformedInput):
		return withCode(exitValidation, err)
	case errors.Is(err, locking.ErrLocked):
		return withCode(exitLocked, err)
	case errors.Is(err, domain.ErrTransientStore):
		return withCode(exitDBWrite, err)
	default:
		return withCode(1, err)
	}
}
