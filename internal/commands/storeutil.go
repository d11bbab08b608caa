package commands

import (
	"errors"
	"log/slog"

	"github.com/dotcommander/threadstore/internal/app"
	"github.com/dotcommander/threadstore/internal/models"
	"github.com/dotcommander/threadstore/internal/output"
	"github.com/dotcommander/threadstore/pkg/kv"
)

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// Intentionally hide the original error: the JSON error response is the output.
	return "error already printed"
}

func (e printedError) Unwrap() error { return e.err }

// withStore runs fn against the process-wide store. Execute shuts it down
// on exit.
func withStore(fn func(s kv.Store) error) error {
	s, err := app.Storage(slog.Default())
	if err != nil {
		return cmdErr(err)
	}
	if err := fn(s); err != nil {
		return cmdErr(err)
	}
	return nil
}

// cmdErr logs err, prints it as the JSON error response and marks it as
// printed so Execute does not log it again.
func cmdErr(err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"error", err.Error()}
	var re models.RecoverableError
	if errors.As(err, &re) {
		attrs = append(attrs, "error_code", re.ErrorCode())
	}
	slog.Error("command error", attrs...)
	_ = output.PrintError(err)
	return printedError{err: err}
}
