package repl

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionTerminated is returned to every call that cannot complete because
	// the subprocess is gone (spawn failure, crash, quit or Close).
	ErrSessionTerminated = errors.New("repl session terminated")

	// ErrCommandTimeout marks a command that did not produce its prompt within
	// Options.CommandTimeout. The session is poisoned afterwards.
	ErrCommandTimeout = errors.New("repl command timed out")

	// ErrQuit is the termination reason after an orderly Quit.
	ErrQuit = errors.New("repl session quit")

	// ErrClosed is the termination reason after Close.
	ErrClosed = errors.New("repl session closed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("repl session already started")
)

func terminatedError(reason error) error {
	if reason == nil || errors.Is(reason, ErrSessionTerminated) {
		return ErrSessionTerminated
	}
	return fmt.Errorf("%w: %w", ErrSessionTerminated, reason)
}
