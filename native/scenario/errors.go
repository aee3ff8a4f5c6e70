package scenario

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrInvalidActor    = errors.New("scenario: actor address must not be zero")
	ErrInvalidAsset    = errors.New("scenario: asset address must not be zero")
	ErrInvalidAmount   = errors.New("scenario: amount must be positive")
	ErrNoScripts       = errors.New("scenario: at least one script required")
	ErrNotFound        = errors.New("scenario: unknown scenario id")
	ErrNotActor        = errors.New("scenario: caller is not the designated actor")
	ErrInvalidScript   = errors.New("scenario: script index out of range")
	ErrExecutionPaused = errors.New("scenario: execution paused")
	ErrNoValidSources  = errors.New("scenario: no source validated")
	ErrNonZeroResidue  = errors.New("scenario: action chain left a non-zero balance")
	ErrNotManager      = errors.New("scenario: caller is not the manager")
	ErrSourceUnbound   = errors.New("scenario: no validator bound for address")
	ErrExecutorUnbound = errors.New("scenario: no executor bound for address")
	ErrReentrantCall   = errors.New("scenario: reentrant engine call")
)

// InvalidSourceError reports a scenario submission referencing a source
// validator absent from the trusted registry.
type InvalidSourceError struct {
	Addr [20]byte
}

func (e *InvalidSourceError) Error() string {
	return fmt.Sprintf("scenario: source validator %s not registered", hex.EncodeToString(e.Addr[:]))
}

// InvalidExecutorError reports a scenario submission referencing an action
// executor absent from the trusted registry.
type InvalidExecutorError struct {
	Addr [20]byte
}

func (e *InvalidExecutorError) Error() string {
	return fmt.Sprintf("scenario: action executor %s not registered", hex.EncodeToString(e.Addr[:]))
}

// SourceValidationError attributes a trigger validation failure to the first
// failing validator under the ALL trigger mode.
type SourceValidationError struct {
	Addr [20]byte
	Err  error
}

func (e *SourceValidationError) Error() string {
	return fmt.Sprintf("scenario: source %s validation failed: %v", hex.EncodeToString(e.Addr[:]), e.Err)
}

func (e *SourceValidationError) Unwrap() error { return e.Err }

// ActionExecutionError attributes an action chain failure to the executor
// whose transfer or execute call failed.
type ActionExecutionError struct {
	Addr [20]byte
	Err  error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("scenario: action executor %s failed: %v", hex.EncodeToString(e.Addr[:]), e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }
