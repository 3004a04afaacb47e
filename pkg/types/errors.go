package types

import (
	"errors"
)

// Sentinel errors shared across the engine. Statement-level failures wrap one of
// these so callers can classify with errors.Is.
var (
	// ErrSchemaMismatch signals a row whose arity or column types disagree with the
	// declared schema. Rejected before the row enters an epoch.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnsupportedOperation signals a delete or update against an append-only table.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrTypeMismatch signals incompatible join predicate operand types, raised at
	// view creation time.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrNotFound signals a statement against a non-existent table or view.
	ErrNotFound = errors.New("not found")

	// ErrRecoveryRequired signals a change log with an uncommitted tail: the engine
	// replays committed epochs and discards the rest.
	ErrRecoveryRequired = errors.New("recovery required")
)
