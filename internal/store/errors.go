package store

import (
	"errors"
	"strings"
)

// ErrSelfConversation is returned when a conversation is requested between
// a participant and themselves, violating invariant C1 ("exactly two
// distinct participants... no self-pairs").
var ErrSelfConversation = errors.New("store: conversation participants must be distinct")

// isConflict reports whether err looks like a SQLite busy/locked condition,
// the only class of failure this adapter treats as worth retrying.
// Grounded on shared.IsSQLiteConflictError from the ashureev-shsh-labs
// store package, which does the same substring match against the driver's
// error text (modernc.org/sqlite does not export typed sentinels for these).
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// wrappedErr tags a driver error with whether lifecycle.classifyStoreErr
// should treat it as transient. Implements the `transient` interface
// lifecycle.classifyStoreErr duck-types against.
type wrappedErr struct {
	err       error
	transient bool
}

func (e *wrappedErr) Error() string { return e.err.Error() }
func (e *wrappedErr) Unwrap() error { return e.err }
func (e *wrappedErr) Transient() bool { return e.transient }

// classify wraps a raw driver/SQL error with its retry disposition.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return &wrappedErr{err: err, transient: isConflict(err)}
}
