package lifecycle

import (
	"errors"
	"fmt"

	"github.com/papercomputeco/echoes/pkg/triplet"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("triplet record not found")

// BusyError is returned when a publish is rejected because another one is in
// flight.
type BusyError struct {
	InFlight string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("publish already in progress for %s", e.InFlight)
}

// TransitionError is returned when a record's status does not allow the
// requested operation.
type TransitionError struct {
	ID   string
	From triplet.Status
	To   triplet.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("record %s cannot move from %s to %s", e.ID, e.From, e.To)
}

// LedgerError wraps a ledger failure. The record was rolled back before the
// error was returned.
type LedgerError struct {
	ID  string
	Op  string
	Err error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger %s failed for %s: %v", e.Op, e.ID, e.Err)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// WriteBackError is returned when the ledger accepted a publish but the
// resulting status could not be stored. The record stays publishing until
// Recover rolls it back; publishing it again reports exists-on-chain.
type WriteBackError struct {
	ID    string
	TxRef string
	Err   error
}

func (e *WriteBackError) Error() string {
	return fmt.Sprintf("ledger accepted %s in %s but the result was not stored: %v", e.ID, e.TxRef, e.Err)
}

func (e *WriteBackError) Unwrap() error {
	return e.Err
}

// EditError is returned when a Mutate would change a field that only
// lifecycle transitions may set, or touches a record that is not editable.
type EditError struct {
	ID     string
	Reason string
}

func (e *EditError) Error() string {
	return fmt.Sprintf("cannot edit record %s: %s", e.ID, e.Reason)
}

// DuplicateError is returned when an edit would give a record the triplet of
// another record.
type DuplicateError struct {
	ID         string
	ExistingID string
	Triplet    triplet.Triplet
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("record %s would duplicate %s (%s)", e.ID, e.ExistingID, e.Triplet)
}

// IsBusy reports whether err is, or wraps, a BusyError.
func IsBusy(err error) bool {
	var be *BusyError
	return errors.As(err, &be)
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}
