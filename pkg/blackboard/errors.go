package blackboard

import "errors"

// Error taxonomy for the blackboard core. All of these are local, synchronous
// and recoverable: a failed create/open/acquire leaves the store exactly as
// it was. Callers are expected to branch on them (retry an open as a create,
// wait and retry port creation, ...) rather than abort.
var (
	// ErrEmptyTable is returned when a service is created with no entries.
	ErrEmptyTable = errors.New("entry table must contain at least one entry")

	// ErrDuplicateKey is returned when two entries in a creation list compare
	// equal under the key type's equality function.
	ErrDuplicateKey = errors.New("duplicate key in entry table")

	// ErrServiceExists is returned by Create when the service name is taken.
	ErrServiceExists = errors.New("service already exists")

	// ErrServiceNotFound is returned by Open when the service name is unknown.
	ErrServiceNotFound = errors.New("service does not exist")

	// ErrKeyNotFound is returned by handle acquisition when no entry matches
	// the given key.
	ErrKeyNotFound = errors.New("no entry with the given key")

	// ErrTypeMismatch is returned when a caller's key or value type descriptor
	// does not match the one recorded at service creation.
	ErrTypeMismatch = errors.New("type descriptor mismatch")

	// ErrInsufficientCapacity is returned by Open when the existing store was
	// created with less reader or node capacity than the caller requires.
	ErrInsufficientCapacity = errors.New("store capacity smaller than required")

	// ErrHandleAlreadyExists is returned when a second EntryHandleMut is
	// requested for an entry that is already on loan to one.
	ErrHandleAlreadyExists = errors.New("entry handle already exists for this entry")

	// ErrWriterSlotExhausted is returned by NewWriter while another writer
	// port is alive.
	ErrWriterSlotExhausted = errors.New("writer slot already in use")

	// ErrReaderSlotExhausted is returned by NewReader when all reader slots
	// are in use.
	ErrReaderSlotExhausted = errors.New("all reader slots in use")

	// ErrNodeSlotExhausted is returned by Create/Open when all node slots are
	// in use.
	ErrNodeSlotExhausted = errors.New("all node slots in use")

	// ErrAlreadyLoaned is returned when an entry is loaned or updated while a
	// previous loan is still outstanding.
	ErrAlreadyLoaned = errors.New("entry already has an outstanding loan")

	// ErrLoanConsumed is returned when a loan is used after Update or Discard.
	ErrLoanConsumed = errors.New("loan has already been consumed")

	// ErrPortClosed is returned when a closed port is asked for a new handle.
	ErrPortClosed = errors.New("port has been closed")

	// ErrHandleReleased is returned when a released EntryHandleMut is used.
	ErrHandleReleased = errors.New("entry handle has been released")
)

// IsNotFound returns true if the error means "the thing you named does not
// exist": an unknown service name or an unknown entry key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrServiceNotFound) || errors.Is(err, ErrKeyNotFound)
}

// IsCapacityExhausted returns true if the error is one of the slot-exhaustion
// conditions. These are the errors worth retrying after another process
// releases a port.
func IsCapacityExhausted(err error) bool {
	return errors.Is(err, ErrWriterSlotExhausted) ||
		errors.Is(err, ErrReaderSlotExhausted) ||
		errors.Is(err, ErrNodeSlotExhausted)
}
