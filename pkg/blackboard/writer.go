package blackboard

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Writer is the single mutator port of a store. It issues EntryHandleMut
// handles, at most one per entry at a time; the claim is recorded in the
// shared segment, so it binds every port and process, not just this one.
// Closing the writer returns its capacity slot but does not invalidate
// handles it already issued; they keep operating on the shared cells, which
// outlive the port lease.
type Writer struct {
	id    uuid.UUID
	store *Store
	seg   *segment
	table *entryTable

	mu     sync.Mutex
	closed bool
}

// NewWriter creates the writer port. The writer capacity is exactly one;
// while a writer port is alive every further call fails with
// ErrWriterSlotExhausted, and succeeds again once it is closed.
func (s *Store) NewWriter() (*Writer, error) {
	if !s.claimWriterSlot() {
		return nil, ErrWriterSlotExhausted
	}
	s.seg.retain()
	return &Writer{
		id:    uuid.New(),
		store: s,
		seg:   s.seg,
		table: s.table,
	}, nil
}

// ID returns the unique ID of this writer port.
func (w *Writer) ID() uuid.UUID {
	return w.id
}

// Slot returns the capacity slot this port occupies, for the cleanup
// collaborator. The writer pool has a single slot.
func (w *Writer) Slot() int {
	return 0
}

// Entry acquires the exclusive mutation handle for a key. The value type
// descriptor is validated against the one recorded at creation; the check
// happens here, once, and never again on the handle's hot path.
func (w *Writer) Entry(key []byte, valueType TypeDescriptor) (*EntryHandleMut, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrPortClosed
	}
	id, err := w.table.find(key, valueType)
	if err != nil {
		return nil, fmt.Errorf("unable to create entry handle: %w", err)
	}
	c := w.table.cell(id)
	if !c.tryClaim() {
		return nil, fmt.Errorf("entry %d: %w", id, ErrHandleAlreadyExists)
	}
	w.seg.retain()
	return &EntryHandleMut{
		entryID: id,
		cell:    c,
		seg:     w.seg,
	}, nil
}

// Close releases the writer capacity slot. Safe to call multiple times.
// Outstanding entry handles stay valid.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.store.ReleasePort(PortKindWriter, 0); err != nil {
		return err
	}
	return w.seg.release()
}

// EntryHandleMut is the writer-side loan state machine for one entry. It is
// either idle or holds exactly one outstanding loan; UpdateWithCopy is the
// uncontended fast path that commits without an explicit loan.
//
// The handle is exclusive: while it exists, no second EntryHandleMut can be
// acquired for the same entry, from any port in any process.
type EntryHandleMut struct {
	entryID  EntryID
	cell     cell
	seg      *segment
	loaned   atomic.Bool
	released atomic.Bool
}

// EntryID returns the entry this handle is bound to.
func (h *EntryHandleMut) EntryID() EntryID {
	return h.entryID
}

// Version returns the entry's current committed version.
func (h *EntryHandleMut) Version() uint64 {
	return h.cell.committedVersion()
}

// UpdateWithCopy copies value into the entry's draft buffer and publishes it
// in one step. Fails with ErrAlreadyLoaned while a loan is outstanding.
func (h *EntryHandleMut) UpdateWithCopy(value []byte) error {
	if h.released.Load() {
		return ErrHandleReleased
	}
	if h.loaned.Load() {
		return ErrAlreadyLoaned
	}
	if len(value) != h.cell.size {
		return fmt.Errorf("value is %d bytes, entry holds %d: %w", len(value), h.cell.size, ErrTypeMismatch)
	}
	copy(h.cell.draftBuffer(), value)
	h.cell.publish()
	return nil
}

// LoanUninit loans the entry's next value buffer for in-place writing. The
// buffer is not visible to readers until Update is called on the loan. Only
// one loan can be outstanding per handle.
func (h *EntryHandleMut) LoanUninit() (*EntryValueUninit, error) {
	if h.released.Load() {
		return nil, ErrHandleReleased
	}
	if !h.loaned.CompareAndSwap(false, true) {
		return nil, ErrAlreadyLoaned
	}
	return &EntryValueUninit{
		handle:     h,
		buf:        h.cell.draftBuffer(),
		superseded: h.cell.committedVersion(),
	}, nil
}

// Release gives up the handle's exclusivity, making the entry acquirable
// again. An outstanding loan is dead afterwards: its Write, Update and
// Discard all fail with ErrHandleReleased, so a stale loan can never publish
// into an entry a successor handle now owns. Safe to call multiple times.
func (h *EntryHandleMut) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	h.loaned.Store(false)
	h.cell.unclaim()
	return h.seg.release()
}

// EntryValueUninit is a loaned, writable-but-not-yet-committed view of an
// entry's next version. It exists between LoanUninit and Update/Discard and
// must not be used afterwards.
type EntryValueUninit struct {
	handle     *EntryHandleMut
	buf        []byte
	superseded uint64
	consumed   bool
}

// Bytes exposes the draft buffer for direct in-place mutation. The buffer is
// invisible to readers until Update.
func (v *EntryValueUninit) Bytes() []byte {
	return v.buf
}

// SupersededVersion returns the committed version this draft will replace.
func (v *EntryValueUninit) SupersededVersion() uint64 {
	return v.superseded
}

// Write copies value into the draft buffer.
func (v *EntryValueUninit) Write(value []byte) error {
	if v.handle.released.Load() {
		return ErrHandleReleased
	}
	if v.consumed {
		return ErrLoanConsumed
	}
	if len(value) != len(v.buf) {
		return fmt.Errorf("value is %d bytes, entry holds %d: %w", len(value), len(v.buf), ErrTypeMismatch)
	}
	copy(v.buf, value)
	return nil
}

// Update commits the draft: the version counter advances and readers start
// observing the new value. The loan is consumed; the returned EntryValue
// refers back to the handle so the caller can immediately loan again.
func (v *EntryValueUninit) Update() (*EntryValue, error) {
	if v.handle.released.Load() {
		return nil, ErrHandleReleased
	}
	if v.consumed {
		return nil, ErrLoanConsumed
	}
	v.consumed = true
	version := v.handle.cell.publish()
	v.handle.loaned.Store(false)
	return &EntryValue{handle: v.handle, version: version}, nil
}

// Discard abandons the draft without publishing. The version counter does
// not advance and readers keep observing the previous committed value.
func (v *EntryValueUninit) Discard() error {
	if v.handle.released.Load() {
		return ErrHandleReleased
	}
	if v.consumed {
		return ErrLoanConsumed
	}
	v.consumed = true
	v.handle.loaned.Store(false)
	return nil
}

// EntryValue is the committed view returned by Update.
type EntryValue struct {
	handle  *EntryHandleMut
	version uint64
}

// Version returns the version the commit published.
func (e *EntryValue) Version() uint64 {
	return e.version
}

// Handle returns the entry's mutation handle, for loaning again.
func (e *EntryValue) Handle() *EntryHandleMut {
	return e.handle
}
