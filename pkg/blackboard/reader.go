package blackboard

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Reader is a read-only port of a store. Any number of EntryHandles may be
// acquired through it, for the same or different entries, and they all stay
// valid after the reader port is closed: only the capacity slot is returned,
// the mapped cells live on.
type Reader struct {
	id    uuid.UUID
	store *Store
	seg   *segment
	table *entryTable
	slot  int

	mu     sync.Mutex
	closed bool
}

// NewReader creates a reader port. Fails with ErrReaderSlotExhausted when
// all max_readers slots are claimed; a slot frees up when a reader port is
// closed or the cleanup collaborator releases it.
func (s *Store) NewReader() (*Reader, error) {
	slot, ok := s.claimBit(s.layout.readerBitsOffset(), s.layout.maxReaders)
	if !ok {
		return nil, ErrReaderSlotExhausted
	}
	s.seg.retain()
	return &Reader{
		id:    uuid.New(),
		store: s,
		seg:   s.seg,
		table: s.table,
		slot:  slot,
	}, nil
}

// ID returns the unique ID of this reader port.
func (r *Reader) ID() uuid.UUID {
	return r.id
}

// Slot returns the reader capacity slot this port occupies, for the cleanup
// collaborator.
func (r *Reader) Slot() int {
	return r.slot
}

// Entry acquires a read handle for a key. The value type descriptor is
// validated once, here; the handle binds the resolved EntryID and never
// re-validates. Handles are not exclusive: any number may coexist per entry,
// across ports and processes.
func (r *Reader) Entry(key []byte, valueType TypeDescriptor) (*EntryHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrPortClosed
	}
	id, err := r.table.find(key, valueType)
	if err != nil {
		return nil, fmt.Errorf("unable to create entry handle: %w", err)
	}
	r.seg.retain()
	return &EntryHandle{
		entryID: id,
		cell:    r.table.cell(id),
		seg:     r.seg,
	}, nil
}

// Close releases the reader capacity slot. Safe to call multiple times.
// Outstanding entry handles stay valid.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.store.ReleasePort(PortKindReader, r.slot); err != nil {
		return err
	}
	return r.seg.release()
}

// EntryHandle is the reader-side accessor for one entry.
type EntryHandle struct {
	entryID EntryID
	cell    cell

	seg       *segment
	closeOnce sync.Once
}

// EntryID returns the entry this handle is bound to. The ID is stable for
// the store's lifetime and can key an external notification mechanism.
func (h *EntryHandle) EntryID() EntryID {
	return h.entryID
}

// Get returns a snapshot of the entry's committed value. It never blocks:
// if the writer publishes mid-copy the read is retried, so the returned
// bytes are always a single committed value, never a torn mix of two.
func (h *EntryHandle) Get() Snapshot {
	value := make([]byte, h.cell.size)
	version := h.cell.read(value)
	return Snapshot{value: value, version: version}
}

// IsUpToDate reports whether no commit has happened to this entry since the
// snapshot was taken. It never reads the value, only the version counter, so
// it is the cheap way to poll for changes.
func (h *EntryHandle) IsUpToDate(s Snapshot) bool {
	return h.cell.committedVersion() == s.version
}

// Close drops the handle's segment reference. The handle must not be used
// afterwards. Safe to call multiple times.
func (h *EntryHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.seg.release()
	})
	return err
}
