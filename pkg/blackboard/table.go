package blackboard

import (
	"fmt"
	"sync/atomic"
)

// entryTable is the in-process view over the segment's fixed-stride record
// array. Membership is written once, during initTable, and read-only
// afterwards, so lookups need no synchronization.
type entryTable struct {
	seg    *segment
	layout layout
	key    KeyDescriptor
}

// initTable lays the entry records out in a fresh segment. The entry list
// has already been validated (non-empty, no duplicates, sizes match); this
// runs single-threaded before the segment becomes discoverable.
func initTable(seg *segment, l layout, key KeyDescriptor, entries []EntrySpec) *entryTable {
	for i, e := range entries {
		id := EntryID(i)
		copy(seg.bytes(l.keyOffset(id), int(l.keyType.Size)), e.Key)
		encodeDescriptor(seg.bytes(l.valueTypeOffset(id), descriptorLen), e.Type)
		// Version 0 selects buffer 0 as the committed one; ftruncate zeroed
		// the counter already, so only the initial value needs writing.
		copy(seg.bytes(l.bufferOffset(id, 0), int(e.Type.Size)), e.InitialValue)
	}
	return &entryTable{seg: seg, layout: l, key: key}
}

// attachTable builds the view over an already initialized segment.
func attachTable(seg *segment, l layout, key KeyDescriptor) *entryTable {
	return &entryTable{seg: seg, layout: l, key: key}
}

// find resolves a key to its EntryID and validates the caller's value type
// descriptor against the one recorded at creation. This runs once per handle
// acquisition; handles bind the EntryID and never re-validate.
func (t *entryTable) find(key []byte, valueType TypeDescriptor) (EntryID, error) {
	if uint32(len(key)) != t.layout.keyType.Size {
		return 0, fmt.Errorf("key is %d bytes, key type %q requires %d: %w",
			len(key), t.layout.keyType.Name, t.layout.keyType.Size, ErrTypeMismatch)
	}
	for i := uint32(0); i < t.layout.entryCount; i++ {
		id := EntryID(i)
		if !t.key.equal(t.keyBytes(id), key) {
			continue
		}
		recorded := t.valueType(id)
		if !recorded.Equal(valueType) {
			return 0, fmt.Errorf("entry %d holds %s, caller expects %s: %w",
				id, recorded, valueType, ErrTypeMismatch)
		}
		return id, nil
	}
	return 0, ErrKeyNotFound
}

// keyBytes returns the stored key blob for an entry. The slice aliases the
// shared segment; key fields are immutable after construction.
func (t *entryTable) keyBytes(id EntryID) []byte {
	return t.seg.bytes(t.layout.keyOffset(id), int(t.layout.keyType.Size))
}

func (t *entryTable) valueType(id EntryID) TypeDescriptor {
	return decodeDescriptor(t.seg.bytes(t.layout.valueTypeOffset(id), descriptorLen))
}

// listKeys returns a copy of every key blob in EntryID order.
func (t *entryTable) listKeys() [][]byte {
	keys := make([][]byte, 0, t.layout.entryCount)
	for i := uint32(0); i < t.layout.entryCount; i++ {
		key := make([]byte, t.layout.keyType.Size)
		copy(key, t.keyBytes(EntryID(i)))
		keys = append(keys, key)
	}
	return keys
}

func (t *entryTable) describe() []EntryDescription {
	descs := make([]EntryDescription, 0, t.layout.entryCount)
	for i := uint32(0); i < t.layout.entryCount; i++ {
		id := EntryID(i)
		key := make([]byte, t.layout.keyType.Size)
		copy(key, t.keyBytes(id))
		descs = append(descs, EntryDescription{ID: id, Key: key, Type: t.valueType(id)})
	}
	return descs
}

// cell is the live view of one entry's storage slot: the handle claim word,
// the version counter and the two value buffers. The committed buffer is
// buffers[version%2]; the writer drafts in the other one.
type cell struct {
	claim   *atomic.Uint64
	version *atomic.Uint64
	buffers [2][]byte
	size    int
}

func (t *entryTable) cell(id EntryID) cell {
	size := int(t.valueType(id).Size)
	return cell{
		claim:   t.seg.atomicU64(t.layout.claimOffset(id)),
		version: t.seg.atomicU64(t.layout.versionOffset(id)),
		buffers: [2][]byte{
			t.seg.bytes(t.layout.bufferOffset(id, 0), size),
			t.seg.bytes(t.layout.bufferOffset(id, 1), size),
		},
		size: size,
	}
}

// tryClaim takes the entry's mutation-handle flag. The flag lives in the
// shared segment, so at most one EntryHandleMut exists per entry across all
// ports and processes, including ports that have since been closed.
func (c cell) tryClaim() bool {
	return c.claim.CompareAndSwap(0, 1)
}

// unclaim returns the mutation-handle flag, making the entry acquirable.
func (c cell) unclaim() {
	c.claim.Store(0)
}

// committedVersion loads the current commit counter.
func (c cell) committedVersion() uint64 {
	return c.version.Load()
}

// draftBuffer returns the buffer the next commit will publish. Only the
// single writer holding the entry's EntryHandleMut may call this.
func (c cell) draftBuffer() []byte {
	return c.buffers[(c.version.Load()+1)%2]
}

// publish makes the draft buffer visible by advancing the version counter.
// This is the single store that constitutes a commit.
func (c cell) publish() uint64 {
	return c.version.Add(1)
}

// read copies the committed value into dst and returns the version it was
// committed under. If the version changes while copying, the writer was
// concurrently publishing; the copy is discarded and retried. The writer
// only reuses a buffer after advancing the version past it, so a torn copy
// can never pass the re-check.
func (c cell) read(dst []byte) uint64 {
	for {
		before := c.version.Load()
		copy(dst, c.buffers[before%2])
		if after := c.version.Load(); after == before {
			return before
		}
	}
}
