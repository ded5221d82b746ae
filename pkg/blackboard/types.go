package blackboard

import (
	"bytes"
	"fmt"
)

const (
	// MaxTypeNameLen is the longest type name a descriptor can carry. Names
	// are persisted in a fixed 64-byte, NUL-padded field in the segment.
	MaxTypeNameLen = 63

	// MaxAlignment is the strictest alignment the segment layout guarantees.
	// Every record field sits on an 8-byte boundary.
	MaxAlignment = 8
)

// TypeDescriptor records the identity of a key or value type: its name, byte
// size and alignment. Two processes agree on an entry's layout exactly when
// their descriptors are equal. Descriptors travel with each call site; there
// is no process-global type registry.
type TypeDescriptor struct {
	Name      string
	Size      uint32
	Alignment uint32
}

// Validate checks that the descriptor can be persisted in a segment header.
func (d TypeDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if len(d.Name) > MaxTypeNameLen {
		return fmt.Errorf("type name %q too long: %d bytes (max: %d)", d.Name, len(d.Name), MaxTypeNameLen)
	}
	if d.Size == 0 {
		return fmt.Errorf("type %q: size must be at least 1 byte", d.Name)
	}
	if d.Alignment == 0 || d.Alignment > MaxAlignment || d.Alignment&(d.Alignment-1) != 0 {
		return fmt.Errorf("type %q: alignment must be a power of two between 1 and %d, got %d",
			d.Name, MaxAlignment, d.Alignment)
	}
	return nil
}

// Equal reports whether two descriptors denote the same type identity.
func (d TypeDescriptor) Equal(other TypeDescriptor) bool {
	return d.Name == other.Name && d.Size == other.Size && d.Alignment == other.Alignment
}

func (d TypeDescriptor) String() string {
	return fmt.Sprintf("%s (size: %d, alignment: %d)", d.Name, d.Size, d.Alignment)
}

// KeyEqualFunc compares two raw key byte blobs for equality.
type KeyEqualFunc func(a, b []byte) bool

// KeyDescriptor describes the key type of a store: its type identity plus the
// equality function used for key lookups. Only the TypeDescriptor part is
// persisted; the equality function is supplied by each process when it
// creates or opens the store. A nil Equal compares raw bytes.
type KeyDescriptor struct {
	Type  TypeDescriptor
	Equal KeyEqualFunc
}

func (k KeyDescriptor) equal(a, b []byte) bool {
	if k.Equal != nil {
		return k.Equal(a, b)
	}
	return bytes.Equal(a, b)
}

// EntryID is the stable integer index assigned to a key at table-construction
// time, in insertion order starting at 0. Handles bind to an EntryID once, at
// acquisition, and never re-resolve the key afterwards.
type EntryID uint32

// EntrySpec describes one entry in a service creation list.
type EntrySpec struct {
	// Key is the raw key value; its length must equal the key type's size.
	Key []byte

	// Type describes the entry's value type.
	Type TypeDescriptor

	// InitialValue is the value readers observe before the first commit; its
	// length must equal Type.Size.
	InitialValue []byte
}

// EntryDescription is the introspection view of one entry: its ID, key blob
// and value type. Table membership never changes after construction, so a
// description obtained at any time stays accurate for the store's lifetime.
type EntryDescription struct {
	ID   EntryID
	Key  []byte
	Type TypeDescriptor
}

// Snapshot is an immutable, byte-exact copy of an entry's committed value
// together with the version under which it was observed. Pass it back to
// EntryHandle.IsUpToDate to detect changes without re-reading the value.
type Snapshot struct {
	value   []byte
	version uint64
}

// Bytes returns the copied value. The slice is owned by the snapshot; it is
// never aliased by the shared segment.
func (s Snapshot) Bytes() []byte {
	return s.value
}

// Version returns the commit counter observed for this value.
func (s Snapshot) Version() uint64 {
	return s.version
}

// PortKind distinguishes the capacity pools a port slot can belong to.
type PortKind int

const (
	// PortKindWriter is the single-slot writer pool.
	PortKindWriter PortKind = iota
	// PortKindReader is the max_readers-slot reader pool.
	PortKindReader
	// PortKindNode is the max_nodes-slot pool of attached store handles.
	PortKindNode
)

func (k PortKind) String() string {
	switch k {
	case PortKindWriter:
		return "writer"
	case PortKindReader:
		return "reader"
	case PortKindNode:
		return "node"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

func validateEntrySpecs(key KeyDescriptor, entries []EntrySpec) error {
	if len(entries) == 0 {
		return ErrEmptyTable
	}
	for i, e := range entries {
		if err := e.Type.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if uint32(len(e.Key)) != key.Type.Size {
			return fmt.Errorf("entry %d: key is %d bytes, key type %q requires %d: %w",
				i, len(e.Key), key.Type.Name, key.Type.Size, ErrTypeMismatch)
		}
		if uint32(len(e.InitialValue)) != e.Type.Size {
			return fmt.Errorf("entry %d: initial value is %d bytes, value type %q requires %d: %w",
				i, len(e.InitialValue), e.Type.Name, e.Type.Size, ErrTypeMismatch)
		}
	}
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			if key.equal(entries[i].Key, entries[j].Key) {
				return fmt.Errorf("entries %d and %d: %w", i, j, ErrDuplicateKey)
			}
		}
	}
	return nil
}
