package blackboard

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/google/uuid"
)

// Store is an attached blackboard service: the entry table plus the
// writer/reader/node capacity accounting, all resident in one shared
// segment. A Store is itself a node-slot lease; Close releases the slot.
//
// Closing the store never invalidates ports or entry handles that were
// issued from it. Each of them keeps the segment mapped on its own.
type Store struct {
	name     string
	nodeID   uuid.UUID
	seg      *segment
	layout   layout
	table    *entryTable
	nodeSlot int

	mu     sync.Mutex
	closed bool
}

// Name returns the service name this store is attached to.
func (s *Store) Name() string {
	return s.name
}

// NodeID returns the unique ID of this store attachment.
func (s *Store) NodeID() uuid.UUID {
	return s.nodeID
}

// EntryCount returns the fixed number of entries in the table.
func (s *Store) EntryCount() int {
	return int(s.layout.entryCount)
}

// KeyType returns the key type descriptor recorded at creation.
func (s *Store) KeyType() TypeDescriptor {
	return s.layout.keyType
}

// MaxReaders returns the reader port capacity.
func (s *Store) MaxReaders() int {
	return int(s.layout.maxReaders)
}

// MaxNodes returns the node capacity.
func (s *Store) MaxNodes() int {
	return int(s.layout.maxNodes)
}

// ListKeys returns every key blob in EntryID order. Table membership never
// changes after construction, so this is safe at any time and from any
// process.
func (s *Store) ListKeys() [][]byte {
	return s.table.listKeys()
}

// DescribeEntries returns the ID, key and value type of every entry.
func (s *Store) DescribeEntries() []EntryDescription {
	return s.table.describe()
}

// ReadersInUse counts the currently claimed reader slots.
func (s *Store) ReadersInUse() int {
	return s.countBits(s.layout.readerBitsOffset(), s.layout.maxReaders)
}

// NodesInUse counts the currently claimed node slots.
func (s *Store) NodesInUse() int {
	return s.countBits(s.layout.nodeBitsOffset(), s.layout.maxNodes)
}

// WriterInUse reports whether a writer port is currently alive.
func (s *Store) WriterInUse() bool {
	return s.seg.atomicU32(offWriterSlot).Load() != 0
}

// ReleasePort returns a capacity slot to its pool. It exists for the
// port-lifecycle collaborator that cleans up after abnormally terminated
// processes, and is idempotent: releasing an already free slot is a no-op.
func (s *Store) ReleasePort(kind PortKind, slot int) error {
	switch kind {
	case PortKindWriter:
		if slot != 0 {
			return fmt.Errorf("writer slot %d out of range [0, 1)", slot)
		}
		s.seg.atomicU32(offWriterSlot).Store(0)
		return nil
	case PortKindReader:
		if slot < 0 || slot >= int(s.layout.maxReaders) {
			return fmt.Errorf("reader slot %d out of range [0, %d)", slot, s.layout.maxReaders)
		}
		s.releaseBit(s.layout.readerBitsOffset(), slot)
		return nil
	case PortKindNode:
		if slot < 0 || slot >= int(s.layout.maxNodes) {
			return fmt.Errorf("node slot %d out of range [0, %d)", slot, s.layout.maxNodes)
		}
		s.releaseBit(s.layout.nodeBitsOffset(), slot)
		return nil
	default:
		return fmt.Errorf("unknown port kind %v", kind)
	}
}

// Close releases this attachment's node slot and drops the store's segment
// reference. Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.releaseBit(s.layout.nodeBitsOffset(), s.nodeSlot)
	return s.seg.release()
}

// claimWriterSlot takes the single writer slot with a compare-and-swap.
func (s *Store) claimWriterSlot() bool {
	return s.seg.atomicU32(offWriterSlot).CompareAndSwap(0, 1)
}

// claimBit scans a bitset for a free slot and claims it with a CAS retry
// loop. Slot claims are rare (port creation only), so contention here is
// acceptable; the hot read/write path never touches these words.
func (s *Store) claimBit(base int, slots uint32) (int, bool) {
	for slot := 0; slot < int(slots); slot++ {
		word := s.seg.atomicU64(base + 8*(slot/64))
		mask := uint64(1) << (slot % 64)
		for {
			old := word.Load()
			if old&mask != 0 {
				break // taken, try the next slot
			}
			if word.CompareAndSwap(old, old|mask) {
				return slot, true
			}
		}
	}
	return 0, false
}

func (s *Store) releaseBit(base int, slot int) {
	word := s.seg.atomicU64(base + 8*(slot/64))
	mask := uint64(1) << (slot % 64)
	for {
		old := word.Load()
		if old&mask == 0 {
			return
		}
		if word.CompareAndSwap(old, old&^mask) {
			return
		}
	}
}

func (s *Store) countBits(base int, slots uint32) int {
	count := 0
	for w := uint32(0); w < bitsetWords(slots); w++ {
		word := s.seg.atomicU64(base + 8*int(w)).Load()
		if rest := slots - w*64; rest < 64 {
			word &= (uint64(1) << rest) - 1
		}
		count += bits.OnesCount64(word)
	}
	return count
}
