// Package blackboard provides a shared-memory key-value blackboard for
// same-machine, cross-process communication.
//
// # Overview
//
// A blackboard service is a named, fixed set of typed value slots living in a
// memory-mapped segment. Exactly one writer process updates individual slots
// while up to max_readers reader processes observe them. The hot path uses no
// OS locks: every slot carries a version counter and two value buffers, the
// writer drafts in the buffer readers cannot see and publishes by advancing
// the version, and readers detect concurrent overwrites by re-checking the
// version after copying.
//
// # Core Concepts
//
// Entries are the value slots. They are declared once, at service creation,
// as an ordered list of (key, value type, initial value) triples; membership
// never changes afterwards. Each entry is addressed internally by its EntryID,
// the position it held in the creation list.
//
// Type descriptors record the identity {name, size, alignment} of the key
// type and of every entry's value type. They are persisted in the segment
// header and validated whenever a handle is acquired, so a process attaching
// with the wrong layout is rejected before it can touch a single byte.
//
// Ports are capacity leases. A Store hands out at most one Writer and at most
// max_readers Readers at a time; ports issue entry handles, and handles stay
// usable even after their port (or the Store itself) is closed, because every
// handle keeps the underlying segment mapped.
//
// # Usage Example
//
//	store, err := blackboard.Create(blackboard.ServiceConfig{
//		Name:    "vehicle-state",
//		KeyType: blackboard.KeyDescriptor{Type: blackboard.TypeDescriptor{Name: "u64", Size: 8, Alignment: 8}},
//		Entries: []blackboard.EntrySpec{
//			{Key: key0, Type: blackboard.TypeDescriptor{Name: "u16", Size: 2, Alignment: 2}, InitialValue: zero},
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	writer, err := store.NewWriter()
//	if err != nil {
//		log.Fatal(err)
//	}
//	entry, err := writer.Entry(key0, blackboard.TypeDescriptor{Name: "u16", Size: 2, Alignment: 2})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := entry.UpdateWithCopy(newValue); err != nil {
//		log.Fatal(err)
//	}
//
// Readers attach with Open, create a Reader port and acquire EntryHandles the
// same way; EntryHandle.Get returns a Snapshot whose staleness can later be
// checked with IsUpToDate without re-reading the value.
//
// # Design Principles
//
//   - Tear-free reads: a Snapshot is always a byte-exact committed value,
//     never a mix of two writes.
//   - Zero copy on the write path: LoanUninit exposes the draft buffer
//     directly; UpdateWithCopy is the convenient fast path.
//   - Fail loud, fail local: every misuse (duplicate keys, type mismatches,
//     exhausted capacity, double loans) returns an explicit error and leaves
//     shared state untouched.
//   - No hidden registries: descriptors travel with each call, nothing is
//     negotiated through process-global state.
package blackboard
