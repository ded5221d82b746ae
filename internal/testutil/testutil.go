// Package testutil provides shared helpers for drey tests: byte-level key
// and value encoders plus a ready-made service fixture.
package testutil

import (
	"encoding/binary"
	"testing"

	"github.com/dyluth/drey/pkg/blackboard"
)

// U64Type is the descriptor tests use for 8-byte keys and values.
func U64Type() blackboard.TypeDescriptor {
	return blackboard.TypeDescriptor{Name: "u64", Size: 8, Alignment: 8}
}

// U16Type is the descriptor tests use for 2-byte values.
func U16Type() blackboard.TypeDescriptor {
	return blackboard.TypeDescriptor{Name: "u16", Size: 2, Alignment: 2}
}

// U64Bytes encodes v as the little-endian blob of a u64 key or value.
func U64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// U16Bytes encodes v as the little-endian blob of a u16 value.
func U16Bytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// ServiceConfig returns a two-entry service fixture rooted in a temp
// directory: key 0 holds a u16 starting at 0, key 1 holds a u64 starting
// at 0. The registry root is cleaned up with the test.
func ServiceConfig(t *testing.T, name string) blackboard.ServiceConfig {
	t.Helper()
	return blackboard.ServiceConfig{
		Name:    name,
		KeyType: blackboard.KeyDescriptor{Type: U64Type()},
		Entries: []blackboard.EntrySpec{
			{Key: U64Bytes(0), Type: U16Type(), InitialValue: U16Bytes(0)},
			{Key: U64Bytes(1), Type: U64Type(), InitialValue: U64Bytes(0)},
		},
		RegistryRoot: t.TempDir(),
	}
}
