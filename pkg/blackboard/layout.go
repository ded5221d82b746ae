package blackboard

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// errSegmentUninitialized marks a segment file whose header has not been
// written yet: a creator holds the file but has not finished initializing
// it. Open reports this as ErrServiceNotFound so racing callers retry
// instead of failing on a half-built segment.
var errSegmentUninitialized = errors.New("segment not yet initialized")

// Binary layout of the shared segment.
//
// Every offset is computable from the header alone, so an attaching process
// can address any entry without a directory lookup. All fields are
// little-endian and 8-byte aligned; the atomically accessed regions (writer
// slot, reader/node bitsets, entry versions) are only ever touched through
// sync/atomic once the segment is published.
//
//	header:
//	  magic          u64
//	  layoutVersion  u32
//	  entryCount     u32
//	  maxReaders     u32
//	  maxNodes       u32
//	  keyType        name[64] + size u32 + align u32
//	  valueStride    u32
//	  recordStride   u32
//	  writerSlot     u32 (atomic) + u32 padding
//	  readerBits     ceil(maxReaders/64) x u64 (atomic)
//	  nodeBits       ceil(maxNodes/64) x u64 (atomic)
//	records[entryCount], each:
//	  key            key size padded to 8
//	  valueType      name[64] + size u32 + align u32
//	  claim          u64 (atomic)
//	  version        u64 (atomic)
//	  buffers        2 x valueStride
//
// Each entry owns two value buffers. The committed buffer is selected by the
// version's parity (version%2); the writer always drafts in the other one and
// publishes by incrementing the version. A reader that copies a buffer while
// the version changes underneath it discards the copy and retries, so a torn
// read is always detected before it escapes.
//
// The claim word is the entry's mutation-handle flag: nonzero while an
// EntryHandleMut exists anywhere, in any process. It lives in the segment so
// exclusivity holds across ports and processes, not just within the port
// that issued the handle.
const (
	segmentMagic  uint64 = 0x4452455953544f52 // "DREYSTOR"
	layoutVersion uint32 = 1

	typeNameField = 64
	descriptorLen = typeNameField + 4 + 4 // name + size + alignment

	offMagic        = 0
	offLayoutVer    = 8
	offEntryCount   = 12
	offMaxReaders   = 16
	offMaxNodes     = 20
	offKeyType      = 24
	offValueStride  = offKeyType + descriptorLen      // 96
	offRecordStride = offValueStride + 4              // 100
	offWriterSlot   = offRecordStride + 4             // 104
	offReaderBits   = offWriterSlot + 8               // 108 + pad -> 112
)

// layout holds the decoded header geometry of one segment.
type layout struct {
	keyType     TypeDescriptor
	entryCount  uint32
	maxReaders  uint32
	maxNodes    uint32
	keyStride   uint32
	valueStride uint32
}

func align8(n uint32) uint32 {
	return (n + 7) &^ 7
}

func bitsetWords(slots uint32) uint32 {
	return (slots + 63) / 64
}

// computeLayout derives the full geometry for a new segment from the key
// type, the entry list and the capacity limits. The value stride is the
// largest value size across all entries, rounded up so the per-entry version
// counter and buffers stay 8-byte aligned.
func computeLayout(keyType TypeDescriptor, entries []EntrySpec, maxReaders, maxNodes uint32) layout {
	var maxValue uint32
	for _, e := range entries {
		if e.Type.Size > maxValue {
			maxValue = e.Type.Size
		}
	}
	return layout{
		keyType:     keyType,
		entryCount:  uint32(len(entries)),
		maxReaders:  maxReaders,
		maxNodes:    maxNodes,
		keyStride:   align8(keyType.Size),
		valueStride: align8(maxValue),
	}
}

func (l layout) readerBitsOffset() int {
	return offReaderBits
}

func (l layout) nodeBitsOffset() int {
	return offReaderBits + 8*int(bitsetWords(l.maxReaders))
}

func (l layout) headerSize() int {
	return l.nodeBitsOffset() + 8*int(bitsetWords(l.maxNodes))
}

// recordStride is the size of one entry record. Every term is a multiple of
// 8, so claims, versions and buffers stay 8-byte aligned across all records.
func (l layout) recordStride() int {
	return int(l.keyStride) + descriptorLen + 16 + 2*int(l.valueStride)
}

func (l layout) segmentSize() int {
	return l.headerSize() + int(l.entryCount)*l.recordStride()
}

func (l layout) recordOffset(id EntryID) int {
	return l.headerSize() + int(id)*l.recordStride()
}

func (l layout) keyOffset(id EntryID) int {
	return l.recordOffset(id)
}

func (l layout) valueTypeOffset(id EntryID) int {
	return l.recordOffset(id) + int(l.keyStride)
}

func (l layout) claimOffset(id EntryID) int {
	return l.valueTypeOffset(id) + descriptorLen
}

func (l layout) versionOffset(id EntryID) int {
	return l.claimOffset(id) + 8
}

func (l layout) bufferOffset(id EntryID, index int) int {
	return l.versionOffset(id) + 8 + index*int(l.valueStride)
}

// encodeDescriptor writes a type descriptor into its fixed-size field.
func encodeDescriptor(dst []byte, d TypeDescriptor) {
	for i := range dst[:typeNameField] {
		dst[i] = 0
	}
	copy(dst[:typeNameField], d.Name)
	binary.LittleEndian.PutUint32(dst[typeNameField:], d.Size)
	binary.LittleEndian.PutUint32(dst[typeNameField+4:], d.Alignment)
}

func decodeDescriptor(src []byte) TypeDescriptor {
	name := src[:typeNameField]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return TypeDescriptor{
		Name:      string(name),
		Size:      binary.LittleEndian.Uint32(src[typeNameField:]),
		Alignment: binary.LittleEndian.Uint32(src[typeNameField+4:]),
	}
}

// writeHeader initializes the non-atomic header fields of a fresh segment.
// Runs before the segment is discoverable, so plain stores are safe here.
func writeHeader(data []byte, l layout) {
	binary.LittleEndian.PutUint64(data[offMagic:], segmentMagic)
	binary.LittleEndian.PutUint32(data[offLayoutVer:], layoutVersion)
	binary.LittleEndian.PutUint32(data[offEntryCount:], l.entryCount)
	binary.LittleEndian.PutUint32(data[offMaxReaders:], l.maxReaders)
	binary.LittleEndian.PutUint32(data[offMaxNodes:], l.maxNodes)
	encodeDescriptor(data[offKeyType:], l.keyType)
	binary.LittleEndian.PutUint32(data[offValueStride:], l.valueStride)
	binary.LittleEndian.PutUint32(data[offRecordStride:], uint32(l.recordStride()))
}

// readHeader decodes and sanity-checks the header of an existing segment.
func readHeader(data []byte) (layout, error) {
	// A zero magic means the creator ftruncated the file but has not written
	// the header yet, which is distinct from a foreign or corrupt segment.
	if len(data) >= 8 && binary.LittleEndian.Uint64(data[offMagic:]) == 0 {
		return layout{}, errSegmentUninitialized
	}
	if len(data) < offReaderBits {
		return layout{}, fmt.Errorf("segment too small to hold a header: %d bytes", len(data))
	}
	if magic := binary.LittleEndian.Uint64(data[offMagic:]); magic != segmentMagic {
		return layout{}, fmt.Errorf("bad segment magic 0x%016x", magic)
	}
	if v := binary.LittleEndian.Uint32(data[offLayoutVer:]); v != layoutVersion {
		return layout{}, fmt.Errorf("unsupported segment layout version %d (expected: %d)", v, layoutVersion)
	}
	l := layout{
		keyType:     decodeDescriptor(data[offKeyType:]),
		entryCount:  binary.LittleEndian.Uint32(data[offEntryCount:]),
		maxReaders:  binary.LittleEndian.Uint32(data[offMaxReaders:]),
		maxNodes:    binary.LittleEndian.Uint32(data[offMaxNodes:]),
		valueStride: binary.LittleEndian.Uint32(data[offValueStride:]),
	}
	l.keyStride = align8(l.keyType.Size)
	if l.entryCount == 0 {
		return layout{}, fmt.Errorf("segment header declares no entries")
	}
	if recorded := binary.LittleEndian.Uint32(data[offRecordStride:]); recorded != uint32(l.recordStride()) {
		return layout{}, fmt.Errorf("segment record stride %d does not match computed %d", recorded, l.recordStride())
	}
	if len(data) < l.segmentSize() {
		return layout{}, fmt.Errorf("segment is %d bytes, header requires %d", len(data), l.segmentSize())
	}
	return l, nil
}
