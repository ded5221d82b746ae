//go:build darwin || freebsd || linux

package blackboard

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// segment is one memory-mapped file shared between processes. It is
// reference-counted within the process: the store handle, every port and
// every entry handle hold a reference, so the mapping stays valid for as
// long as anything can still dereference it. The file itself outlives the
// mapping; it is removed only by an explicit Destroy or registry cleanup.
type segment struct {
	fd   int
	data []byte
	path string
	refs atomic.Int64
}

// createSegment creates and maps a fresh segment file. O_EXCL makes creation
// the arbiter of service existence: two racing creators cannot both win.
func createSegment(path string, size int) (*segment, error) {
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_EXCL, 0o666)
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("segment file %q: %w", path, ErrServiceExists)
		}
		return nil, fmt.Errorf("failed to create segment file %q: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return nil, fmt.Errorf("failed to size segment file %q to %d bytes: %w", path, size, err)
	}
	return mapSegment(fd, size, path)
}

// openSegment maps an existing segment file at its current size.
func openSegment(path string) (*segment, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("segment file %q: %w", path, ErrServiceNotFound)
		}
		return nil, fmt.Errorf("failed to open segment file %q: %w", path, err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to obtain size of segment file %q: %w", path, err)
	}
	return mapSegment(fd, int(stat.Size), path)
}

func mapSegment(fd, size int, path string) (*segment, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to memory map segment file %q: %w", path, err)
	}
	s := &segment{fd: fd, data: data, path: path}
	s.refs.Store(1)
	return s, nil
}

func (s *segment) retain() {
	s.refs.Add(1)
}

// release drops one reference; the last one unmaps the segment and closes
// the file descriptor. The file on disk is untouched.
func (s *segment) release() error {
	if s.refs.Add(-1) != 0 {
		return nil
	}
	var errs []error
	if err := unix.Munmap(s.data); err != nil {
		errs = append(errs, fmt.Errorf("failed to unmap segment %q: %w", s.path, err))
	}
	if err := unix.Close(s.fd); err != nil {
		errs = append(errs, fmt.Errorf("failed to close segment file %q: %w", s.path, err))
	}
	s.data = nil
	return errors.Join(errs...)
}

// unlink removes the backing file. Mappings held by any process stay valid;
// the kernel reclaims the memory when the last one goes away.
func (s *segment) unlink() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove segment file %q: %w", s.path, err)
	}
	return nil
}

// atomicU64 returns the atomic word at the given byte offset. The layout
// guarantees 8-byte alignment for every atomically accessed field. Go's
// sync/atomic operations are sequentially consistent, which is stronger than
// the release/acquire ordering the publish protocol requires.
func (s *segment) atomicU64(off int) *atomic.Uint64 {
	return (*atomic.Uint64)(unsafe.Pointer(&s.data[off]))
}

func (s *segment) atomicU32(off int) *atomic.Uint32 {
	return (*atomic.Uint32)(unsafe.Pointer(&s.data[off]))
}

func (s *segment) bytes(off, n int) []byte {
	return s.data[off : off+n : off+n]
}
