package blackboard

import (
	"errors"
	"fmt"

	"github.com/dyluth/drey/internal/registry"
)

// Inspection is a point-in-time view of a service's static shape and
// dynamic port occupancy, obtained without claiming any capacity slot.
type Inspection struct {
	Name         string
	KeyType      TypeDescriptor
	Entries      []EntryDescription
	MaxReaders   int
	MaxNodes     int
	ReadersInUse int
	NodesInUse   int
	WriterInUse  bool
}

// Inspect attaches to a service's segment just long enough to read its
// header and counters. Unlike Open it claims no node slot, so tooling can
// look at a fully occupied store. The capacity counts are sampled values;
// they can be stale by the time the caller looks at them.
func Inspect(name, registryRoot string) (*Inspection, error) {
	if err := registry.ValidateName(name); err != nil {
		return nil, err
	}
	root := registry.Root(registryRoot)
	seg, err := openSegment(registry.SegmentPath(root, name))
	if err != nil {
		return nil, err
	}
	defer seg.release()

	l, err := readHeader(seg.data)
	if err != nil {
		if errors.Is(err, errSegmentUninitialized) {
			return nil, fmt.Errorf("service '%s' is still being created: %w", name, ErrServiceNotFound)
		}
		return nil, fmt.Errorf("service '%s': %w", name, err)
	}
	// Throwaway view for the counter helpers; no slot is claimed.
	view := &Store{seg: seg, layout: l, table: attachTable(seg, l, KeyDescriptor{Type: l.keyType})}
	return &Inspection{
		Name:         name,
		KeyType:      l.keyType,
		Entries:      view.DescribeEntries(),
		MaxReaders:   int(l.maxReaders),
		MaxNodes:     int(l.maxNodes),
		ReadersInUse: view.ReadersInUse(),
		NodesInUse:   view.NodesInUse(),
		WriterInUse:  view.WriterInUse(),
	}, nil
}
