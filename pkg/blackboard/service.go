package blackboard

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dyluth/drey/internal/registry"
)

// Default capacities applied when a ServiceConfig leaves them zero.
const (
	DefaultMaxReaders = 8
	DefaultMaxNodes   = 16
)

// ServiceConfig describes a service to create: its name, key type, the
// ordered entry list and the capacity limits baked into the segment.
type ServiceConfig struct {
	Name    string
	KeyType KeyDescriptor

	// Entries is the full, final entry list. EntryIDs are assigned in this
	// order, starting at 0.
	Entries []EntrySpec

	// MaxReaders and MaxNodes default to DefaultMaxReaders/DefaultMaxNodes
	// when zero.
	MaxReaders uint32
	MaxNodes   uint32

	// RegistryRoot overrides where the service files live. Empty means the
	// DREY_REGISTRY_ROOT environment variable, then the built-in default.
	RegistryRoot string
}

// OpenConfig describes an attach to an existing service.
type OpenConfig struct {
	Name    string
	KeyType KeyDescriptor

	// RequiredReaders/RequiredNodes make Open fail with
	// ErrInsufficientCapacity when the existing store was created smaller
	// than the caller needs. Zero means no requirement.
	RequiredReaders uint32
	RequiredNodes   uint32

	RegistryRoot string
}

// Create builds a new service: it validates the entry list, lays out and
// initializes the shared segment, persists the registry description and
// attaches to the result. A failed create leaves nothing behind.
func Create(cfg ServiceConfig) (*Store, error) {
	if err := registry.ValidateName(cfg.Name); err != nil {
		return nil, err
	}
	if err := cfg.KeyType.Type.Validate(); err != nil {
		return nil, fmt.Errorf("key type: %w", err)
	}
	if err := validateEntrySpecs(cfg.KeyType, cfg.Entries); err != nil {
		return nil, err
	}
	maxReaders := cfg.MaxReaders
	if maxReaders == 0 {
		maxReaders = DefaultMaxReaders
	}
	maxNodes := cfg.MaxNodes
	if maxNodes == 0 {
		maxNodes = DefaultMaxNodes
	}

	root := registry.Root(cfg.RegistryRoot)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry root '%s': %w", root, err)
	}
	if exists, err := registry.Exists(root, cfg.Name); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("service '%s': %w", cfg.Name, ErrServiceExists)
	}

	l := computeLayout(cfg.KeyType.Type, cfg.Entries, maxReaders, maxNodes)
	seg, err := createSegment(registry.SegmentPath(root, cfg.Name), l.segmentSize())
	if err != nil {
		return nil, err
	}
	writeHeader(seg.data, l)
	table := initTable(seg, l, cfg.KeyType, cfg.Entries)

	if err := registry.Save(root, describeService(cfg.Name, l, cfg.Entries)); err != nil {
		seg.unlink()
		seg.release()
		return nil, err
	}

	store, err := attachStore(cfg.Name, seg, l, table)
	if err != nil {
		// Cannot happen on a fresh segment with maxNodes >= 1, but if it
		// does, take the files back out.
		registry.Remove(root, cfg.Name)
		return nil, err
	}
	return store, nil
}

// Open attaches to an existing service. The caller's key type descriptor
// must match the one the segment was created with, and the store must have
// been created with at least the required capacities.
func Open(cfg OpenConfig) (*Store, error) {
	if err := registry.ValidateName(cfg.Name); err != nil {
		return nil, err
	}
	if err := cfg.KeyType.Type.Validate(); err != nil {
		return nil, fmt.Errorf("key type: %w", err)
	}

	root := registry.Root(cfg.RegistryRoot)
	seg, err := openSegment(registry.SegmentPath(root, cfg.Name))
	if err != nil {
		return nil, err
	}
	l, err := readHeader(seg.data)
	if err != nil {
		seg.release()
		if errors.Is(err, errSegmentUninitialized) {
			// A creator holds the file but has not written the header yet.
			// Report not-found so the caller (OpenOrCreate included) retries
			// instead of failing on the half-built segment.
			return nil, fmt.Errorf("service '%s' is still being created: %w", cfg.Name, ErrServiceNotFound)
		}
		return nil, fmt.Errorf("service '%s': %w", cfg.Name, err)
	}
	if !l.keyType.Equal(cfg.KeyType.Type) {
		seg.release()
		return nil, fmt.Errorf("service '%s' uses key type %s, caller expects %s: %w",
			cfg.Name, l.keyType, cfg.KeyType.Type, ErrTypeMismatch)
	}
	if cfg.RequiredReaders > l.maxReaders {
		seg.release()
		return nil, fmt.Errorf("service '%s' supports %d readers, caller requires %d: %w",
			cfg.Name, l.maxReaders, cfg.RequiredReaders, ErrInsufficientCapacity)
	}
	if cfg.RequiredNodes > l.maxNodes {
		seg.release()
		return nil, fmt.Errorf("service '%s' supports %d nodes, caller requires %d: %w",
			cfg.Name, l.maxNodes, cfg.RequiredNodes, ErrInsufficientCapacity)
	}
	return attachStore(cfg.Name, seg, l, attachTable(seg, l, cfg.KeyType))
}

// OpenOrCreate tries Open first and falls back to Create when the service
// does not exist. The configured capacities double as the open requirement,
// so the caller never ends up attached to a store smaller than it would
// have created. Lost creation races are resolved by retrying the open.
func OpenOrCreate(cfg ServiceConfig) (*Store, error) {
	openCfg := OpenConfig{
		Name:            cfg.Name,
		KeyType:         cfg.KeyType,
		RequiredReaders: cfg.MaxReaders,
		RequiredNodes:   cfg.MaxNodes,
		RegistryRoot:    cfg.RegistryRoot,
	}
	for attempt := 0; attempt < 2; attempt++ {
		store, err := Open(openCfg)
		if err == nil {
			return store, nil
		}
		if !errors.Is(err, ErrServiceNotFound) {
			return nil, err
		}
		store, err = Create(cfg)
		if err == nil {
			return store, nil
		}
		if !errors.Is(err, ErrServiceExists) {
			return nil, err
		}
		// Lost the creation race; the winner's service must be openable now.
	}
	return nil, fmt.Errorf("service '%s': repeatedly raced between open and create", cfg.Name)
}

// Destroy removes a service's registry files. Processes that still hold the
// segment mapped keep working on it; new opens fail with ErrServiceNotFound.
func Destroy(name, registryRoot string) error {
	if err := registry.ValidateName(name); err != nil {
		return err
	}
	return registry.Remove(registry.Root(registryRoot), name)
}

func attachStore(name string, seg *segment, l layout, table *entryTable) (*Store, error) {
	store := &Store{
		name:   name,
		nodeID: uuid.New(),
		seg:    seg,
		layout: l,
		table:  table,
	}
	slot, ok := store.claimBit(l.nodeBitsOffset(), l.maxNodes)
	if !ok {
		seg.release()
		return nil, fmt.Errorf("service '%s': %w", name, ErrNodeSlotExhausted)
	}
	store.nodeSlot = slot
	return store, nil
}

func describeService(name string, l layout, entries []EntrySpec) *registry.Description {
	infos := make([]registry.EntryInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, registry.EntryInfo{
			Key: hex.EncodeToString(e.Key),
			Type: registry.TypeInfo{
				Name:      e.Type.Name,
				Size:      e.Type.Size,
				Alignment: e.Type.Alignment,
			},
		})
	}
	return &registry.Description{
		Version:   "1.0",
		ServiceID: uuid.New().String(),
		Name:      name,
		KeyType: registry.TypeInfo{
			Name:      l.keyType.Name,
			Size:      l.keyType.Size,
			Alignment: l.keyType.Alignment,
		},
		Entries:    infos,
		MaxReaders: l.maxReaders,
		MaxNodes:   l.maxNodes,
	}
}
