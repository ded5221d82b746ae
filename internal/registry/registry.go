// Package registry maps service names to their shared-memory segment files
// and persists a static description of each service for discovery and
// tooling. The description file is advisory: the segment header stays
// authoritative and is re-validated by every process that attaches.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultRoot is where service files live unless overridden by the
	// DREY_REGISTRY_ROOT environment variable or explicit configuration.
	DefaultRoot = "/tmp/drey/services"

	// EnvRoot is the environment variable that overrides the registry root.
	EnvRoot = "DREY_REGISTRY_ROOT"

	descriptionSuffix = ".service.yml"
	segmentSuffix     = ".segment"
)

// TypeInfo mirrors a blackboard type descriptor in the description file.
type TypeInfo struct {
	Name      string `yaml:"name"`
	Size      uint32 `yaml:"size"`
	Alignment uint32 `yaml:"alignment"`
}

// EntryInfo describes one entry: its key as hex-encoded bytes plus the value
// type. Entries appear in EntryID order.
type EntryInfo struct {
	Key  string   `yaml:"key"`
	Type TypeInfo `yaml:"type"`
}

// Description is the static service description persisted alongside the
// segment. It lets tooling (CLI list/describe, the Redis mirror) discover a
// service's shape without attaching to the segment.
type Description struct {
	Version    string      `yaml:"version"`
	ServiceID  string      `yaml:"service_id"`
	Name       string      `yaml:"name"`
	KeyType    TypeInfo    `yaml:"key_type"`
	Entries    []EntryInfo `yaml:"entries"`
	MaxReaders uint32      `yaml:"max_readers"`
	MaxNodes   uint32      `yaml:"max_nodes"`
}

// Validate performs strict validation on a description.
func (d *Description) Validate() error {
	if d.Version != "1.0" {
		return fmt.Errorf("unsupported description version: %s (expected: 1.0)", d.Version)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if len(d.Entries) == 0 {
		return fmt.Errorf("service '%s': no entries defined", d.Name)
	}
	return nil
}

// Root resolves the registry root: explicit override first, then the
// environment, then the default.
func Root(override string) string {
	if override != "" {
		return override
	}
	if env := os.Getenv(EnvRoot); env != "" {
		return env
	}
	return DefaultRoot
}

// DescriptionPath returns the path of a service's description file.
func DescriptionPath(root, name string) string {
	return filepath.Join(root, name+descriptionSuffix)
}

// SegmentPath returns the path of a service's segment file.
func SegmentPath(root, name string) string {
	return filepath.Join(root, name+segmentSuffix)
}

// Exists reports whether a service description is present under root.
func Exists(root, name string) (bool, error) {
	_, err := os.Stat(DescriptionPath(root, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat service description: %w", err)
}

// Save writes a service description, creating the registry root if needed.
func Save(root string, d *Description) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid service description: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create registry root '%s': %w", root, err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to serialize service description: %w", err)
	}
	if err := os.WriteFile(DescriptionPath(root, d.Name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write service description: %w", err)
	}
	return nil
}

// Load reads one service description. Returns an error wrapping
// os.ErrNotExist when the service is unknown.
func Load(root, name string) (*Description, error) {
	data, err := os.ReadFile(DescriptionPath(root, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read service description for '%s': %w", name, err)
	}
	var d Description
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse service description for '%s': %w", name, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service description for '%s': %w", name, err)
	}
	return &d, nil
}

// List enumerates all service descriptions under root, sorted by name. A
// missing root is an empty registry, not an error.
func List(root string) ([]*Description, error) {
	dirEntries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registry root '%s': %w", root, err)
	}
	var descs []*Description
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), descriptionSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), descriptionSuffix)
		d, err := Load(root, name)
		if err != nil {
			// A half-written or stale description must not hide the rest of
			// the registry.
			continue
		}
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs, nil
}

// Remove deletes a service's description and segment files. Removing a
// service that does not exist is a no-op.
func Remove(root, name string) error {
	var errs []error
	for _, path := range []string{DescriptionPath(root, name), SegmentPath(root, name)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove '%s': %w", path, err))
		}
	}
	return errors.Join(errs...)
}
