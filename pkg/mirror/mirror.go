package mirror

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/drey/pkg/blackboard"
)

// Event is one mirrored entry update as published on Redis.
type Event struct {
	Service      string `json:"service"`
	EntryID      uint32 `json:"entry_id"`
	Version      uint64 `json:"version"`
	Value        string `json:"value"` // hex-encoded value bytes
	ObservedAtMs int64  `json:"observed_at_ms"`
}

// UpdatesChannel returns the aggregate Pub/Sub channel for a service.
// Pattern: drey:{service}:updates
func UpdatesChannel(service string) string {
	return fmt.Sprintf("drey:%s:updates", service)
}

// EntryChannel returns the per-entry Pub/Sub channel.
// Pattern: drey:{service}:entry:{entry_id}
func EntryChannel(service string, entryID uint32) string {
	return fmt.Sprintf("drey:%s:entry:%d", service, entryID)
}

// Mirror polls every entry of one store and republishes committed values on
// Redis. It owns a reader port and one entry handle per entry; Close
// releases them.
type Mirror struct {
	rdb     *redis.Client
	service string
	reader  *blackboard.Reader
	entries []mirroredEntry
}

type mirroredEntry struct {
	id     blackboard.EntryID
	handle *blackboard.EntryHandle
	last   blackboard.Snapshot
	primed bool
}

// New creates a mirror for the given store. It claims one reader slot and
// acquires a handle for every entry; failing either releases everything
// claimed so far.
func New(rdb *redis.Client, store *blackboard.Store) (*Mirror, error) {
	reader, err := store.NewReader()
	if err != nil {
		return nil, fmt.Errorf("mirror could not claim a reader slot: %w", err)
	}

	descs := store.DescribeEntries()
	entries := make([]mirroredEntry, 0, len(descs))
	for _, d := range descs {
		handle, err := reader.Entry(d.Key, d.Type)
		if err != nil {
			for _, e := range entries {
				e.handle.Close()
			}
			reader.Close()
			return nil, fmt.Errorf("mirror could not acquire entry %d: %w", d.ID, err)
		}
		entries = append(entries, mirroredEntry{id: d.ID, handle: handle})
	}

	return &Mirror{
		rdb:     rdb,
		service: store.Name(),
		reader:  reader,
		entries: entries,
	}, nil
}

// Run polls until the context is cancelled, publishing every observed
// version change. The initial snapshots are published immediately so late
// subscribers see the current state without waiting for the next commit.
func (m *Mirror) Run(ctx context.Context, interval time.Duration) error {
	log.Printf("[INFO] Mirror starting for service='%s' entries=%d interval=%s",
		m.service, len(m.entries), interval)

	if err := m.Poll(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] Mirror for service='%s' shutting down", m.service)
			return nil
		case <-ticker.C:
			if err := m.Poll(ctx); err != nil {
				return err
			}
		}
	}
}

// Poll publishes every entry whose version moved since the last poll. The
// first poll publishes everything.
func (m *Mirror) Poll(ctx context.Context) error {
	for i := range m.entries {
		e := &m.entries[i]
		if e.primed && e.handle.IsUpToDate(e.last) {
			continue
		}
		snapshot := e.handle.Get()
		if err := m.publish(ctx, e.id, snapshot); err != nil {
			return err
		}
		e.last = snapshot
		e.primed = true
		log.Printf("[DEBUG] Mirrored service='%s' entry=%d version=%d", m.service, e.id, snapshot.Version())
	}
	return nil
}

func (m *Mirror) publish(ctx context.Context, id blackboard.EntryID, snapshot blackboard.Snapshot) error {
	event := &Event{
		Service:      m.service,
		EntryID:      uint32(id),
		Version:      snapshot.Version(),
		Value:        hex.EncodeToString(snapshot.Bytes()),
		ObservedAtMs: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal mirror event: %w", err)
	}
	if err := m.rdb.Publish(ctx, UpdatesChannel(m.service), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish mirror event: %w", err)
	}
	if err := m.rdb.Publish(ctx, EntryChannel(m.service, uint32(id)), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish mirror event: %w", err)
	}
	return nil
}

// Close releases the mirror's entry handles and reader slot.
func (m *Mirror) Close() error {
	for _, e := range m.entries {
		e.handle.Close()
	}
	return m.reader.Close()
}
