package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/drey/internal/testutil"
	"github.com/dyluth/drey/pkg/blackboard"
)

func setupMirrorTest(t *testing.T) (*redis.Client, *blackboard.Store) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store, err := blackboard.Create(testutil.ServiceConfig(t, "mirrored"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return rdb, store
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "drey:vehicle-state:updates", UpdatesChannel("vehicle-state"))
	assert.Equal(t, "drey:vehicle-state:entry:3", EntryChannel("vehicle-state", 3))
}

func TestNew(t *testing.T) {
	t.Run("claims one reader slot", func(t *testing.T) {
		rdb, store := setupMirrorTest(t)

		m, err := New(rdb, store)
		require.NoError(t, err)
		assert.Equal(t, 1, store.ReadersInUse())

		require.NoError(t, m.Close())
		assert.Equal(t, 0, store.ReadersInUse())
	})

	t.Run("fails when reader slots are exhausted", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		cfg := testutil.ServiceConfig(t, "full")
		cfg.MaxReaders = 1
		store, err := blackboard.Create(cfg)
		require.NoError(t, err)
		defer store.Close()

		reader, err := store.NewReader()
		require.NoError(t, err)
		defer reader.Close()

		_, err = New(rdb, store)
		assert.ErrorIs(t, err, blackboard.ErrReaderSlotExhausted)
	})
}

func TestPollPublishes(t *testing.T) {
	rdb, store := setupMirrorTest(t)

	m, err := New(rdb, store)
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := Subscribe(ctx, rdb, store.Name())
	require.NoError(t, err)
	defer sub.Close()

	// Give the subscriber goroutine time to establish before publishing;
	// Redis Pub/Sub does not replay.
	time.Sleep(100 * time.Millisecond)

	// The first poll publishes the initial snapshot of every entry.
	require.NoError(t, m.Poll(ctx))
	initial := collectEvents(t, sub, 2)
	for _, ev := range initial {
		assert.Equal(t, "mirrored", ev.Service)
		assert.Equal(t, uint64(0), ev.Version)
	}

	// A quiet poll publishes nothing further; the next commit publishes
	// exactly one event for the changed entry.
	require.NoError(t, m.Poll(ctx))

	writer, err := store.NewWriter()
	require.NoError(t, err)
	defer writer.Close()
	handle, err := writer.Entry(testutil.U64Bytes(0), testutil.U16Type())
	require.NoError(t, err)
	defer handle.Release()
	require.NoError(t, handle.UpdateWithCopy(testutil.U16Bytes(1234)))

	require.NoError(t, m.Poll(ctx))
	updates := collectEvents(t, sub, 1)
	assert.Equal(t, uint32(0), updates[0].EntryID)
	assert.Equal(t, uint64(1), updates[0].Version)
	assert.Equal(t, "d204", updates[0].Value, "1234 little-endian, hex-encoded")
	assert.NotZero(t, updates[0].ObservedAtMs)
}

func TestSubscriptionClose(t *testing.T) {
	rdb, _ := setupMirrorTest(t)

	sub, err := Subscribe(context.Background(), rdb, "mirrored")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "events channel closes with the subscription")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}
}

func collectEvents(t *testing.T, sub *Subscription, n int) []*Event {
	t.Helper()
	events := make([]*Event, 0, n)
	for len(events) < n {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok, "subscription closed while waiting for events")
			events = append(events, ev)
		case err := <-sub.Errors():
			t.Fatalf("subscription error: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}
