package blackboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReader(t *testing.T) {
	t.Run("multiple reader ports coexist", func(t *testing.T) {
		store, _ := createTestStore(t, "many-readers")

		first, err := store.NewReader()
		require.NoError(t, err)
		defer first.Close()
		second, err := store.NewReader()
		require.NoError(t, err)
		defer second.Close()

		assert.NotEqual(t, first.ID(), second.ID())
		assert.NotEqual(t, first.Slot(), second.Slot())
		assert.Equal(t, 2, store.ReadersInUse())
	})

	t.Run("capacity is enforced and slots are reusable", func(t *testing.T) {
		cfg := testServiceConfig(t, "reader-cap")
		cfg.MaxReaders = 2
		store, err := Create(cfg)
		require.NoError(t, err)
		defer store.Close()

		first, err := store.NewReader()
		require.NoError(t, err)
		second, err := store.NewReader()
		require.NoError(t, err)
		defer second.Close()

		_, err = store.NewReader()
		assert.ErrorIs(t, err, ErrReaderSlotExhausted)
		assert.True(t, IsCapacityExhausted(err))

		require.NoError(t, first.Close())
		third, err := store.NewReader()
		require.NoError(t, err)
		defer third.Close()
	})
}

func TestReaderEntry(t *testing.T) {
	store, _ := createTestStore(t, "reader-entries")
	reader, err := store.NewReader()
	require.NoError(t, err)
	defer reader.Close()

	t.Run("unknown key", func(t *testing.T) {
		_, err := reader.Entry(u64b(99), u16Type())
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.True(t, IsNotFound(err))
	})

	t.Run("wrong value type", func(t *testing.T) {
		_, err := reader.Entry(u64b(0), u64Type())
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("handles are not exclusive", func(t *testing.T) {
		a, err := reader.Entry(u64b(0), u16Type())
		require.NoError(t, err)
		defer a.Close()
		b, err := reader.Entry(u64b(0), u16Type())
		require.NoError(t, err)
		defer b.Close()
		assert.Equal(t, a.EntryID(), b.EntryID())
	})

	t.Run("closed port refuses new handles", func(t *testing.T) {
		store, _ := createTestStore(t, "reader-closed")
		reader, err := store.NewReader()
		require.NoError(t, err)
		require.NoError(t, reader.Close())

		_, err = reader.Entry(u64b(0), u16Type())
		assert.ErrorIs(t, err, ErrPortClosed)
	})
}

func TestEntryHandleGet(t *testing.T) {
	store, _ := createTestStore(t, "get")
	writer, err := store.NewWriter()
	require.NoError(t, err)
	defer writer.Close()
	reader, err := store.NewReader()
	require.NoError(t, err)
	defer reader.Close()

	mut, err := writer.Entry(u64b(0), u16Type())
	require.NoError(t, err)
	defer mut.Release()
	handle, err := reader.Entry(u64b(0), u16Type())
	require.NoError(t, err)
	defer handle.Close()

	// Before any commit the initial value is visible at version 0.
	initial := handle.Get()
	assert.Equal(t, uint64(0), initial.Version())
	assert.Equal(t, u16b(0), initial.Bytes())

	// Commit 1234, observe it on an existing handle.
	require.NoError(t, mut.UpdateWithCopy(u16b(1234)))
	first := handle.Get()
	assert.Equal(t, uint64(1), first.Version())
	assert.Equal(t, u16b(1234), first.Bytes())

	// Commit 4567, the same handle observes the new value.
	require.NoError(t, mut.UpdateWithCopy(u16b(4567)))
	second := handle.Get()
	assert.Equal(t, uint64(2), second.Version())
	assert.Equal(t, u16b(4567), second.Bytes())

	// Earlier snapshots are unaffected by later commits.
	assert.Equal(t, u16b(1234), first.Bytes())
	assert.Equal(t, uint64(1), first.Version())
}

func TestIsUpToDate(t *testing.T) {
	store, _ := createTestStore(t, "staleness")
	writer, err := store.NewWriter()
	require.NoError(t, err)
	defer writer.Close()
	reader, err := store.NewReader()
	require.NoError(t, err)
	defer reader.Close()

	mut, err := writer.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	defer mut.Release()
	handle, err := reader.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	defer handle.Close()

	snapshot := handle.Get()
	assert.True(t, handle.IsUpToDate(snapshot))

	require.NoError(t, mut.UpdateWithCopy(u64b(5)))
	assert.False(t, handle.IsUpToDate(snapshot), "a commit must mark earlier snapshots stale")

	fresh := handle.Get()
	assert.True(t, handle.IsUpToDate(fresh))

	// A loan that is never committed does not invalidate snapshots.
	loan, err := mut.LoanUninit()
	require.NoError(t, err)
	require.NoError(t, loan.Write(u64b(6)))
	assert.True(t, handle.IsUpToDate(fresh))
	require.NoError(t, loan.Discard())
	assert.True(t, handle.IsUpToDate(fresh))
}

func TestVersionMonotonicity(t *testing.T) {
	store, _ := createTestStore(t, "monotonic")
	writer, err := store.NewWriter()
	require.NoError(t, err)
	defer writer.Close()
	reader, err := store.NewReader()
	require.NoError(t, err)
	defer reader.Close()

	mut, err := writer.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	defer mut.Release()
	handle, err := reader.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	defer handle.Close()

	last := handle.Get().Version()
	for i := uint64(1); i <= 20; i++ {
		require.NoError(t, mut.UpdateWithCopy(u64b(i)))
		s := handle.Get()
		require.Equal(t, last+1, s.Version(), "versions advance by exactly one per commit")
		last = s.Version()
	}
}

// TestHandleSurvivesEverything covers the teardown ordering guarantee: a read
// handle keeps serving snapshots after its port, the writer, and the store
// attachment are all closed.
func TestHandleSurvivesEverything(t *testing.T) {
	store, _ := createTestStore(t, "survivor-reader")
	writer, err := store.NewWriter()
	require.NoError(t, err)
	reader, err := store.NewReader()
	require.NoError(t, err)

	mut, err := writer.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	handle, err := reader.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	defer handle.Close()

	require.NoError(t, mut.UpdateWithCopy(u64b(5)))

	require.NoError(t, mut.Release())
	require.NoError(t, writer.Close())
	require.NoError(t, reader.Close())
	require.NoError(t, store.Close())

	s := handle.Get()
	assert.Equal(t, u64b(5), s.Bytes())
	assert.Equal(t, uint64(1), s.Version())
	assert.True(t, handle.IsUpToDate(s))
}
