package blackboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriter(t *testing.T) {
	t.Run("only one writer port at a time", func(t *testing.T) {
		store, _ := createTestStore(t, "exclusive")

		writer, err := store.NewWriter()
		require.NoError(t, err)

		_, err = store.NewWriter()
		assert.ErrorIs(t, err, ErrWriterSlotExhausted)
		assert.True(t, IsCapacityExhausted(err))

		// Closing the port frees the slot for a successor.
		require.NoError(t, writer.Close())
		second, err := store.NewWriter()
		require.NoError(t, err)
		assert.NotEqual(t, writer.ID(), second.ID())
		second.Close()
	})

	t.Run("slot is always zero", func(t *testing.T) {
		store, _ := createTestStore(t, "slot")
		writer, err := store.NewWriter()
		require.NoError(t, err)
		defer writer.Close()
		assert.Equal(t, 0, writer.Slot())
	})
}

func TestWriterEntry(t *testing.T) {
	store, _ := createTestStore(t, "entries")
	writer, err := store.NewWriter()
	require.NoError(t, err)
	defer writer.Close()

	t.Run("unknown key", func(t *testing.T) {
		_, err := writer.Entry(u64b(99), u16Type())
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("wrong value type", func(t *testing.T) {
		_, err := writer.Entry(u64b(0), u64Type())
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("second handle for the same entry is refused", func(t *testing.T) {
		handle, err := writer.Entry(u64b(0), u16Type())
		require.NoError(t, err)

		_, err = writer.Entry(u64b(0), u16Type())
		assert.ErrorIs(t, err, ErrHandleAlreadyExists)

		// A different entry is unaffected.
		other, err := writer.Entry(u64b(1), u64Type())
		require.NoError(t, err)
		other.Release()

		// Releasing makes the entry acquirable again.
		require.NoError(t, handle.Release())
		again, err := writer.Entry(u64b(0), u16Type())
		require.NoError(t, err)
		again.Release()
	})

	t.Run("closed port refuses new handles", func(t *testing.T) {
		store, _ := createTestStore(t, "closed-port")
		writer, err := store.NewWriter()
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		_, err = writer.Entry(u64b(0), u16Type())
		assert.ErrorIs(t, err, ErrPortClosed)
	})
}

func TestUpdateWithCopy(t *testing.T) {
	store, _ := createTestStore(t, "copy-path")
	writer, err := store.NewWriter()
	require.NoError(t, err)
	defer writer.Close()

	handle, err := writer.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	defer handle.Release()

	t.Run("each commit advances the version by one", func(t *testing.T) {
		assert.Equal(t, uint64(0), handle.Version())
		require.NoError(t, handle.UpdateWithCopy(u64b(100)))
		assert.Equal(t, uint64(1), handle.Version())
		require.NoError(t, handle.UpdateWithCopy(u64b(200)))
		assert.Equal(t, uint64(2), handle.Version())
	})

	t.Run("rejects wrong-size values", func(t *testing.T) {
		err := handle.UpdateWithCopy(u16b(1))
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	t.Run("refused while a loan is outstanding", func(t *testing.T) {
		loan, err := handle.LoanUninit()
		require.NoError(t, err)

		err = handle.UpdateWithCopy(u64b(300))
		assert.ErrorIs(t, err, ErrAlreadyLoaned)

		require.NoError(t, loan.Discard())
		require.NoError(t, handle.UpdateWithCopy(u64b(300)))
	})

	t.Run("refused after release", func(t *testing.T) {
		store, _ := createTestStore(t, "released")
		writer, err := store.NewWriter()
		require.NoError(t, err)
		defer writer.Close()
		handle, err := writer.Entry(u64b(1), u64Type())
		require.NoError(t, err)
		require.NoError(t, handle.Release())

		assert.ErrorIs(t, handle.UpdateWithCopy(u64b(1)), ErrHandleReleased)
		_, err = handle.LoanUninit()
		assert.ErrorIs(t, err, ErrHandleReleased)
	})
}

func TestLoanLifecycle(t *testing.T) {
	newHandle := func(t *testing.T, name string) *EntryHandleMut {
		t.Helper()
		store, _ := createTestStore(t, name)
		writer, err := store.NewWriter()
		require.NoError(t, err)
		t.Cleanup(func() { writer.Close() })
		handle, err := writer.Entry(u64b(1), u64Type())
		require.NoError(t, err)
		t.Cleanup(func() { handle.Release() })
		return handle
	}

	t.Run("loan, write, update", func(t *testing.T) {
		handle := newHandle(t, "loan-commit")

		loan, err := handle.LoanUninit()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), loan.SupersededVersion())
		assert.Len(t, loan.Bytes(), 8)

		require.NoError(t, loan.Write(u64b(42)))
		committed, err := loan.Update()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), committed.Version())
		assert.Equal(t, uint64(1), handle.Version())

		// The returned value leads back to the handle for the next loan.
		next, err := committed.Handle().LoanUninit()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), next.SupersededVersion())
		require.NoError(t, next.Discard())
	})

	t.Run("direct buffer mutation", func(t *testing.T) {
		store, _ := createTestStore(t, "loan-bytes")
		writer, err := store.NewWriter()
		require.NoError(t, err)
		defer writer.Close()
		handle, err := writer.Entry(u64b(1), u64Type())
		require.NoError(t, err)
		defer handle.Release()

		loan, err := handle.LoanUninit()
		require.NoError(t, err)
		copy(loan.Bytes(), u64b(7))
		_, err = loan.Update()
		require.NoError(t, err)

		reader, err := store.NewReader()
		require.NoError(t, err)
		defer reader.Close()
		view, err := reader.Entry(u64b(1), u64Type())
		require.NoError(t, err)
		defer view.Close()
		assert.Equal(t, u64b(7), view.Get().Bytes())
	})

	t.Run("only one loan at a time", func(t *testing.T) {
		handle := newHandle(t, "loan-single")

		loan, err := handle.LoanUninit()
		require.NoError(t, err)
		_, err = handle.LoanUninit()
		assert.ErrorIs(t, err, ErrAlreadyLoaned)
		require.NoError(t, loan.Discard())
	})

	t.Run("discard keeps the old value and version", func(t *testing.T) {
		handle := newHandle(t, "loan-discard")
		require.NoError(t, handle.UpdateWithCopy(u64b(10)))

		loan, err := handle.LoanUninit()
		require.NoError(t, err)
		require.NoError(t, loan.Write(u64b(999)))
		require.NoError(t, loan.Discard())

		assert.Equal(t, uint64(1), handle.Version(), "discard must not advance the version")
	})

	t.Run("consumed loans are dead", func(t *testing.T) {
		handle := newHandle(t, "loan-consumed")

		loan, err := handle.LoanUninit()
		require.NoError(t, err)
		_, err = loan.Update()
		require.NoError(t, err)

		assert.ErrorIs(t, loan.Write(u64b(1)), ErrLoanConsumed)
		_, err = loan.Update()
		assert.ErrorIs(t, err, ErrLoanConsumed)
		assert.ErrorIs(t, loan.Discard(), ErrLoanConsumed)

		discarded, err := handle.LoanUninit()
		require.NoError(t, err)
		require.NoError(t, discarded.Discard())
		_, err = discarded.Update()
		assert.ErrorIs(t, err, ErrLoanConsumed)
	})

	t.Run("release kills the outstanding loan", func(t *testing.T) {
		handle := newHandle(t, "loan-release")

		loan, err := handle.LoanUninit()
		require.NoError(t, err)
		require.NoError(t, loan.Write(u64b(999)))
		require.NoError(t, handle.Release())

		assert.ErrorIs(t, loan.Write(u64b(1)), ErrHandleReleased)
		_, err = loan.Update()
		assert.ErrorIs(t, err, ErrHandleReleased)
		assert.ErrorIs(t, loan.Discard(), ErrHandleReleased)
		assert.Equal(t, uint64(0), handle.Version(), "a dead loan must not publish")
	})

	t.Run("loan write rejects wrong sizes", func(t *testing.T) {
		handle := newHandle(t, "loan-size")

		loan, err := handle.LoanUninit()
		require.NoError(t, err)
		assert.ErrorIs(t, loan.Write(u16b(1)), ErrTypeMismatch)
		require.NoError(t, loan.Discard())
	})
}

// TestHandleExclusivityIsSegmentWide tests that the mutation-handle claim
// lives in the segment, not in the port: a handle whose port and store
// attachment are both gone still excludes writers attached elsewhere.
func TestHandleExclusivityIsSegmentWide(t *testing.T) {
	store, cfg := createTestStore(t, "segment-wide")
	writer, err := store.NewWriter()
	require.NoError(t, err)
	handle, err := writer.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	// A second attachment, as another process would hold, reclaims the
	// freed writer slot; the never-released handle still excludes it.
	other, err := Open(OpenConfig{Name: cfg.Name, KeyType: cfg.KeyType, RegistryRoot: cfg.RegistryRoot})
	require.NoError(t, err)
	defer other.Close()
	second, err := other.NewWriter()
	require.NoError(t, err)
	defer second.Close()

	_, err = second.Entry(u64b(1), u64Type())
	assert.ErrorIs(t, err, ErrHandleAlreadyExists)

	require.NoError(t, handle.Release())
	reclaimed, err := second.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	reclaimed.Release()
}

func TestWriterHandleSurvivesPortClose(t *testing.T) {
	store, _ := createTestStore(t, "survivor-writer")
	writer, err := store.NewWriter()
	require.NoError(t, err)

	handle, err := writer.Entry(u64b(1), u64Type())
	require.NoError(t, err)
	defer handle.Release()

	require.NoError(t, writer.Close())

	// The handle keeps committing after its port is gone.
	require.NoError(t, handle.UpdateWithCopy(u64b(77)))
	assert.Equal(t, uint64(1), handle.Version())

	// The freed slot can be reclaimed, but the surviving handle still holds
	// its entry exclusively.
	second, err := store.NewWriter()
	require.NoError(t, err)
	defer second.Close()
	_, err = second.Entry(u64b(1), u64Type())
	assert.ErrorIs(t, err, ErrHandleAlreadyExists)
}
