package staging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndoOfFreshStageRestoresEmptyWorkspace(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			b := build(t)
			undo := NewUndoLedger(b.store, b.ledger)

			_, _, err := b.store.Stage(ctx, keyA, "stu-1", "class-a")
			require.NoError(t, err)
			require.NoError(t, undo.Push(ctx, keyA, StageEntry{StudentID: "stu-1", ClassID: "class-a"}))

			msg, err := undo.PopAndInvert(ctx, keyA)
			require.NoError(t, err)
			assert.Contains(t, msg, "stu-1")

			all, err := b.store.All(ctx, keyA)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestUndoOfRestageMovesStudentBack(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			b := build(t)
			undo := NewUndoLedger(b.store, b.ledger)

			_, _, err := b.store.Stage(ctx, keyA, "stu-y", "class-a")
			require.NoError(t, err)
			require.NoError(t, undo.Push(ctx, keyA, StageEntry{StudentID: "stu-y", ClassID: "class-a"}))
			prior, _, err := b.store.Stage(ctx, keyA, "stu-y", "class-b")
			require.NoError(t, err)
			require.NoError(t, undo.Push(ctx, keyA, StageEntry{StudentID: "stu-y", ClassID: "class-b", PriorClassID: prior}))

			_, err = undo.PopAndInvert(ctx, keyA)
			require.NoError(t, err)

			classID, found, err := b.store.Get(ctx, keyA, "stu-y")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "class-a", classID)
		})
	}
}

func TestUndoOfUnstageRestoresMapping(t *testing.T) {
	ctx := context.Background()
	for name, build := range backends() {
		t.Run(name, func(t *testing.T) {
			b := build(t)
			undo := NewUndoLedger(b.store, b.ledger)

			_, _, err := b.store.Stage(ctx, keyA, "stu-1", "class-a")
			require.NoError(t, err)
			removed, _, err := b.store.Unstage(ctx, keyA, "stu-1")
			require.NoError(t, err)
			require.NoError(t, undo.Push(ctx, keyA, UnstageEntry{StudentID: "stu-1", ClassID: removed}))

			_, err = undo.PopAndInvert(ctx, keyA)
			require.NoError(t, err)

			classID, found, err := b.store.Get(ctx, keyA, "stu-1")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "class-a", classID)

			_, err = undo.PopAndInvert(ctx, keyA)
			assert.ErrorIs(t, err, ErrEmptyLedger)
		})
	}
}

func TestEntryRoundTripThroughEncoding(t *testing.T) {
	raw, err := encodeEntry(StageEntry{StudentID: "s", ClassID: "b", PriorClassID: "a"})
	require.NoError(t, err)
	entry, err := decodeEntry(raw)
	require.NoError(t, err)
	assert.Equal(t, OpStage, entry.Op())

	_, err = decodeEntry([]byte(`{"op":"MOVE","student_id":"s"}`))
	assert.Error(t, err)
}
