package runs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/chatlog/internal/db"
)

func TestStartFinishList(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer d.Close()
	ctx := context.Background()

	ok, err := Start(ctx, d, "conversations.json", "chat_history.db")
	require.NoError(t, err)
	require.NoError(t, Finish(ctx, d, ok, Counts{Conversations: 5, Messages: 12, Skipped: 1, Batches: 3}, nil))

	bad, err := Start(ctx, d, "broken.json", "chat_history.db")
	require.NoError(t, err)
	require.NoError(t, Finish(ctx, d, bad, Counts{Batches: 1}, errors.New("unexpected EOF")))

	pending, err := Start(ctx, d, "pending.json", "chat_history.db")
	require.NoError(t, err)

	list, err := List(ctx, d, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)

	byID := map[string]Run{}
	for _, r := range list {
		byID[r.ID] = r
	}

	assert.Equal(t, StatusSucceeded, byID[ok].Status)
	assert.Equal(t, 5, byID[ok].Conversations)
	assert.Equal(t, 12, byID[ok].Messages)
	assert.Equal(t, 1, byID[ok].Skipped)
	assert.Equal(t, 3, byID[ok].Batches)
	assert.NotNil(t, byID[ok].FinishedAt)
	assert.Nil(t, byID[ok].Error)

	assert.Equal(t, StatusFailed, byID[bad].Status)
	require.NotNil(t, byID[bad].Error)
	assert.Equal(t, "unexpected EOF", *byID[bad].Error)

	assert.Equal(t, StatusRunning, byID[pending].Status)
	assert.Nil(t, byID[pending].FinishedAt)
	// Same-second starts fall back to insertion order.
	assert.Equal(t, pending, list[0].ID)
}

func TestFinish_UnknownRun(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer d.Close()

	err = Finish(context.Background(), d, "missing", Counts{}, nil)
	assert.Error(t, err)
}
