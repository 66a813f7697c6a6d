package stats

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/chatlog/internal/db"
	"github.com/Napageneral/chatlog/internal/tag"
)

func seed(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "stats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	stmts := []string{
		`INSERT INTO conversations VALUES ('c1', 'Python scripts', '2024-01-05 10:00:00.000000', 'Coding', 9)`,
		`INSERT INTO conversations VALUES ('c2', 'SQL tuning', '2024-01-20 10:00:00.000000', 'Coding, Data', 4)`,
		`INSERT INTO conversations VALUES ('c3', 'Hello', '2024-03-01 10:00:00.000000', '', 0)`,
		`INSERT INTO messages VALUES ('m2', 'c1', 'assistant', 'later', '2024-01-05 10:00:02.000000')`,
		`INSERT INTO messages VALUES ('m1', 'c1', 'user', 'first', '2024-01-05 10:00:01.000000')`,
		`INSERT INTO messages VALUES ('m3', 'c2', 'user', 'slow', '2024-01-20 10:00:01.000000')`,
	}
	for _, s := range stmts {
		_, err := d.Exec(s)
		require.NoError(t, err)
	}
	return d
}

func TestCollect(t *testing.T) {
	d := seed(t)
	s, err := Collect(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Conversations)
	assert.Equal(t, 3, s.Messages)
	assert.Equal(t, int64(13), s.Characters)
	assert.InDelta(t, 1.0, s.AvgMessages, 1e-9)
	require.NotNil(t, s.MostActive)
	assert.Equal(t, MonthCount{Month: "2024-01", Count: 2}, *s.MostActive)
	assert.Equal(t, []MonthCount{{Month: "2024-03", Count: 1}, {Month: "2024-01", Count: 2}}, s.ByMonth)
	assert.Equal(t, []tag.Count{{Tag: "Coding", Count: 2}, {Tag: "Data", Count: 1}}, s.ByTag)
}

func TestConversation(t *testing.T) {
	d := seed(t)
	detail, err := Conversation(context.Background(), d, "c1")
	require.NoError(t, err)

	assert.Equal(t, "Python scripts", detail.Title)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), detail.CreateTime)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "m1", detail.Messages[0].ID)
	assert.Equal(t, "m2", detail.Messages[1].ID)

	_, err = Conversation(context.Background(), d, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecent(t *testing.T) {
	d := seed(t)
	all, err := Recent(context.Background(), d, 0, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c3", all[0].ID)

	data, err := Recent(context.Background(), d, 10, "Data")
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, "c2", data[0].ID)

	coding, err := Recent(context.Background(), d, 1, "Coding")
	require.NoError(t, err)
	require.Len(t, coding, 1)
	assert.Equal(t, "c2", coding[0].ID)
}

func TestCollect_Empty(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer d.Close()

	s, err := Collect(context.Background(), d)
	require.NoError(t, err)
	assert.Zero(t, s.AvgMessages)
	assert.Nil(t, s.MostActive)
}
