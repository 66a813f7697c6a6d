package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat_history.db")

	d, err := Init(path)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(d))
	require.NoError(t, d.Close())

	d, err = Init(path)
	require.NoError(t, err)
	defer d.Close()

	for _, name := range []string{"conversations", "messages", "messages_fts", "ingest_runs",
		"idx_conv_create_time", "idx_msg_conversation_id", "idx_msg_create_time"} {
		var n int
		err := d.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, name).Scan(&n)
		require.NoError(t, err)
		assert.Equalf(t, 1, n, "expected %s to exist once", name)
	}
}

func TestOpen_ForeignKeysEnforced(t *testing.T) {
	d, err := Init(filepath.Join(t.TempDir(), "fk.db"))
	require.NoError(t, err)
	defer d.Close()

	_, err = d.Exec(`INSERT INTO messages (id, conversation_id, role, content, create_time)
		VALUES ('m1', 'missing', 'user', 'hi', '2024-01-01 00:00:00.000000')`)
	assert.Error(t, err)
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 8, 9, 123456000, time.FixedZone("X", 3600))
	s := FormatTime(ts)
	assert.Equal(t, "2024-03-05 06:08:09.123456", s)

	back, err := ParseTime(s)
	require.NoError(t, err)
	assert.True(t, back.Equal(ts))
}
