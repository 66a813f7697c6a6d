package search

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/chatlog/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	stmts := []string{
		`INSERT INTO conversations VALUES ('c1', 'Go streaming', '2024-01-01 00:00:00.000000', 'Coding', 0)`,
		`INSERT INTO conversations VALUES ('c2', 'Dinner', '2024-02-01 00:00:00.000000', '', 0)`,
		`INSERT INTO messages VALUES ('m1', 'c1', 'user', 'How do I decode a JSON stream in Go?', '2024-01-01 00:00:01.000000')`,
		`INSERT INTO messages VALUES ('m2', 'c1', 'assistant', 'Use json.Decoder with Token and More to stream the array.', '2024-01-01 00:00:02.000000')`,
		`INSERT INTO messages VALUES ('m3', 'c2', 'user', 'Suggest a pasta recipe for dinner', '2024-02-01 00:00:01.000000')`,
	}
	for _, s := range stmts {
		_, err := d.Exec(s)
		require.NoError(t, err)
	}
	return d
}

func TestRebuild_IsIdempotent(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	n, err := Rebuild(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = Rebuild(ctx, d)
	require.NoError(t, err)

	var count int
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM messages_fts`).Scan(&count))
	assert.Equal(t, 3, count)
}

func TestSearch(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	_, err := Rebuild(ctx, d)
	require.NoError(t, err)

	resp, err := Search(ctx, d, Request{Query: "stream"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	for _, h := range resp.Hits {
		assert.Equal(t, "c1", h.ConversationID)
		assert.Equal(t, "Go streaming", h.ConversationTitle)
		assert.Contains(t, h.Snippet, "[stream]")
		assert.False(t, h.CreateTime.IsZero())
	}

	resp, err = Search(ctx, d, Request{Query: "stream", Role: "assistant"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "m2", resp.Hits[0].MessageID)

	resp, err = Search(ctx, d, Request{Query: "pasta dinner"})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, "m3", resp.Hits[0].MessageID)
}

func TestSearch_MatchesTitles(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	_, err := Rebuild(ctx, d)
	require.NoError(t, err)

	resp, err := Search(ctx, d, Request{Query: "STREAM"})
	require.NoError(t, err)
	require.Len(t, resp.Titles, 1)
	assert.Equal(t, "c1", resp.Titles[0].ConversationID)
	assert.Equal(t, "Go streaming", resp.Titles[0].Title)
	assert.Equal(t, 2024, resp.Titles[0].CreateTime.Year())

	// Title-only match: no message mentions "streaming".
	resp, err = Search(ctx, d, Request{Query: "streaming"})
	require.NoError(t, err)
	assert.Len(t, resp.Titles, 1)
	assert.Empty(t, resp.Hits)

	resp, err = Search(ctx, d, Request{Query: "G_ stream%"})
	require.NoError(t, err)
	assert.Empty(t, resp.Titles)

	resp, err = Search(ctx, d, Request{Query: "stream", Role: "user"})
	require.NoError(t, err)
	assert.Empty(t, resp.Titles)
	assert.Len(t, resp.Hits, 1)
}

func TestSearch_OperatorsAreLiteral(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	_, err := Rebuild(ctx, d)
	require.NoError(t, err)

	resp, err := Search(ctx, d, Request{Query: `json AND "Go" NEAR(`})
	require.NoError(t, err)
	assert.Equal(t, `"json" "AND" """Go""" "NEAR("`, resp.FTSQuery)
}

func TestSearch_RequiresQuery(t *testing.T) {
	d := openTestDB(t)
	_, err := Search(context.Background(), d, Request{Query: "   "})
	assert.Error(t, err)
}
