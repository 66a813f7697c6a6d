package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/chatlog/internal/config"
	"github.com/Napageneral/chatlog/internal/db"
	"github.com/Napageneral/chatlog/internal/importer"
	"github.com/Napageneral/chatlog/internal/runs"
	"github.com/Napageneral/chatlog/internal/stats"
)

func TestApplyIngestFlags_OnlyChangedFlagsOverride(t *testing.T) {
	cmd := newIngestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--order", "mapping", "--skip-index"}))

	cfg := config.Default()
	cfg.BatchSize = 250
	applyIngestFlags(cmd, cfg, []string{"export.json", "out.db"})

	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, "mapping", cfg.Order)
	assert.Equal(t, "now", cfg.TimeFallback)
	assert.True(t, cfg.SkipIndex)
	assert.Equal(t, "export.json", cfg.Input)
	assert.Equal(t, "out.db", cfg.DBPath)
}

func TestApplyIngestFlags_PositionalDefaults(t *testing.T) {
	cmd := newIngestCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--batch-size", "5"}))

	cfg := config.Default()
	applyIngestFlags(cmd, cfg, nil)

	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, config.DefaultInput, cfg.Input)
	assert.Equal(t, config.DefaultDBPath, cfg.DBPath)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"ingest", "init", "reindex", "search", "stats", "show", "list", "runs", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	assert.NotNil(t, root.Flags().Lookup("batch-size"))
	assert.NotNil(t, root.PersistentFlags().Lookup("json"))
}

func runRoot(t *testing.T, args ...string) error {
	t.Helper()
	t.Setenv("CHATLOG_CONFIG_DIR", t.TempDir())
	root := newRootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func TestRunIngest_MissingInputLeavesNoStore(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "chat_history.db")

	err := runRoot(t, filepath.Join(dir, "missing.json"), dbPath)
	assert.ErrorIs(t, err, importer.ErrInputNotFound)
	assert.NoFileExists(t, dbPath)
}

func TestRunIngest_Success(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "conversations.json")
	dbPath := filepath.Join(dir, "chat_history.db")
	require.NoError(t, os.WriteFile(input, []byte(`[
		{"id": "c1", "title": "SQL help", "create_time": 1700000000, "mapping": {
			"n": {"message": {"id": "m1", "author": {"role": "user"}, "content": "join two tables"}}}}
	]`), 0644))

	require.NoError(t, runRoot(t, input, dbPath))

	d, err := db.Init(dbPath)
	require.NoError(t, err)
	defer d.Close()

	var n int
	require.NoError(t, d.QueryRow(`SELECT COUNT(*) FROM messages_fts`).Scan(&n))
	assert.Equal(t, 1, n)

	list, err := runs.List(context.Background(), d, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, runs.StatusSucceeded, list[0].Status)
	assert.Equal(t, 1, list[0].Messages)
}

func TestRunIngest_StreamFailureFinishesRunBeforeReturning(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "conversations.json")
	dbPath := filepath.Join(dir, "chat_history.db")
	require.NoError(t, os.WriteFile(input, []byte(`[{"id": "c1", "mapping": {}}, {"id": "c2", "mapp`), 0644))

	err := runRoot(t, "--batch-size", "1", input, dbPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, errReported)
	assert.ErrorIs(t, err, importer.ErrStream)

	d, err := db.Init(dbPath)
	require.NoError(t, err)
	defer d.Close()

	list, err := runs.List(context.Background(), d, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, runs.StatusFailed, list[0].Status)
	assert.Equal(t, 1, list[0].Conversations)
	require.NotNil(t, list[0].Error)
}

func TestShow_UnknownConversationReturnsError(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chat_history.db")
	d, err := db.Init(dbPath)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	err = runRoot(t, "show", "nope", "--db", dbPath)
	assert.ErrorIs(t, err, stats.ErrNotFound)
}
