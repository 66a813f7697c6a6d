package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Napageneral/chatlog/internal/config"
	"github.com/Napageneral/chatlog/internal/db"
	"github.com/Napageneral/chatlog/internal/logging"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
	configPath string
	dbFlag     string
)

// errReported marks a failure whose output has already been printed.
var errReported = errors.New("ingest failed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			printError(err.Error())
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chatlog [conversations.json] [chat_history.db]",
		Short: "Load a conversation archive export into a searchable SQLite store",
		Long: `Chatlog streams an exported conversation archive (a JSON array of
conversations) into SQLite, one record at a time, and builds a
full-text index over the message content.

Running chatlog without a subcommand is the same as "chatlog ingest".`,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runIngest,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/chatlog/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite store path (overrides config db_path)")
	addIngestFlags(rootCmd)

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newIngestCmd(),
		newReindexCmd(),
		newSearchCmd(),
		newStatsCmd(),
		newShowCmd(),
		newListCmd(),
		newRunsCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("chatlog %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	}
}

// loadConfig reads the config file and environment, then applies --db.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, logging disabled\n", err)
		return zap.NewNop()
	}
	return logger
}

// openStore opens an existing store for read commands; it never creates one.
func openStore(cfg *config.Config) (*sql.DB, error) {
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return nil, fmt.Errorf("database %s not found (run chatlog ingest first)", cfg.DBPath)
	}
	return db.Init(cfg.DBPath)
}

type errorResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// printError reports msg in the selected output mode.
func printError(msg string) {
	if jsonOutput {
		printJSON(errorResult{OK: false, Message: msg})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
