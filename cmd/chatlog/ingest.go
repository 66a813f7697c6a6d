package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Napageneral/chatlog/internal/config"
	"github.com/Napageneral/chatlog/internal/db"
	"github.com/Napageneral/chatlog/internal/importer"
	"github.com/Napageneral/chatlog/internal/linearize"
	"github.com/Napageneral/chatlog/internal/logging"
	"github.com/Napageneral/chatlog/internal/metrics"
	"github.com/Napageneral/chatlog/internal/runs"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [conversations.json] [chat_history.db]",
		Short: "Stream an export into the store and rebuild the search index",
		Args:  cobra.MaximumNArgs(2),
		RunE:  runIngest,
	}
	addIngestFlags(cmd)
	return cmd
}

func addIngestFlags(cmd *cobra.Command) {
	cmd.Flags().Int("batch-size", config.DefaultBatchSize, "Conversations per transaction")
	cmd.Flags().String("order", "tree", "Message order: tree (follow parent/children links) or mapping (export key order)")
	cmd.Flags().String("time-fallback", "now", "Conversation time when create_time is missing: now or epoch")
	cmd.Flags().Bool("skip-index", false, "Do not rebuild the full-text index after loading")
	cmd.Flags().String("metrics-file", "", "Write Prometheus textfile metrics to this path")
}

// applyIngestFlags overrides config values with flags the user actually set.
func applyIngestFlags(cmd *cobra.Command, cfg *config.Config, args []string) {
	flags := cmd.Flags()
	if flags.Changed("batch-size") {
		cfg.BatchSize, _ = flags.GetInt("batch-size")
	}
	if flags.Changed("order") {
		cfg.Order, _ = flags.GetString("order")
	}
	if flags.Changed("time-fallback") {
		cfg.TimeFallback, _ = flags.GetString("time-fallback")
	}
	if flags.Changed("skip-index") {
		cfg.SkipIndex, _ = flags.GetBool("skip-index")
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile, _ = flags.GetString("metrics-file")
	}
	if len(args) > 0 {
		cfg.Input = args[0]
	}
	if len(args) > 1 {
		cfg.DBPath = args[1]
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	type Result struct {
		OK            bool    `json:"ok"`
		Message       string  `json:"message,omitempty"`
		RunID         string  `json:"run_id,omitempty"`
		Input         string  `json:"input"`
		DBPath        string  `json:"db_path"`
		Conversations int     `json:"conversations"`
		Messages      int     `json:"messages"`
		Skipped       int     `json:"skipped"`
		Batches       int     `json:"batches"`
		Indexed       int64   `json:"indexed"`
		Seconds       float64 `json:"seconds"`
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyIngestFlags(cmd, cfg, args)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	order, _ := linearize.ParseOrder(cfg.Order)
	fallback, _ := linearize.ParseTimeFallback(cfg.TimeFallback)

	logger := newLogger(cfg)
	defer logging.Sync(logger)

	if !jsonOutput {
		fmt.Println(strings.Repeat("=", 60))
		fmt.Println("Conversation archive ingest")
		fmt.Println(strings.Repeat("=", 60))
	}

	// Missing input must fail before the store is created or touched.
	info, err := importer.CheckInput(cfg.Input)
	if err != nil {
		return err
	}

	database, err := db.Init(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if !jsonOutput {
		fmt.Printf("✓ Database ready: %s\n", cfg.DBPath)
		fmt.Printf("📖 Parsing %s using streaming...\n", cfg.Input)
		fmt.Printf("   File size: %s\n", humanize.Bytes(uint64(info.Size())))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID, err := runs.Start(ctx, database, cfg.Input, cfg.DBPath)
	if err != nil {
		logger.Warn("failed to record ingest run", zap.Error(err))
	}

	m := metrics.NewIngest()
	res, ingestErr := importer.ImportFile(ctx, database, cfg.Input, importer.Options{
		BatchSize:    cfg.BatchSize,
		Order:        order,
		TimeFallback: fallback,
		SkipIndex:    cfg.SkipIndex,
		Logger:       logger.Named("importer"),
		Metrics:      m,
		Progress: func(p importer.Progress) {
			if !jsonOutput {
				fmt.Printf("   ✓ Processed %d conversations, %d messages...\n", p.Conversations, p.Messages)
			}
		},
	})

	if runID != "" {
		// The signal context may be cancelled; the ledger update must still land.
		counts := runs.Counts{Conversations: res.Conversations, Messages: res.Messages, Skipped: res.Skipped, Batches: res.Batches}
		if err := runs.Finish(context.Background(), database, runID, counts, ingestErr); err != nil {
			logger.Warn("failed to finish ingest run", zap.String("run_id", runID), zap.Error(err))
		}
	}

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("failed to write metrics file", zap.String("path", cfg.MetricsFile), zap.Error(err))
		}
	}

	result := Result{
		OK:            ingestErr == nil,
		RunID:         runID,
		Input:         cfg.Input,
		DBPath:        cfg.DBPath,
		Conversations: res.Conversations,
		Messages:      res.Messages,
		Skipped:       res.Skipped,
		Batches:       res.Batches,
		Indexed:       res.Indexed,
		Seconds:       res.Duration.Round(time.Millisecond).Seconds(),
	}

	if ingestErr != nil {
		result.Message = ingestErr.Error()
		if errors.Is(ingestErr, importer.ErrStream) {
			result.Message += fmt.Sprintf(" (%d conversations from %d committed batches kept)", res.Conversations, res.Batches)
		}
		if jsonOutput {
			printJSON(result)
		} else {
			fmt.Fprintf(os.Stderr, "✗ Error during parsing: %s\n", result.Message)
		}
		return fmt.Errorf("%w: %w", errReported, ingestErr)
	}

	result.Message = "Import completed successfully"
	if jsonOutput {
		printJSON(result)
		return nil
	}

	if !cfg.SkipIndex {
		fmt.Printf("📝 Full-text index rebuilt (%d messages)\n", res.Indexed)
	}
	fmt.Printf("\n✅ Import completed successfully in %s\n", res.Duration.Round(time.Millisecond))
	fmt.Printf("   Total conversations: %d\n", res.Conversations)
	fmt.Printf("   Total messages: %d\n", res.Messages)
	if res.Skipped > 0 {
		fmt.Printf("   ⚠ Skipped records: %d\n", res.Skipped)
	}
	fmt.Println(strings.Repeat("=", 60))
	return nil
}
