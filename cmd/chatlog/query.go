package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Napageneral/chatlog/internal/config"
	"github.com/Napageneral/chatlog/internal/db"
	"github.com/Napageneral/chatlog/internal/runs"
	"github.com/Napageneral/chatlog/internal/search"
	"github.com/Napageneral/chatlog/internal/stats"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config and data directories, default config, and an empty store",
		RunE: func(cmd *cobra.Command, args []string) error {
			type Result struct {
				OK         bool   `json:"ok"`
				Message    string `json:"message,omitempty"`
				ConfigDir  string `json:"config_dir"`
				DataDir    string `json:"data_dir"`
				ConfigPath string `json:"config_path"`
				DBPath     string `json:"db_path"`
			}

			configDir, err := config.GetConfigDir()
			if err != nil {
				return fmt.Errorf("failed to resolve config directory: %w", err)
			}
			dataDir, err := config.GetDataDir()
			if err != nil {
				return fmt.Errorf("failed to resolve data directory: %w", err)
			}
			for _, dir := range []string{configDir, dataDir} {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create %s: %w", dir, err)
				}
			}

			cfgPath := configPath
			if cfgPath == "" {
				cfgPath = filepath.Join(configDir, "config.yaml")
			}

			var cfg *config.Config
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				cfg = config.Default()
				cfg.DBPath = db.DefaultPath(dataDir)
				if err := cfg.Save(cfgPath); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
			} else {
				cfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}
			if dbFlag != "" {
				cfg.DBPath = dbFlag
			}

			database, err := db.Init(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			database.Close()

			result := Result{
				OK:         true,
				Message:    "Initialized",
				ConfigDir:  configDir,
				DataDir:    dataDir,
				ConfigPath: cfgPath,
				DBPath:     cfg.DBPath,
			}
			if jsonOutput {
				printJSON(result)
				return nil
			}
			fmt.Printf("✓ Config: %s\n", cfgPath)
			fmt.Printf("✓ Database: %s\n", cfg.DBPath)
			return nil
		},
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex [chat_history.db]",
		Short: "Rebuild the full-text index from stored messages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			type Result struct {
				OK      bool   `json:"ok"`
				Message string `json:"message,omitempty"`
				DBPath  string `json:"db_path"`
				Indexed int64  `json:"indexed"`
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if len(args) > 0 {
				cfg.DBPath = args[0]
			}
			database, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := search.Rebuild(cmd.Context(), database)
			if err != nil {
				return fmt.Errorf("reindex failed: %w", err)
			}

			if jsonOutput {
				printJSON(Result{OK: true, DBPath: cfg.DBPath, Indexed: n})
				return nil
			}
			fmt.Printf("📝 Indexed %s messages in %s\n", humanize.Comma(n), cfg.DBPath)
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var role, conversationID string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over message content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			database, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			resp, err := search.Search(cmd.Context(), database, search.Request{
				Query:          strings.Join(args, " "),
				Role:           role,
				ConversationID: conversationID,
				Limit:          limit,
			})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if jsonOutput {
				printJSON(resp)
				return nil
			}
			if len(resp.Hits) == 0 && len(resp.Titles) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, c := range resp.Titles {
				fmt.Printf("[%s] %s %s (title)\n", c.CreateTime.Format("2006-01-02"), c.Title, c.ConversationID)
			}
			for _, h := range resp.Hits {
				fmt.Printf("[%s] %s (%s) %s\n", h.CreateTime.Format("2006-01-02"), h.ConversationTitle, h.Role, h.MessageID)
				fmt.Printf("    %s\n", h.Snippet)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Only match messages with this role (user or assistant)")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Only match messages in this conversation")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum hits")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store totals, conversations per month, and tag counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			database, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			summary, err := stats.Collect(cmd.Context(), database)
			if err != nil {
				return fmt.Errorf("failed to collect stats: %w", err)
			}

			if jsonOutput {
				printJSON(summary)
				return nil
			}
			fmt.Printf("Conversations: %s\n", humanize.Comma(int64(summary.Conversations)))
			fmt.Printf("Messages:      %s\n", humanize.Comma(int64(summary.Messages)))
			fmt.Printf("Characters:    %s\n", humanize.Comma(summary.Characters))
			fmt.Printf("Avg messages:  %.1f per conversation\n", summary.AvgMessages)
			if summary.MostActive != nil {
				fmt.Printf("Most active:   %s (%d conversations)\n", summary.MostActive.Month, summary.MostActive.Count)
			}
			if len(summary.ByMonth) > 0 {
				fmt.Println("\nBy month:")
				for _, m := range summary.ByMonth {
					fmt.Printf("  %s  %d\n", m.Month, m.Count)
				}
			}
			if len(summary.ByTag) > 0 {
				fmt.Println("\nBy tag:")
				for _, t := range summary.ByTag {
					fmt.Printf("  %-16s %d\n", t.Tag, t.Count)
				}
			}
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print one conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			database, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			detail, err := stats.Conversation(cmd.Context(), database, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(detail)
				return nil
			}
			fmt.Println(detail.Title)
			fmt.Printf("%s · %s chars", detail.CreateTime.Local().Format("2006-01-02 15:04"), humanize.Comma(int64(detail.TotalCharCount)))
			if detail.Tags != "" {
				fmt.Printf(" · %s", detail.Tags)
			}
			fmt.Println()
			for _, m := range detail.Messages {
				fmt.Printf("\n--- %s (%s)\n%s\n", m.Role, m.CreateTime.Format("15:04:05"), m.Content)
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var label string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			database, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			convs, err := stats.Recent(cmd.Context(), database, limit, label)
			if err != nil {
				return fmt.Errorf("failed to list conversations: %w", err)
			}

			if jsonOutput {
				printJSON(convs)
				return nil
			}
			for _, c := range convs {
				fmt.Printf("%s  %-40s  %s\n", c.CreateTime.Format("2006-01-02"), c.Title, c.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "tag", "", "Only conversations with this tag")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum conversations")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent ingestion runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			database, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			list, err := runs.List(cmd.Context(), database, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if jsonOutput {
				printJSON(list)
				return nil
			}
			for _, r := range list {
				fmt.Printf("%s  %-9s  %s  conv=%d msg=%d skipped=%d\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.ID, r.Conversations, r.Messages, r.Skipped)
				if r.Error != nil {
					fmt.Printf("    error: %s\n", *r.Error)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum runs")
	return cmd
}
