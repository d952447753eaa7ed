package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pbaille/drift/internal/config"
	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/graph"
	"github.com/pbaille/drift/internal/quotes"
	"github.com/pbaille/drift/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	siteDir    string
	dbPath     string
	verbose    bool

	logger *zap.Logger
	cfg    *config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "drift",
		Short: "Quote collection pipeline and tag-drift viewer",
		Long: `drift extracts quotes from photographed book pages, weights their tags,
builds the tag connection graph and browses the collection by drifting
from tag to related tag.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zcfg := zap.NewProductionConfig()
			if verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = zcfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			cfg, err = config.NewLoader(logger).Load(configPath)
			if err != nil {
				return err
			}
			if siteDir != "" {
				cfg.Site.Dir = siteDir
			}
			if dbPath != "" {
				cfg.DBPath = dbPath
			}
			return cfg.Validate()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./drift.yaml)")
	rootCmd.PersistentFlags().StringVar(&siteDir, "site", "", "site directory holding quotes.json")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "extraction ledger path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(weightCmd())
	rootCmd.AddCommand(connectCmd())
	rootCmd.AddCommand(orphansCmd())
	rootCmd.AddCommand(browseCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(coverCmd())

	return rootCmd
}

func getStore() (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(cfg.DBPath)
}

func loadQuotes() (*quotes.Collection, error) {
	coll, skips, err := quotes.Load(cfg.QuotesPath(), logger)
	if err != nil {
		return nil, err
	}
	if len(skips) > 0 {
		fmt.Fprintf(os.Stderr, "(%d unreadable records skipped)\n", len(skips))
	}
	return coll, nil
}

// loadPrimaryTags reads the allow-list; without one, the tags of the
// current connection graph are used
func loadPrimaryTags() ([]string, error) {
	tags, err := graph.LoadAllowList(cfg.PrimaryTagsPath())
	if err == nil {
		return tags, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	conns, cerr := graph.LoadConnections(cfg.ConnectionsPath())
	if cerr != nil {
		return nil, fmt.Errorf("no primary tags: %w", err)
	}
	out := make([]string, 0, len(conns))
	for tag := range conns {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, nil
}

func loadConnections() domain.Connections {
	conns, err := graph.LoadConnections(cfg.ConnectionsPath())
	if err != nil {
		logger.Debug("no connection graph", zap.Error(err))
		return domain.Connections{}
	}
	return conns
}

func graphOptions() graph.Options {
	opts := graph.DefaultOptions()
	opts.TopK = cfg.Graph.TopK
	opts.ReciprocalRatio = cfg.Graph.ReciprocalRatio
	return opts
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
