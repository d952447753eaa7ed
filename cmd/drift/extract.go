package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pbaille/drift/internal/embedding"
	"github.com/pbaille/drift/internal/extractor"
	"github.com/pbaille/drift/internal/pipeline"
	"github.com/pbaille/drift/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func extractCmd() *cobra.Command {
	var (
		force       bool
		provider    string
		model       string
		noEmbedding bool
	)

	cmd := &cobra.Command{
		Use:   "extract <glob>...",
		Short: "Extract quotes from page photos",
		Long: `Send each matched image to the vision model and append the extracted
quote to the collection. Patterns support ** (e.g. "scans/**/*.jpg").
Images already in the ledger are skipped unless --force is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				provider = cfg.Extractor.Provider
			}
			if model == "" {
				model = cfg.Extractor.Model
			}

			ext, err := extractor.New(provider, model)
			if err != nil {
				return err
			}

			var embedder pipeline.Embedder
			if !noEmbedding {
				svc, err := embedding.New(embedding.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))
				switch {
				case errors.Is(err, embedding.ErrNoAPIKey):
					logger.Debug("near-duplicate detection disabled", zap.Error(err))
				case err != nil:
					return err
				default:
					embedder = svc
				}
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := pipeline.Run(ctx, pipeline.Options{
				Patterns:        args,
				QuotesPath:      cfg.QuotesPath(),
				CSVPath:         cfg.CSVPath(),
				Force:           force,
				ReviewThreshold: cfg.Extractor.ReviewThreshold,
				Extractor:       ext,
				Ledger:          s,
				Embedder:        embedder,
				Logger:          logger,
			})

			for _, r := range report.Results {
				switch r.Status {
				case pipeline.StatusSkipped:
					if r.Error != "" {
						fmt.Printf("  - %s (%s)\n", r.Path, r.Error)
					}
				case store.StatusFailed:
					fmt.Printf("  ! %s: %s\n", r.Path, truncate(r.Error, 80))
				default:
					line := fmt.Sprintf("  + #%d %s", r.QuoteID, r.Path)
					if r.DuplicateOf > 0 {
						line += fmt.Sprintf(" (duplicate of #%d?)", r.DuplicateOf)
					}
					if r.Status == store.StatusReview {
						line += " [review]"
					}
					fmt.Println(line)
				}
			}
			if report.RunID != "" {
				fmt.Printf("\nRun %s: %d added (%d to review), %d skipped, %d failed\n",
					report.RunID[:8], report.Added, report.Review, report.Skipped, report.Failed)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-extract images already in the ledger")
	cmd.Flags().StringVar(&provider, "provider", "", "vision provider: anthropic or gemini")
	cmd.Flags().StringVar(&model, "model", "", "model name (provider default if empty)")
	cmd.Flags().BoolVar(&noEmbedding, "no-embeddings", false, "skip near-duplicate detection")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent extraction runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs yet.")
				return nil
			}

			for _, r := range runs {
				finished := "running"
				if r.FinishedAt != nil {
					finished = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
				}
				fmt.Printf("%s  %s  %s/%s  %d processed, %d failed  (%s)\n",
					r.ID[:8], r.StartedAt.Format("2006-01-02 15:04"),
					r.Provider, r.Model, r.Processed, r.Failed, finished)
			}

			failed, err := s.FailedImages()
			if err != nil {
				return err
			}
			if len(failed) > 0 {
				fmt.Printf("\n%d images pending retry:\n", len(failed))
				for _, f := range failed {
					fmt.Printf("  %s: %s\n", f.Path, truncate(f.Notes, 60))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}
