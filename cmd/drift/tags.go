package main

import (
	"fmt"
	"strings"

	"github.com/pbaille/drift/internal/graph"
	"github.com/pbaille/drift/internal/weighting"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func weightCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "weight",
		Short: "Recompute tag weights for every quote",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := loadQuotes()
			if err != nil {
				return err
			}

			qs := coll.All()
			w := weighting.New(qs, weighting.Options{ExcludedTags: cfg.Weighting.ExcludedTags})
			weighted, report := w.Apply(qs)

			fmt.Printf("%d distinct tags. Top tags:\n", report.DistinctTags)
			for _, t := range report.TopTags {
				fmt.Printf("  %-20s %4d  %.4f\n", t.Tag, t.Count, t.CorpusScore)
			}
			for _, s := range report.Skipped {
				fmt.Printf("  skipped record %d (id %d): %s\n", s.Index, s.ID, s.Reason)
			}

			if dryRun {
				fmt.Printf("\n%d quotes would be updated (dry run)\n", report.Updated)
				return nil
			}

			coll.Replace(weighted)
			if err := coll.Save(cfg.QuotesPath()); err != nil {
				return err
			}
			if err := coll.SaveCSV(cfg.CSVPath()); err != nil {
				return err
			}
			logger.Info("weights updated",
				zap.Int("updated", report.Updated),
				zap.Int("skipped", len(report.Skipped)))
			fmt.Printf("\nUpdated %d quotes\n", report.Updated)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Build the tag connection graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := loadQuotes()
			if err != nil {
				return err
			}
			primary, err := graph.LoadAllowList(cfg.PrimaryTagsPath())
			if err != nil {
				return err
			}

			result := graph.Build(coll.All(), primary, graphOptions())
			if err := graph.SaveConnections(cfg.ConnectionsPath(), result.Connections); err != nil {
				return err
			}

			fmt.Printf("Wrote %d tags to %s\n", len(result.Connections), cfg.ConnectionsPath())
			if len(result.Dropped) > 0 {
				fmt.Printf("Primary tags without quotes: %s\n", strings.Join(result.Dropped, ", "))
			}
			if len(result.Orphans) > 0 {
				fmt.Printf("%d quotes have no primary tag (see `drift orphans`)\n", len(result.Orphans))
			}
			logger.Info("connections built",
				zap.Int("tags", len(result.Connections)),
				zap.Int("orphans", len(result.Orphans)),
				zap.Strings("dropped", result.Dropped))
			return nil
		},
	}
	return cmd
}

func orphansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List quotes that carry no primary tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := loadQuotes()
			if err != nil {
				return err
			}
			primary, err := loadPrimaryTags()
			if err != nil {
				return err
			}

			orphans := graph.Orphans(coll.All(), primary, graphOptions())
			if len(orphans) == 0 {
				fmt.Println("No orphans.")
				return nil
			}
			for _, o := range orphans {
				fmt.Printf("#%-5d %-25s %s\n", o.ID, truncate(o.Author, 25), strings.Join(o.Tags, ", "))
			}
			fmt.Printf("\n%d orphans\n", len(orphans))
			return nil
		},
	}
	return cmd
}
