package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/fetcher"
	"github.com/pbaille/drift/internal/quotes"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func searchCmd() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search quotes by text, author or tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := loadQuotes()
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			var results []domain.Quote
			if query != "" {
				results = coll.Search(query)
			} else if tag == "" {
				return fmt.Errorf("give a query or --tag")
			} else {
				results = coll.All()
			}
			if tag != "" {
				results = withTag(results, domain.NormalizeTag(tag))
			}

			if len(results) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, q := range results {
				printQuoteLine(q)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", "", "only quotes carrying this tag")
	return cmd
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a quote in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id: %s", args[0])
			}
			coll, err := loadQuotes()
			if err != nil {
				return err
			}
			q, ok := coll.Get(id)
			if !ok {
				return fmt.Errorf("quote %d: %w", id, quotes.ErrNotFound)
			}

			fmt.Printf("#%d (%d of %d)\n\n%s\n\n", q.ID, coll.Index(q.ID)+1, coll.Len(), q.Text)
			fmt.Printf("Author:     %s\n", q.Author)
			if q.Year != nil {
				fmt.Printf("Year:       %d\n", *q.Year)
			}
			if q.Publication != nil {
				fmt.Printf("In:         %s\n", *q.Publication)
			}
			if q.BookAuthor != nil {
				fmt.Printf("Book by:    %s\n", *q.BookAuthor)
			}
			if q.CoverURL != nil {
				fmt.Printf("Cover:      %s\n", *q.CoverURL)
			}
			fmt.Printf("Confidence: %.2f\n", q.Confidence)
			if len(q.Tags) > 0 {
				fmt.Printf("Tags:       %s\n", strings.Join(q.Tags, ", "))
			}
			if len(q.WeightedTags) > 0 {
				fmt.Println("Weighted:")
				for _, tag := range q.WeightedTags.Keys() {
					fmt.Printf("  %-20s %.4f\n", tag, q.WeightedTags[tag])
				}
			}
			if q.NeedsReview {
				fmt.Printf("Review:     %s\n", q.Notes)
			}

			// the ledger is optional here
			s, err := getStore()
			if err != nil {
				logger.Debug("ledger unavailable", zap.Error(err))
				return nil
			}
			defer s.Close()
			if rec, err := s.ImageForQuote(q.ID); err == nil && rec != nil {
				fmt.Printf("Source:     %s (run %s, %s)\n",
					rec.Path, rec.RunID[:8], rec.ProcessedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
	return cmd
}

func reviewCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "review",
		Short: "List quotes flagged for review, least confident first",
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := loadQuotes()
			if err != nil {
				return err
			}

			queue := coll.ReviewQueue()
			if len(queue) == 0 {
				fmt.Println("Nothing to review.")
				return nil
			}
			shown := queue
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}
			for _, q := range shown {
				fmt.Printf("#%-5d %.2f  %s\n       %s\n", q.ID, q.Confidence, truncate(q.Text, 60), q.Notes)
			}
			fmt.Printf("\n%d of %d flagged quotes\n", len(shown), len(queue))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of quotes to show (0 for all)")
	return cmd
}

func coverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover",
		Short: "Manage book covers",
	}
	cmd.AddCommand(coverFetchCmd())
	cmd.AddCommand(coverKeepCmd())
	cmd.AddCommand(coverRemoveCmd())
	return cmd
}

func coverFetchCmd() *cobra.Command {
	var keep bool

	cmd := &cobra.Command{
		Use:   "fetch <id> <url>",
		Short: "Fetch a cover from an image or book page URL",
		Long: `Download the cover for a quote. A page URL is resolved through its
og:image or twitter:image tags. The cover waits in covers/pending until
kept, unless --keep is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id: %s", args[0])
			}
			if !fetcher.IsURL(args[1]) {
				return fmt.Errorf("not a URL: %s", args[1])
			}
			coll, err := loadQuotes()
			if err != nil {
				return err
			}
			if _, ok := coll.Get(id); !ok {
				return fmt.Errorf("quote %d: %w", id, quotes.ErrNotFound)
			}

			cover, err := fetcher.New().FetchCover(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			logger.Info("cover fetched",
				zap.Int("id", id),
				zap.String("source", cover.SourceURL),
				zap.Int("bytes", len(cover.Data)))

			if !keep {
				name, err := fetcher.SaveCover(filepath.Join(cfg.CoversDir(), fetcher.PendingDir), id, cover)
				if err != nil {
					return err
				}
				fmt.Printf("Pending cover %s from %s\n", name, cover.SourceURL)
				fmt.Printf("Run `drift cover keep %d` to use it\n", id)
				return nil
			}

			name, err := fetcher.SaveCover(cfg.CoversDir(), id, cover)
			if err != nil {
				return err
			}
			return setCover(coll, id, name)
		},
	}

	cmd.Flags().BoolVar(&keep, "keep", false, "use the cover right away")
	return cmd
}

func coverKeepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keep <id>",
		Short: "Use the pending cover of a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id: %s", args[0])
			}
			coll, err := loadQuotes()
			if err != nil {
				return err
			}
			if _, ok := coll.Get(id); !ok {
				return fmt.Errorf("quote %d: %w", id, quotes.ErrNotFound)
			}
			name, err := fetcher.PromotePending(cfg.CoversDir(), id)
			if err != nil {
				return err
			}
			return setCover(coll, id, name)
		},
	}
}

func coverRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove the cover of a quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid id: %s", args[0])
			}
			coll, err := loadQuotes()
			if err != nil {
				return err
			}
			if _, ok := coll.Get(id); !ok {
				return fmt.Errorf("quote %d: %w", id, quotes.ErrNotFound)
			}
			if err := fetcher.RemoveCover(cfg.CoversDir(), id); err != nil {
				return err
			}
			return setCover(coll, id, "")
		},
	}
}

// setCover points the quote at a stored cover file, or clears it when
// name is empty, and saves the collection
func setCover(coll *quotes.Collection, id int, name string) error {
	q, _ := coll.Get(id)
	if name == "" {
		q.CoverURL = nil
	} else {
		url := siteRelative(filepath.Join(cfg.CoversDir(), name))
		q.CoverURL = &url
	}
	if err := coll.Put(q); err != nil {
		return err
	}
	if err := coll.Save(cfg.QuotesPath()); err != nil {
		return err
	}
	if err := coll.SaveCSV(cfg.CSVPath()); err != nil {
		return err
	}
	if q.CoverURL != nil {
		fmt.Printf("Quote #%d cover: %s\n", id, *q.CoverURL)
	} else {
		fmt.Printf("Quote #%d cover removed\n", id)
	}
	return nil
}

func siteRelative(path string) string {
	rel, err := filepath.Rel(cfg.Site.Dir, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

func withTag(qs []domain.Quote, tag string) []domain.Quote {
	var out []domain.Quote
	for _, q := range qs {
		if _, ok := q.WeightedTags[tag]; ok {
			out = append(out, q)
			continue
		}
		for _, t := range q.TagNames() {
			if t == tag {
				out = append(out, q)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WeightedTags[tag] > out[j].WeightedTags[tag]
	})
	return out
}

func printQuoteLine(q domain.Quote) {
	flag := " "
	if q.NeedsReview {
		flag = "?"
	}
	fmt.Printf("#%-5d%s %-60s  %s\n", q.ID, flag, truncate(q.Text, 60), truncate(q.Author, 25))
}
