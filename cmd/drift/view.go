package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pbaille/drift/internal/api"
	"github.com/pbaille/drift/internal/drift"
	"github.com/pbaille/drift/internal/publish"
	"github.com/pbaille/drift/internal/viewer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func browseCmd() *cobra.Command {
	var (
		quoteID int
		link    string
		delay   int
	)

	cmd := &cobra.Command{
		Use:   "browse [id]",
		Short: "Browse the collection by drifting between tags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := loadQuotes()
			if err != nil {
				return err
			}
			conns := loadConnections()
			primary, err := loadPrimaryTags()
			if err != nil {
				logger.Debug("using connection graph tags", zap.Error(err))
				primary = nil
			}

			startID, err := startQuote(args, quoteID, link)
			if err != nil {
				return err
			}
			opts := viewer.Options{StartID: startID}
			if delay > 0 {
				opts.SettleDelay = time.Duration(delay) * time.Millisecond
			}

			nav := drift.New(coll.All(), conns, primary)
			model := viewer.New(nav, opts)
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().IntVar(&quoteID, "q", 0, "open this quote directly")
	cmd.Flags().StringVar(&link, "url", "", "open the quote of a deep link (\"...?q=<id>\")")
	cmd.Flags().IntVar(&delay, "settle-ms", 0, "transition length in milliseconds")
	return cmd
}

// startQuote picks the quote to open from a positional id, --q or a deep
// link; 0 means the landing list
func startQuote(args []string, quoteID int, link string) (int, error) {
	switch {
	case len(args) == 1:
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return 0, fmt.Errorf("invalid id: %s", args[0])
		}
		return id, nil
	case quoteID > 0:
		return quoteID, nil
	case link != "":
		id, ok := drift.ParseDeepLink(link)
		if !ok {
			return 0, fmt.Errorf("no quote id in %q", link)
		}
		return id, nil
	}
	return 0, nil
}

func serveCmd() *cobra.Command {
	var (
		addr     string
		readOnly bool
		noWatch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the viewer with the editing API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if cmd.Flags().Changed("read-only") {
				cfg.Server.ReadOnly = readOnly
			}

			srv, err := api.New(api.Options{
				Addr:            addr,
				SiteDir:         cfg.Site.Dir,
				QuotesPath:      cfg.QuotesPath(),
				CSVPath:         cfg.CSVPath(),
				ConnectionsPath: cfg.ConnectionsPath(),
				CoversDir:       cfg.CoversDir(),
				ReadOnly:        cfg.Server.ReadOnly,
				Watch:           !noWatch,
				Logger:          logger,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Serving %s on http://localhost%s\n", cfg.Site.Dir, addr)
			if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "disable the editing endpoints")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload on file changes")
	return cmd
}

func publishCmd() *cobra.Command {
	var (
		out      string
		editable bool
		exclude  []string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Copy the site into a deployable directory",
		Long: `Copy the site directory into --out and write viewer.json. The public
deploy target leaves editing off; pass --editable for a private one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := publish.Publish(publish.Options{
				SiteDir:  cfg.Site.Dir,
				OutDir:   out,
				Editable: editable,
				Exclude:  exclude,
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			mode := "read-only"
			if editable {
				mode = "editable"
			}
			fmt.Printf("Published %d files (%d bytes, %d excluded) to %s [%s]\n",
				report.Files, report.Bytes, report.Skipped, out, mode)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "dist", "output directory")
	cmd.Flags().BoolVar(&editable, "editable", false, "enable the editing UI")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "extra glob patterns to leave out")
	return cmd
}
