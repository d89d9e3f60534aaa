package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"coverchart-srv/internal/matcher"
	"coverchart-srv/internal/models"
	"coverchart-srv/internal/parser"
	"coverchart-srv/internal/youtube"
)

const titleWidth = 40

// withApp loads the app for the duration of one command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chart and cover HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if port == "" {
					port = a.cfg.Port
				}
				srv := &http.Server{
					Addr:              ":" + port,
					Handler:           newRouter(a),
					ReadHeaderTimeout: 10 * time.Second,
					// discovery runs can take minutes; SSE keeps the connection busy
					WriteTimeout: 30 * time.Minute,
				}

				errCh := make(chan error, 1)
				go func() {
					a.logger.Info("coverchart listening", "addr", srv.Addr)
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
				}

				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default $PORT or 8080)")
	return cmd
}

func newCollectCmd() *cobra.Command {
	var matchLimit int

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Scrape this week's chart from kworb and store it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.collect(ctx, matchLimit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d entries for week ending %s (snapshot %d)\n", res.Entries, res.WeekEnding, res.SnapshotID)
				if res.Match != nil {
					printMatchResult(cmd, res.Match)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&matchLimit, "match", matcher.DefaultMatchOptions().MaxItems, "Look up video ids for this many entries (0 to skip)")
	return cmd
}

func newImportCmd() *cobra.Command {
	var weekEnding string

	cmd := &cobra.Command{
		Use:   "import <csv>",
		Short: "Import a chart from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := time.Parse(time.DateOnly, weekEnding); err != nil {
				return fmt.Errorf("invalid --week-ending %q: want YYYY-MM-DD", weekEnding)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := parser.ParseChartCSV(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				id, n, err := a.store.SaveChart(ctx, &models.ChartData{WeekEnding: weekEnding, Entries: entries})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries for week ending %s (snapshot %d)\n", n, weekEnding, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&weekEnding, "week-ending", "", "Chart week ending date (YYYY-MM-DD)")
	cmd.MarkFlagRequired("week-ending")
	return cmd
}

func newMatchCmd() *cobra.Command {
	opts := matcher.DefaultMatchOptions()

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Look up official video ids for latest chart entries missing one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.matchLatest(ctx, opts)
				if err != nil {
					return err
				}
				printMatchResult(cmd, res)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&opts.MaxItems, "max-items", opts.MaxItems, "Maximum entries to look up")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", opts.BatchSize, "Entries per batch before the longer pause")
	cmd.Flags().Float64Var(&opts.MinSimilarity, "min-similarity", opts.MinSimilarity, "Minimum title similarity to accept a result")
	return cmd
}

func newDiscoverCmd() *cobra.Command {
	var (
		limitSongs  int
		topK        int
		concurrency int
		failFast    bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find and store fan covers for the latest chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				opts := a.discoveryOptions()
				if cmd.Flags().Changed("limit-songs") {
					opts.LimitSongs = limitSongs
				}
				if cmd.Flags().Changed("top-k") {
					opts.TopK = topK
				}
				if cmd.Flags().Changed("concurrency") {
					opts.Concurrency = concurrency
				}
				opts.FailFast = failFast

				d, err := a.discoverer(opts)
				if err != nil {
					return err
				}
				summary, err := d.Run(ctx)
				if err != nil {
					return err
				}

				if format == "json" {
					return outputJSON(cmd, summary)
				}

				rows := make([]table.Row, 0, len(summary.Results))
				for _, r := range summary.Results {
					status := "ok"
					if r.Error != "" {
						status = truncate(r.Error, titleWidth)
					}
					rows = append(rows, table.Row{r.Rank, truncate(r.Artist, 20), truncate(r.Title, titleWidth), r.OriginalVideoID, r.Candidates, r.Saved, status})
				}
				outputTable(cmd, table.Row{"Rank", "Artist", "Title", "Original", "Candidates", "Saved", "Status"}, rows)
				fmt.Fprintf(cmd.OutOrStdout(), "Week ending %s: %d songs, %d covers saved, %d failed\n",
					summary.WeekEnding, summary.Songs, summary.TotalSaved, len(summary.Failed))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limitSongs, "limit-songs", 25, "Number of prioritized chart entries to process")
	cmd.Flags().IntVar(&topK, "top-k", 5, "Covers kept per song")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Songs processed at once")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Abort the run on the first failing song")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newCoversCmd() *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "covers <videoID>",
		Short: "Show stored covers of an original video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				covers, err := a.store.TopCovers(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if format == "json" {
					return outputJSON(cmd, covers)
				}

				outputTable(cmd, coverHeader, coverRows(covers))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum covers to show")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newChartCmd() *cobra.Command {
	var (
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Show the latest stored chart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				snap, err := a.store.LatestSnapshot(ctx)
				if err != nil {
					return err
				}
				entries, err := a.store.ChartEntries(ctx, snap.ID, limit)
				if err != nil {
					return err
				}
				if format == "json" {
					return outputJSON(cmd, models.ChartData{WeekEnding: snap.WeekEnding, Entries: entries})
				}

				rows := make([]table.Row, 0, len(entries))
				for _, e := range entries {
					delta := ""
					if e.StreamsDelta != nil {
						delta = strconv.FormatInt(*e.StreamsDelta, 10)
					}
					rows = append(rows, table.Row{e.Rank, e.RankChange, truncate(e.Artist, 20), truncate(e.Title, titleWidth), e.Streams, delta, e.VideoID})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Week ending %s\n", snap.WeekEnding)
				outputTable(cmd, table.Row{"Rank", "P+", "Artist", "Title", "Streams", "Delta", "Video"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries to show")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func printMatchResult(cmd *cobra.Command, res *matcher.MatchResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "Matched %d of %d entries", res.Matched, res.Total)
	if res.RateLimitReached {
		fmt.Fprint(cmd.OutOrStdout(), " (stopped: YouTube quota reached)")
	}
	fmt.Fprintln(cmd.OutOrStdout())
}

func checkFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
	}
}

func outputJSON(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

var coverHeader = table.Row{"Cover", "Channel", "Title", "Views", "Updated"}

func coverRows(covers []models.CuratedCover) []table.Row {
	rows := make([]table.Row, 0, len(covers))
	for _, c := range covers {
		rows = append(rows, table.Row{youtube.WatchURL(c.CoverVideoID), truncate(c.CoverArtist, 24), truncate(c.CoverTitle, titleWidth), c.ViewCount, c.UpdatedAt.Format("2006-01-02 15:04")})
	}
	return rows
}

func outputTable(cmd *cobra.Command, header table.Row, rows []table.Row) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.Render()
}

// truncate shortens s to width display cells; Hangul takes two cells each.
func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
