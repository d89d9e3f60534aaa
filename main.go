package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"coverchart-srv/internal/catalog"
	"coverchart-srv/internal/config"
	"coverchart-srv/internal/database"
	"coverchart-srv/internal/discovery"
	"coverchart-srv/internal/kworb"
	"coverchart-srv/internal/matcher"
	"coverchart-srv/internal/youtube"
)

var rootCmd = &cobra.Command{
	Use:           "coverchart",
	Short:         "Discover fan covers of the songs on the weekly YouTube chart",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCollectCmd())
	rootCmd.AddCommand(newImportCmd())
	rootCmd.AddCommand(newMatchCmd())
	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newCoversCmd())
	rootCmd.AddCommand(newChartCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

// app holds the long-lived dependencies shared by the CLI and the HTTP API.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *database.Store
	yt        *youtube.Client // nil without an API key
	scraper   *kworb.Scraper
	durations []discovery.DurationSource
	matchOpts matcher.MatchOptions
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	store, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		scraper:   kworb.NewScraper(cfg.KworbURL, logger),
		matchOpts: matcher.DefaultMatchOptions(),
		durations: []discovery.DurationSource{
			youtube.NewWatchPage(),
			catalog.NewMusicBrainz(),
		},
	}

	if err := cfg.RequireYouTube(); err != nil {
		logger.Warn("discovery and video matching are disabled", "err", err)
	} else {
		yt := youtube.NewClient(cfg.YouTubeAPIKey)
		yt.RegionCode = cfg.YouTubeRegion
		yt.RelevanceLanguage = cfg.YouTubeLanguage
		a.yt = yt
	}

	if cfg.HasSpotify() {
		a.durations = append(a.durations, catalog.NewSpotify(ctx, cfg.SpotifyID, cfg.SpotifySecret))
	}

	logger.Debug("app loaded", "db", cfg.DBPath, "duration_sources", len(a.durations))
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) discoveryOptions() discovery.Options {
	opts := discovery.DefaultOptions()
	opts.LimitSongs = a.cfg.LimitSongs
	opts.TopK = a.cfg.TopK
	opts.Concurrency = a.cfg.Concurrency
	opts.LocalCoverKeyword = a.cfg.CoverKeyword
	return opts
}

// requireYouTube reports whether the platform client is usable.
func (a *app) requireYouTube() error {
	if err := a.cfg.RequireYouTube(); err != nil {
		return err
	}
	if a.yt == nil {
		return config.ErrMissingAPIKey
	}
	return nil
}

func (a *app) discoverer(opts discovery.Options) (*discovery.Discoverer, error) {
	if err := a.requireYouTube(); err != nil {
		return nil, err
	}
	scorer := matcher.NewScorer(matcher.ScorerConfig{
		MinTokenMatch:    a.cfg.MinTokenMatch,
		MinDurationRatio: a.cfg.MinDurationRatio,
		MaxDurationRatio: a.cfg.MaxDurationRatio,
	}, a.logger)

	d := discovery.New(a.store, a.yt, a.store, scorer, opts, a.logger)
	d.Durations = a.durations
	return d, nil
}

func (a *app) videoMatcher(opts matcher.MatchOptions) (*matcher.VideoIDMatcher, error) {
	if err := a.requireYouTube(); err != nil {
		return nil, err
	}
	return matcher.NewVideoIDMatcher(a.yt, a.store, opts, a.logger), nil
}

type collectResult struct {
	SnapshotID int64                `json:"snapshot_id"`
	WeekEnding string               `json:"week_ending"`
	Entries    int                  `json:"entries"`
	Match      *matcher.MatchResult `json:"match,omitempty"`
}

// collect scrapes and stores this week's chart, then looks up video ids for
// up to matchLimit entries when the YouTube API is configured.
func (a *app) collect(ctx context.Context, matchLimit int) (*collectResult, error) {
	data, err := a.scraper.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	id, n, err := a.store.SaveChart(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("save chart: %w", err)
	}
	a.logger.Info("chart saved", "snapshot_id", id, "week_ending", data.WeekEnding, "entries", n)

	res := &collectResult{SnapshotID: id, WeekEnding: data.WeekEnding, Entries: n}
	if a.yt == nil || matchLimit <= 0 {
		return res, nil
	}

	opts := a.matchOpts
	opts.MaxItems = matchLimit
	m, err := a.videoMatcher(opts)
	if err != nil {
		return nil, err
	}
	res.Match, err = m.MatchSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("match video ids: %w", err)
	}
	return res, nil
}

// matchLatest fills in missing video ids on the most recent snapshot.
func (a *app) matchLatest(ctx context.Context, opts matcher.MatchOptions) (*matcher.MatchResult, error) {
	m, err := a.videoMatcher(opts)
	if err != nil {
		return nil, err
	}
	snap, err := a.store.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return m.MatchSnapshot(ctx, snap.ID)
}
