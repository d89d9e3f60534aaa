// Package discovery finds fan covers for the songs of the latest chart and
// stores the best candidates per song.
package discovery

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"coverchart-srv/internal/matcher"
	"coverchart-srv/internal/models"
	"coverchart-srv/internal/youtube"
)

type ChartSource interface {
	LatestSnapshot(ctx context.Context) (*models.ChartSnapshot, error)
	TopEntries(ctx context.Context, snapshotID int64, limit int) ([]models.ChartEntry, error)
}

type VideoAPI interface {
	Search(ctx context.Context, query string, order youtube.Order, maxResults int, opts ...youtube.SearchOption) ([]models.SearchItem, error)
	FetchMetadataBatched(ctx context.Context, ids []string) (map[string]models.CandidateVideoMetadata, error)
}

type CoverStore interface {
	UpsertCuratedCover(ctx context.Context, c models.CuratedCover) error
}

// DurationSource looks up an original's length when the video metadata has
// none. ok=false means the source had no confident answer.
type DurationSource interface {
	Name() string
	DurationSeconds(ctx context.Context, videoID, artist, title string) (int, bool, error)
}

type Options struct {
	LimitSongs          int
	TopK                int
	Concurrency         int
	MaxResultsRelevance int
	MaxResultsFallback  int
	// Pace separates consecutive external calls of one song. Zero means the
	// default; a negative value disables pacing.
	Pace              time.Duration
	LocalCoverKeyword string
	// FailFast aborts the whole run on the first song error instead of
	// recording it and moving on.
	FailFast bool
}

func DefaultOptions() Options {
	return Options{
		LimitSongs:          25,
		TopK:                5,
		Concurrency:         2,
		MaxResultsRelevance: 25,
		MaxResultsFallback:  10,
		Pace:                120 * time.Millisecond,
		LocalCoverKeyword:   "커버",
	}
}

type SongResult struct {
	Rank            int    `json:"rank"`
	Artist          string `json:"artist"`
	Title           string `json:"title"`
	OriginalVideoID string `json:"original_video_id"`
	Candidates      int    `json:"candidates"`
	Saved           int    `json:"saved"`
	Error           string `json:"error,omitempty"`
}

type RunSummary struct {
	SnapshotID int64        `json:"snapshot_id"`
	WeekEnding string       `json:"week_ending"`
	Songs      int          `json:"songs"`
	TotalSaved int          `json:"total_saved"`
	Results    []SongResult `json:"results"`
	Failed     []SongResult `json:"failed,omitempty"`
}

type Discoverer struct {
	Chart     ChartSource
	Videos    VideoAPI
	Covers    CoverStore
	Scorer    *matcher.Scorer
	Durations []DurationSource
	Options   Options
	Logger    *slog.Logger

	// Progress, when set, is called once per finished song from the worker
	// goroutines.
	Progress func(SongResult)
}

func New(chart ChartSource, videos VideoAPI, covers CoverStore, scorer *matcher.Scorer, opts Options, logger *slog.Logger) *Discoverer {
	if logger == nil {
		logger = slog.Default()
	}
	if scorer == nil {
		scorer = matcher.NewScorer(matcher.DefaultScorerConfig(), logger)
	}
	return &Discoverer{
		Chart:   chart,
		Videos:  videos,
		Covers:  covers,
		Scorer:  scorer,
		Options: opts,
		Logger:  logger,
	}
}

// Run processes the prioritized entries of the latest snapshot with a bounded
// worker pool and returns the per-song breakdown in priority order.
func (d *Discoverer) Run(ctx context.Context) (*RunSummary, error) {
	opts := d.options()

	snap, err := d.Chart.LatestSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := d.Chart.TopEntries(ctx, snap.ID, opts.LimitSongs)
	if err != nil {
		return nil, fmt.Errorf("load chart entries: %w", err)
	}

	summary := &RunSummary{SnapshotID: snap.ID, WeekEnding: snap.WeekEnding, Songs: len(entries)}
	if len(entries) == 0 {
		return summary, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.VideoID)
	}
	originals, err := d.Videos.FetchMetadataBatched(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch original metadata: %w", err)
	}

	d.Logger.Info("discovery started", "week_ending", snap.WeekEnding, "songs", len(entries), "concurrency", opts.Concurrency)

	results := make([]SongResult, len(entries))
	jobs := make(chan int)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range entries {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < opts.Concurrency; w++ {
		g.Go(func() error {
			for i := range jobs {
				e := entries[i]
				res := SongResult{Rank: e.Rank, Artist: e.Artist, Title: e.Title, OriginalVideoID: e.VideoID}

				var original *models.CandidateVideoMetadata
				if m, ok := originals[e.VideoID]; ok {
					original = &m
				}
				dur := d.originalDuration(gctx, e, original)

				candidates, saved, err := d.discoverSong(gctx, opts, e, dur)
				res.Candidates = candidates
				res.Saved = saved
				if err != nil {
					res.Error = err.Error()
					d.Logger.Error("cover discovery failed", "rank", e.Rank, "artist", e.Artist, "title", e.Title, "original_video_id", e.VideoID, "err", err)
					if opts.FailFast {
						results[i] = res
						return fmt.Errorf("rank %d %s - %s: %w", e.Rank, e.Artist, e.Title, err)
					}
				} else {
					d.Logger.Info("covers saved", "rank", e.Rank, "artist", e.Artist, "title", e.Title, "original_video_id", e.VideoID, "saved", saved)
				}

				results[i] = res
				if d.Progress != nil {
					d.Progress(res)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary.Results = results
	for _, r := range results {
		summary.TotalSaved += r.Saved
		if r.Error != "" {
			summary.Failed = append(summary.Failed, r)
		}
	}
	d.Logger.Info("discovery finished", "week_ending", snap.WeekEnding, "songs", summary.Songs, "saved", summary.TotalSaved, "failed", len(summary.Failed))
	return summary, nil
}

// DiscoverSong runs the search, scoring and persistence steps for a single
// chart entry. originalDurationSeconds <= 0 means unknown.
func (d *Discoverer) DiscoverSong(ctx context.Context, e models.ChartEntry, originalDurationSeconds int) (int, error) {
	_, saved, err := d.discoverSong(ctx, d.options(), e, originalDurationSeconds)
	return saved, err
}

func (d *Discoverer) discoverSong(ctx context.Context, opts Options, e models.ChartEntry, originalDuration int) (int, int, error) {
	if e.VideoID == "" {
		return 0, 0, errors.New("chart entry has no original video id")
	}

	candidates, err := d.searchCandidates(ctx, opts, e)
	if err != nil {
		return 0, 0, err
	}
	delete(candidates, e.VideoID)
	if len(candidates) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	if err := youtube.Pause(ctx, opts.Pace); err != nil {
		return len(candidates), 0, err
	}
	metas, err := d.Videos.FetchMetadataBatched(ctx, ids)
	if err != nil {
		return len(candidates), 0, fmt.Errorf("fetch candidate metadata: %w", err)
	}

	var scored []*models.ScoredCandidate
	for _, id := range ids {
		meta, ok := metas[id]
		if !ok {
			continue
		}
		if sc := d.Scorer.Score(e.Artist, e.Title, e.VideoID, originalDuration, &meta); sc != nil {
			scored = append(scored, sc)
		}
	}

	Rank(scored)
	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}

	saved := 0
	for _, sc := range scored {
		cover := models.CuratedCover{
			OriginalVideoID: e.VideoID,
			CoverVideoID:    sc.VideoID,
			CoverArtist:     sc.Meta.ChannelTitle,
			CoverTitle:      sc.Meta.Title,
			ThumbnailURL:    youtube.ThumbnailURL(sc.VideoID),
			ViewCount:       sc.Meta.Views(),
		}
		if err := d.Covers.UpsertCuratedCover(ctx, cover); err != nil {
			return len(candidates), saved, fmt.Errorf("save cover %s: %w", sc.VideoID, err)
		}
		d.Logger.Debug("cover saved", "original_video_id", e.VideoID, "cover_video_id", sc.VideoID, "score", sc.Score, "reason", sc.Reason)
		saved++
	}
	return len(candidates), saved, nil
}

// searchCandidates merges the English and localized relevance searches, and
// widens the pool with a view-count search when they return too few videos.
func (d *Discoverer) searchCandidates(ctx context.Context, opts Options, e models.ChartEntry) (map[string]models.SearchItem, error) {
	queries := []string{
		fmt.Sprintf("%s %s cover", e.Artist, e.Title),
		fmt.Sprintf("%s %s %s", e.Artist, e.Title, opts.LocalCoverKeyword),
	}

	merged := make(map[string]models.SearchItem)
	for i, q := range queries {
		if i > 0 {
			if err := youtube.Pause(ctx, opts.Pace); err != nil {
				return nil, err
			}
		}
		items, err := d.Videos.Search(ctx, q, youtube.OrderRelevance, opts.MaxResultsRelevance)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			merged[it.VideoID] = it
		}
	}

	if len(merged) < opts.TopK*2 {
		if err := youtube.Pause(ctx, opts.Pace); err != nil {
			return nil, err
		}
		items, err := d.Videos.Search(ctx, queries[0], youtube.OrderViewCount, opts.MaxResultsFallback)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			merged[it.VideoID] = it
		}
	}
	return merged, nil
}

// originalDuration prefers the platform metadata and falls back to the
// configured sources in order. It returns 0 when nothing knows the length.
func (d *Discoverer) originalDuration(ctx context.Context, e models.ChartEntry, meta *models.CandidateVideoMetadata) int {
	if meta != nil && meta.DurationSeconds != nil && *meta.DurationSeconds > 0 {
		return *meta.DurationSeconds
	}
	for _, src := range d.Durations {
		secs, ok, err := src.DurationSeconds(ctx, e.VideoID, e.Artist, e.Title)
		if err != nil {
			d.Logger.Warn("duration lookup failed", "source", src.Name(), "original_video_id", e.VideoID, "err", err)
			continue
		}
		if ok && secs > 0 {
			d.Logger.Debug("original duration from fallback", "source", src.Name(), "original_video_id", e.VideoID, "seconds", secs)
			return secs
		}
	}
	return 0
}

// Rank sorts by score descending, breaking ties by video id.
func Rank(scored []*models.ScoredCandidate) {
	slices.SortStableFunc(scored, func(a, b *models.ScoredCandidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.VideoID, b.VideoID)
	})
}

func (d *Discoverer) options() Options {
	opts := d.Options
	def := DefaultOptions()
	if opts.LimitSongs <= 0 {
		opts.LimitSongs = def.LimitSongs
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.MaxResultsRelevance <= 0 {
		opts.MaxResultsRelevance = def.MaxResultsRelevance
	}
	if opts.MaxResultsFallback <= 0 {
		opts.MaxResultsFallback = def.MaxResultsFallback
	}
	if opts.Pace == 0 {
		opts.Pace = def.Pace
	}
	if opts.LocalCoverKeyword == "" {
		opts.LocalCoverKeyword = def.LocalCoverKeyword
	}
	return opts
}
