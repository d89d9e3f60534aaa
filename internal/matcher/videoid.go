package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"coverchart-srv/internal/models"
	"coverchart-srv/internal/parser"
	"coverchart-srv/internal/youtube"
)

const MatchedByYouTubeAPI = "youtube_api"

type VideoSearcher interface {
	Search(ctx context.Context, query string, order youtube.Order, maxResults int, opts ...youtube.SearchOption) ([]models.SearchItem, error)
}

type EntryStore interface {
	EntriesWithoutVideoID(ctx context.Context, snapshotID int64, limit int) ([]models.ChartEntry, error)
	SetEntryVideoID(ctx context.Context, snapshotID int64, rank int, videoID, matchedBy string) error
}

type MatchOptions struct {
	MaxItems      int
	BatchSize     int
	MaxResults    int
	MinSimilarity float64
	EntryPause    time.Duration
	BatchPause    time.Duration
}

func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		MaxItems:      20,
		BatchSize:     5,
		MaxResults:    5,
		MinSimilarity: 0.55,
		EntryPause:    time.Second,
		BatchPause:    2 * time.Second,
	}
}

type MatchResult struct {
	Matched          int  `json:"matched"`
	Total            int  `json:"total"`
	RateLimitReached bool `json:"rate_limit_reached"`
}

// VideoIDMatcher fills in the official video id of chart entries that were
// scraped without one.
type VideoIDMatcher struct {
	Search  VideoSearcher
	Store   EntryStore
	Options MatchOptions
	Logger  *slog.Logger
}

func NewVideoIDMatcher(search VideoSearcher, store EntryStore, opts MatchOptions, logger *slog.Logger) *VideoIDMatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoIDMatcher{Search: search, Store: store, Options: opts, Logger: logger}
}

// MatchSnapshot searches for every entry of the snapshot still lacking a video
// id, in rank order. A 429 from the API ends the run early; other per-entry
// failures are logged and skipped.
func (m *VideoIDMatcher) MatchSnapshot(ctx context.Context, snapshotID int64) (*MatchResult, error) {
	opts := m.Options
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}

	entries, err := m.Store.EntriesWithoutVideoID(ctx, snapshotID, opts.MaxItems)
	if err != nil {
		return nil, fmt.Errorf("load unmatched entries: %w", err)
	}

	res := &MatchResult{Total: len(entries)}
	for i, e := range entries {
		if i > 0 {
			pause := opts.EntryPause
			if i%opts.BatchSize == 0 {
				pause = opts.BatchPause
			}
			if err := youtube.Pause(ctx, pause); err != nil {
				return res, err
			}
		}

		id, err := m.matchEntry(ctx, e)
		if err != nil {
			if youtube.IsRateLimited(err) {
				m.Logger.Warn("youtube quota reached, stopping match run", "rank", e.Rank, "matched", res.Matched)
				res.RateLimitReached = true
				return res, nil
			}
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			m.Logger.Error("video id search failed", "rank", e.Rank, "artist", e.Artist, "title", e.Title, "err", err)
			continue
		}
		if id == "" {
			m.Logger.Info("no confident video match", "rank", e.Rank, "artist", e.Artist, "title", e.Title)
			continue
		}

		if err := m.Store.SetEntryVideoID(ctx, snapshotID, e.Rank, id, MatchedByYouTubeAPI); err != nil {
			return res, fmt.Errorf("save video id for rank %d: %w", e.Rank, err)
		}
		res.Matched++
		m.Logger.Info("matched video id", "rank", e.Rank, "artist", e.Artist, "title", e.Title, "video_id", id)
	}
	return res, nil
}

func (m *VideoIDMatcher) matchEntry(ctx context.Context, e models.ChartEntry) (string, error) {
	query := fmt.Sprintf("%s %s official music video", e.Artist, e.Title)
	items, err := m.Search.Search(ctx, query, youtube.OrderRelevance, m.Options.MaxResults, youtube.WithCategory(youtube.MusicCategoryID))
	if err != nil {
		return "", err
	}
	id, _ := BestVideoMatch(e.Artist, e.Title, items, m.Options.MinSimilarity)
	return id, nil
}

// BestVideoMatch picks the search result most similar to "artist title",
// comparing against both the cleaned video title and the channel-prefixed
// title. It returns "" when no result reaches minSimilarity.
func BestVideoMatch(artist, title string, items []models.SearchItem, minSimilarity float64) (string, float64) {
	seed := artist + " " + title

	var bestID string
	var best float64
	for _, it := range items {
		clean := parser.CleanSongTitle(it.Title)
		score := max(
			parser.Similarity(seed, clean),
			parser.Similarity(seed, it.ChannelTitle+" "+clean),
		)
		if score > best {
			best = score
			bestID = it.VideoID
		}
	}
	if best < minSimilarity {
		return "", best
	}
	return bestID, best
}
