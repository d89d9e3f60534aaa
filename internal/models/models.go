package models

import "time"

// Rank-change markers that kworb prints for entries without a previous position.
const (
	RankChangeNew = "NEW"
	RankChangeRe  = "RE"
)

type ChartSnapshot struct {
	ID         int64     `json:"id"`
	WeekEnding string    `json:"week_ending"` // YYYY-MM-DD
	CreatedAt  time.Time `json:"created_at"`
}

type ChartEntry struct {
	SnapshotID     int64  `json:"snapshot_id"`
	Rank           int    `json:"rank"`
	Artist         string `json:"artist"`
	Title          string `json:"title"`
	VideoID        string `json:"video_id,omitempty"`
	RankChange     string `json:"rank_change,omitempty"`
	Streams        int64  `json:"streams"`
	StreamsDelta   *int64 `json:"streams_delta"`
	PeakRank       *int   `json:"peak_rank,omitempty"`
	WeeksOnChart   *int   `json:"weeks_on_chart,omitempty"`
	PeakMultiplier string `json:"peak_multiplier,omitempty"`
	TrackText      string `json:"track_text,omitempty"`
	MatchedBy      string `json:"matched_by,omitempty"`
}

// ChartData is one scraped or imported chart, before it gets a snapshot id.
type ChartData struct {
	WeekEnding string       `json:"week_ending"`
	Entries    []ChartEntry `json:"entries"`
}

// SearchItem is the lightweight stub returned by the keyword search endpoint.
type SearchItem struct {
	VideoID      string `json:"video_id"`
	Title        string `json:"title"`
	ChannelTitle string `json:"channel_title"`
	PublishedAt  string `json:"published_at"`
}

// CandidateVideoMetadata is the full attribute set of one video. Counts are nil
// when the platform hides or omits them.
type CandidateVideoMetadata struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	ChannelTitle    string   `json:"channel_title"`
	ChannelID       string   `json:"channel_id"`
	PublishedAt     string   `json:"published_at"`
	Duration        string   `json:"duration"` // ISO 8601, e.g. PT3M12S
	DurationSeconds *int     `json:"duration_seconds"`
	Tags            []string `json:"tags"`
	ViewCount       *int64   `json:"view_count"`
	LikeCount       *int64   `json:"like_count"`
	CommentCount    *int64   `json:"comment_count"`
	CategoryID      string   `json:"category_id"`
}

// Views returns the view count, treating a hidden count as zero.
func (m CandidateVideoMetadata) Views() int64 {
	if m.ViewCount == nil {
		return 0
	}
	return *m.ViewCount
}

type ScoredCandidate struct {
	VideoID string                  `json:"video_id"`
	Score   float64                 `json:"score"`
	Reason  string                  `json:"reason"`
	Meta    *CandidateVideoMetadata `json:"-"`
}

type CuratedCover struct {
	OriginalVideoID string    `json:"original_video_id"`
	CoverVideoID    string    `json:"cover_video_id"`
	CoverArtist     string    `json:"cover_artist"`
	CoverTitle      string    `json:"cover_title"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	ViewCount       int64     `json:"view_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}
