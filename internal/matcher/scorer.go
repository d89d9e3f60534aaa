package matcher

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"coverchart-srv/internal/models"
	"coverchart-srv/internal/parser"
	"coverchart-srv/internal/youtube"
)

type ScorerConfig struct {
	// MinTokenMatch is the lowest accepted fraction of seed title tokens found
	// in the candidate title.
	MinTokenMatch float64
	// Candidate/original duration ratio bounds, applied when both are known.
	MinDurationRatio float64
	MaxDurationRatio float64
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		MinTokenMatch:    0.45,
		MinDurationRatio: 0.6,
		MaxDurationRatio: 1.6,
	}
}

// Scorer filters cover candidates and ranks the survivors.
type Scorer struct {
	Config ScorerConfig
	Logger *slog.Logger
}

func NewScorer(cfg ScorerConfig, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{Config: cfg, Logger: logger}
}

// Score returns nil when the candidate fails a hard filter. An
// originalDurationSeconds of zero or less means the original's length is
// unknown, which skips the duration filter.
func (s *Scorer) Score(seedArtist, seedTitle, originalVideoID string, originalDurationSeconds int, meta *models.CandidateVideoMetadata) *models.ScoredCandidate {
	if meta == nil {
		return nil
	}
	ratio, reject := s.check(seedTitle, originalVideoID, originalDurationSeconds, meta)
	if reject != "" {
		if s.Logger != nil {
			s.Logger.Debug("candidate rejected", "video_id", meta.ID, "title", meta.Title, "reason", reject)
		}
		return nil
	}

	score := ratio * 8

	artist := parser.Normalize(seedArtist)
	if artist != "" && strings.Contains(parser.Normalize(meta.Title+" "+meta.ChannelTitle), artist) {
		score += 1
	}

	score += 1.5

	views := meta.Views()
	if views > 0 {
		score += 0.6 * math.Log10(float64(views))
	}

	if meta.CategoryID == youtube.MusicCategoryID {
		score += 0.3
	}

	return &models.ScoredCandidate{
		VideoID: meta.ID,
		Score:   score,
		Reason:  fmt.Sprintf("ratio=%.2f, views=%d", ratio, views),
		Meta:    meta,
	}
}

// check runs the hard filters cheapest first and returns the token match
// ratio, or a non-empty rejection reason.
func (s *Scorer) check(seedTitle, originalVideoID string, originalDuration int, meta *models.CandidateVideoMetadata) (float64, string) {
	if meta.ID == originalVideoID {
		return 0, "original video"
	}
	if meta.Title == "" || meta.ChannelTitle == "" {
		return 0, "missing title or channel"
	}
	if parser.LooksLikeNoise(meta.Title) {
		return 0, "noise keyword"
	}
	if !parser.HasCoverSignal(meta.Title) {
		return 0, "no cover signal"
	}
	if parser.IsTopicOrOfficial(meta.ChannelTitle) {
		return 0, "topic or official channel"
	}

	ratio := parser.TokenMatchRatio(seedTitle, meta.Title)
	if ratio < s.Config.MinTokenMatch {
		return ratio, fmt.Sprintf("token match %.2f", ratio)
	}

	if originalDuration > 0 && meta.DurationSeconds != nil && *meta.DurationSeconds > 0 {
		d := float64(*meta.DurationSeconds) / float64(originalDuration)
		if d < s.Config.MinDurationRatio || d > s.Config.MaxDurationRatio {
			return ratio, fmt.Sprintf("duration ratio %.2f", d)
		}
	}
	return ratio, ""
}
