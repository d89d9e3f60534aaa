package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"coverchart-srv/internal/models"
	"coverchart-srv/internal/parser"
)

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string   `json:"title"`
			ChannelTitle string   `json:"channelTitle"`
			ChannelID    string   `json:"channelId"`
			PublishedAt  string   `json:"publishedAt"`
			Tags         []string `json:"tags"`
			CategoryID   string   `json:"categoryId"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// FetchMetadata looks up full metadata for at most MaxIDsPerCall ids in one
// videos.list call. Items without an id are dropped. An empty id list makes
// no request.
func (c *Client) FetchMetadata(ctx context.Context, ids []string) ([]models.CandidateVideoMetadata, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxIDsPerCall {
		return nil, fmt.Errorf("%w: %d ids exceeds the %d per call limit", ErrMetadataFailure, len(ids), MaxIDsPerCall)
	}

	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("id", strings.Join(ids, ","))

	body, err := c.get(ctx, ErrMetadataFailure, "videos", params)
	if err != nil {
		return nil, err
	}

	var res videosResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMetadataFailure, err)
	}

	out := make([]models.CandidateVideoMetadata, 0, len(res.Items))
	for _, it := range res.Items {
		if it.ID == "" {
			continue
		}
		meta := models.CandidateVideoMetadata{
			ID:           it.ID,
			Title:        it.Snippet.Title,
			ChannelTitle: it.Snippet.ChannelTitle,
			ChannelID:    it.Snippet.ChannelID,
			PublishedAt:  it.Snippet.PublishedAt,
			Duration:     it.ContentDetails.Duration,
			Tags:         it.Snippet.Tags,
			ViewCount:    parseCount(it.Statistics.ViewCount),
			LikeCount:    parseCount(it.Statistics.LikeCount),
			CommentCount: parseCount(it.Statistics.CommentCount),
			CategoryID:   it.Snippet.CategoryID,
		}
		if meta.Tags == nil {
			meta.Tags = []string{}
		}
		if secs, ok := parser.DurationToSeconds(meta.Duration); ok {
			meta.DurationSeconds = &secs
		}
		out = append(out, meta)
	}
	return out, nil
}

// FetchMetadataBatched splits ids into chunks of MaxIDsPerCall and merges the
// results by id. Pace is waited after every chunk, the last one included.
func (c *Client) FetchMetadataBatched(ctx context.Context, ids []string) (map[string]models.CandidateVideoMetadata, error) {
	out := make(map[string]models.CandidateVideoMetadata, len(ids))
	for start := 0; start < len(ids); start += MaxIDsPerCall {
		end := start + MaxIDsPerCall
		if end > len(ids) {
			end = len(ids)
		}

		metas, err := c.FetchMetadata(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			out[m.ID] = m
		}

		if err := Pause(ctx, c.Pace); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMetadataFailure, err)
		}
	}
	return out, nil
}

// parseCount reads the API's decimal-string counters; blank or malformed
// values are treated as absent.
func parseCount(s string) *int64 {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
