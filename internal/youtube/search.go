package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"coverchart-srv/internal/models"
)

// Order is the search result ordering mode.
type Order string

const (
	OrderRelevance Order = "relevance"
	OrderViewCount Order = "viewCount"
)

type searchParams struct {
	categoryID string
}

type SearchOption func(*searchParams)

// WithCategory restricts results to one video category, e.g. MusicCategoryID.
func WithCategory(id string) SearchOption {
	return func(p *searchParams) { p.categoryID = id }
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search runs a keyword video search. Items missing an id, title, channel
// or publish time are dropped.
func (c *Client) Search(ctx context.Context, query string, order Order, maxResults int, opts ...SearchOption) ([]models.SearchItem, error) {
	var sp searchParams
	for _, o := range opts {
		o(&sp)
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("q", query)
	params.Set("order", string(order))
	params.Set("maxResults", strconv.Itoa(maxResults))
	if c.RegionCode != "" {
		params.Set("regionCode", c.RegionCode)
	}
	if c.RelevanceLanguage != "" {
		params.Set("relevanceLanguage", c.RelevanceLanguage)
	}
	if sp.categoryID != "" {
		params.Set("videoCategoryId", sp.categoryID)
	}

	body, err := c.get(ctx, ErrSearchFailure, "search", params)
	if err != nil {
		return nil, err
	}

	var res searchResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearchFailure, err)
	}

	out := make([]models.SearchItem, 0, len(res.Items))
	for _, it := range res.Items {
		if it.ID.VideoID == "" || it.Snippet.Title == "" || it.Snippet.ChannelTitle == "" || it.Snippet.PublishedAt == "" {
			continue
		}
		out = append(out, models.SearchItem{
			VideoID:      it.ID.VideoID,
			Title:        it.Snippet.Title,
			ChannelTitle: it.Snippet.ChannelTitle,
			PublishedAt:  it.Snippet.PublishedAt,
		})
	}
	return out, nil
}
