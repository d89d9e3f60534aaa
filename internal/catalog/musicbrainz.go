package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"coverchart-srv/internal/parser"
)

const (
	musicBrainzBase = "https://musicbrainz.org/ws/2"
	// MusicBrainz requires a descriptive User-Agent
	musicBrainzUserAgent = "coverchart-srv/1.0 (chart cover discovery)"
)

type musicBrainzResponse struct {
	Recordings []struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		Length       int    `json:"length"` // milliseconds
		Score        int    `json:"score"`
		ArtistCredit []struct {
			Name string `json:"name"`
		} `json:"artist-credit"`
	} `json:"recordings"`
}

// MusicBrainz looks up recording lengths in the MusicBrainz catalog.
type MusicBrainz struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	BaseURL    string
	// MinScore is the search relevance floor (0-100).
	MinScore int
	// MinSimilarity applies to "artist title" of the recording.
	MinSimilarity float64
}

func NewMusicBrainz() *MusicBrainz {
	return &MusicBrainz{
		HTTPClient:    &http.Client{Timeout: 5 * time.Second},
		Limiter:       rate.NewLimiter(rate.Every(time.Second), 1), // 1 req/s per MB guidelines
		BaseURL:       musicBrainzBase,
		MinScore:      80,
		MinSimilarity: DefaultMinSimilarity,
	}
}

func (m *MusicBrainz) Name() string { return "musicbrainz" }

func (m *MusicBrainz) DurationSeconds(ctx context.Context, _, artist, title string) (int, bool, error) {
	if err := m.Limiter.Wait(ctx); err != nil {
		return 0, false, err
	}

	query := fmt.Sprintf("artist:\"%s\" AND recording:\"%s\"", artist, title)
	searchURL := fmt.Sprintf("%s/recording?query=%s&fmt=json&limit=5", m.BaseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("User-Agent", musicBrainzUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := m.HTTPClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("musicbrainz search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("musicbrainz search: status %d", resp.StatusCode)
	}

	var res musicBrainzResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, false, fmt.Errorf("musicbrainz decode: %w", err)
	}

	want := artist + " " + title
	for _, rec := range res.Recordings {
		if rec.Score < m.MinScore || rec.Length <= 0 {
			continue
		}
		credit := ""
		if len(rec.ArtistCredit) > 0 {
			credit = rec.ArtistCredit[0].Name
		}
		if parser.Similarity(want, credit+" "+rec.Title) < m.MinSimilarity {
			continue
		}
		return rec.Length / 1000, true, nil
	}
	return 0, false, nil
}
