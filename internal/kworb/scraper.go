// Package kworb downloads the weekly YouTube chart published on kworb.net.
package kworb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"coverchart-srv/internal/models"
	"coverchart-srv/internal/parser"
)

const (
	DefaultURL = "https://kworb.net/youtube/insights/kr.html"
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type Scraper struct {
	HTTPClient *http.Client
	URL        string
	Logger     *slog.Logger
	// Now supplies the fallback week ending; tests pin it.
	Now func() time.Time
}

func NewScraper(url string, logger *slog.Logger) *Scraper {
	if url == "" {
		url = DefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		URL:        url,
		Logger:     logger,
		Now:        time.Now,
	}
}

// Fetch downloads and parses the chart page. A page without a "Week ending"
// line is dated today.
func (s *Scraper) Fetch(ctx context.Context) (*models.ChartData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch kworb chart: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch kworb chart: status %d", resp.StatusCode)
	}

	data, err := parser.ParseKworbChart(resp.Body)
	if err != nil {
		return nil, err
	}

	if data.WeekEnding == "" {
		data.WeekEnding = s.Now().Format(time.DateOnly)
		s.Logger.Warn("week ending not found on chart page, using today", "week_ending", data.WeekEnding)
	}
	s.Logger.Info("kworb chart fetched", "week_ending", data.WeekEnding, "entries", len(data.Entries))
	return data, nil
}
