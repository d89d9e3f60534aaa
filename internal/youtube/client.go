// Package youtube wraps the YouTube Data API v3 search and videos.list
// endpoints used to discover cover candidates.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

	// MaxIDsPerCall is the videos.list page limit.
	MaxIDsPerCall = 50

	// DefaultPace separates consecutive metadata chunks.
	DefaultPace = 120 * time.Millisecond

	// MusicCategoryID is the platform's "Music" video category.
	MusicCategoryID = "10"
)

var (
	ErrSearchFailure   = errors.New("youtube search failed")
	ErrMetadataFailure = errors.New("youtube videos.list failed")
)

// StatusError reports a non-success HTTP status. It unwraps to
// ErrSearchFailure or ErrMetadataFailure.
type StatusError struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Kind }

// IsRateLimited reports whether err carries an HTTP 429 from the API.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}

type Client struct {
	HTTPClient *http.Client
	// Limiter caps the request rate across every goroutine sharing the client.
	Limiter *rate.Limiter
	APIKey  string
	BaseURL string

	RegionCode        string
	RelevanceLanguage string

	// Pace is waited after every videos.list chunk in FetchMetadataBatched.
	Pace time.Duration
}

func NewClient(apiKey string) *Client {
	return &Client{
		HTTPClient:        &http.Client{Timeout: 15 * time.Second},
		Limiter:           rate.NewLimiter(rate.Every(100*time.Millisecond), 2),
		APIKey:            apiKey,
		BaseURL:           DefaultBaseURL,
		RegionCode:        "KR",
		RelevanceLanguage: "ko",
		Pace:              DefaultPace,
	}
}

// get issues a rate-limited GET against endpoint and returns the body of a
// 2xx response. Any other outcome is reported as kind.
func (c *Client) get(ctx context.Context, kind error, endpoint string, params url.Values) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", kind, err)
		}
	}

	params.Set("key", c.APIKey)
	u := strings.TrimRight(c.BaseURL, "/") + "/" + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", kind, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Kind: kind, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", kind, err)
	}
	return body, nil
}

// Pause waits d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func ThumbnailURL(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}
