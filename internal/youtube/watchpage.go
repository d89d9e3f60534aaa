package youtube

import (
	"context"
	"fmt"

	kkdai "github.com/kkdai/youtube/v2"
)

// WatchPage reads video details from the public watch page, without an API
// key. It backs up the Data API when the original of a chart entry is
// missing from a videos.list response.
type WatchPage struct {
	client kkdai.Client
}

func NewWatchPage() *WatchPage {
	return &WatchPage{}
}

func (w *WatchPage) Name() string { return "watch_page" }

// DurationSeconds returns the video's length. ok is false when the page does
// not report one.
func (w *WatchPage) DurationSeconds(ctx context.Context, videoID, _, _ string) (int, bool, error) {
	video, err := w.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return 0, false, fmt.Errorf("watch page %s: %w", videoID, err)
	}
	secs := int(video.Duration.Seconds())
	if secs <= 0 {
		return 0, false, nil
	}
	return secs, true, nil
}
