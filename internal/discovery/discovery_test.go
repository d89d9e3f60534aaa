package discovery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"coverchart-srv/internal/database"
	"coverchart-srv/internal/models"
	"coverchart-srv/internal/youtube"
)

type fakeChart struct {
	snap    *models.ChartSnapshot
	entries []models.ChartEntry
}

func (f *fakeChart) LatestSnapshot(context.Context) (*models.ChartSnapshot, error) {
	if f.snap == nil {
		return nil, database.ErrNoChartsFound
	}
	return f.snap, nil
}

func (f *fakeChart) TopEntries(_ context.Context, _ int64, limit int) ([]models.ChartEntry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

type searchCall struct {
	query string
	order youtube.Order
	max   int
}

type fakeVideos struct {
	mu       sync.Mutex
	search   map[string][]models.SearchItem
	failOn   string
	meta     map[string]models.CandidateVideoMetadata
	searches []searchCall
	batches  [][]string

	// calls records when each external call started.
	calls []time.Time
	// delay holds each search open so overlapping songs can be observed.
	delay    time.Duration
	inFlight int
	peak     int
}

func (f *fakeVideos) Search(_ context.Context, query string, order youtube.Order, maxResults int, _ ...youtube.SearchOption) ([]models.SearchItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	f.inFlight++
	f.peak = max(f.peak, f.inFlight)
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	f.searches = append(f.searches, searchCall{query, order, maxResults})
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return nil, &youtube.StatusError{Kind: youtube.ErrSearchFailure, StatusCode: 500}
	}
	return f.search[query+"|"+string(order)], nil
}

func (f *fakeVideos) FetchMetadataBatched(_ context.Context, ids []string) (map[string]models.CandidateVideoMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, time.Now())
	f.batches = append(f.batches, append([]string(nil), ids...))
	out := make(map[string]models.CandidateVideoMetadata)
	for _, id := range ids {
		if m, ok := f.meta[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeVideos) searchesFor(artist string) []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []searchCall
	for _, c := range f.searches {
		if strings.HasPrefix(c.query, artist+" ") {
			out = append(out, c)
		}
	}
	return out
}

type memCovers struct {
	mu   sync.Mutex
	rows map[string]models.CuratedCover
}

func (m *memCovers) UpsertCuratedCover(_ context.Context, c models.CuratedCover) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string]models.CuratedCover{}
	}
	m.rows[c.OriginalVideoID+"/"+c.CoverVideoID] = c
	return nil
}

type fixedDuration struct {
	secs  int
	calls int
}

func (f *fixedDuration) Name() string { return "fixed" }

func (f *fixedDuration) DurationSeconds(context.Context, string, string, string) (int, bool, error) {
	f.calls++
	return f.secs, f.secs > 0, nil
}

func intp(n int) *int     { return &n }
func i64p(n int64) *int64 { return &n }

func meta(id, title, channel string, seconds int, views int64) models.CandidateVideoMetadata {
	m := models.CandidateVideoMetadata{ID: id, Title: title, ChannelTitle: channel, ViewCount: i64p(views)}
	if seconds > 0 {
		m.DurationSeconds = intp(seconds)
	}
	return m
}

func item(id, title, channel string) models.SearchItem {
	return models.SearchItem{VideoID: id, Title: title, ChannelTitle: channel, PublishedAt: "2025-11-01T00:00:00Z"}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Pace = -1
	return opts
}

// tempoVideos serves one song "A - Tempo" (orig1, 200s) whose searches return
// one genuine cover, a topic upload, a lyrics video and the original itself.
func tempoVideos() *fakeVideos {
	return &fakeVideos{
		search: map[string][]models.SearchItem{
			"A Tempo cover|relevance": {
				item("c1", "Tempo cover by X", "X Music"),
				item("c2", "Tempo official music video", "A - Topic"),
				item("orig1", "A - Tempo (Official Video)", "A"),
			},
			"A Tempo 커버|relevance": {
				item("c3", "Tempo lyrics", "Lyric Hub"),
				item("c1", "Tempo cover by X", "X Music"),
			},
		},
		meta: map[string]models.CandidateVideoMetadata{
			"orig1": meta("orig1", "A - Tempo (Official Video)", "A", 200, 5000000),
			"c1":    meta("c1", "Tempo cover by X", "X Music", 190, 10000),
			"c2":    meta("c2", "Tempo official music video", "A - Topic", 200, 900000),
			"c3":    meta("c3", "Tempo lyrics", "Lyric Hub", 195, 30000),
		},
	}
}

func TestRun_EndToEndPersistsOnlyGenuineCover(t *testing.T) {
	store, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	_, _, err = store.SaveChart(ctx, &models.ChartData{WeekEnding: "2025-12-11", Entries: []models.ChartEntry{
		{Rank: 1, Artist: "A", Title: "Tempo", VideoID: "orig1", RankChange: "NEW"},
	}})
	if err != nil {
		t.Fatalf("save chart: %v", err)
	}

	videos := tempoVideos()
	d := New(store, videos, store, nil, testOptions(), nil)
	summary, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Songs != 1 || summary.TotalSaved != 1 || len(summary.Failed) != 0 {
		t.Errorf("summary: got %+v", summary)
	}
	if r := summary.Results[0]; r.OriginalVideoID != "orig1" || r.Saved != 1 || r.Rank != 1 {
		t.Errorf("song result: got %+v", r)
	}

	covers, err := store.TopCovers(ctx, "orig1", 10)
	if err != nil {
		t.Fatalf("top covers: %v", err)
	}
	if len(covers) != 1 {
		t.Fatalf("covers: got %d, want 1 (%+v)", len(covers), covers)
	}
	c := covers[0]
	if c.CoverVideoID != "c1" || c.ViewCount != 10000 || c.CoverArtist != "X Music" || c.CoverTitle != "Tempo cover by X" {
		t.Errorf("cover: got %+v", c)
	}
	if c.ThumbnailURL != youtube.ThumbnailURL("c1") {
		t.Errorf("thumbnail: got %q", c.ThumbnailURL)
	}

	// the original is looked up up front and never fetched as a candidate
	if len(videos.batches) != 2 {
		t.Fatalf("metadata batches: got %d, want 2", len(videos.batches))
	}
	for _, id := range videos.batches[1] {
		if id == "orig1" {
			t.Error("original video fetched as a candidate")
		}
	}
}

func TestDiscoverSong_SearchPlan(t *testing.T) {
	videos := tempoVideos()
	d := New(&fakeChart{}, videos, &memCovers{}, nil, testOptions(), nil)

	if _, err := d.DiscoverSong(context.Background(), models.ChartEntry{Rank: 1, Artist: "A", Title: "Tempo", VideoID: "orig1"}, 200); err != nil {
		t.Fatalf("discover: %v", err)
	}

	want := []searchCall{
		{"A Tempo cover", youtube.OrderRelevance, 25},
		{"A Tempo 커버", youtube.OrderRelevance, 25},
		{"A Tempo cover", youtube.OrderViewCount, 10},
	}
	if len(videos.searches) != len(want) {
		t.Fatalf("searches: got %+v, want %+v", videos.searches, want)
	}
	for i := range want {
		if videos.searches[i] != want[i] {
			t.Errorf("search %d: got %+v, want %+v", i, videos.searches[i], want[i])
		}
	}
}

func TestDiscoverSong_NoFallbackWithEnoughCandidates(t *testing.T) {
	videos := &fakeVideos{search: map[string][]models.SearchItem{}, meta: map[string]models.CandidateVideoMetadata{}}
	var items []models.SearchItem
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%02d", i)
		items = append(items, item(id, "Tempo cover", "Singer"))
		videos.meta[id] = meta(id, "Tempo cover", "Singer", 200, int64(100*(i+1)))
	}
	videos.search["A Tempo cover|relevance"] = items

	covers := &memCovers{}
	d := New(&fakeChart{}, videos, covers, nil, testOptions(), nil)
	saved, err := d.DiscoverSong(context.Background(), models.ChartEntry{Artist: "A", Title: "Tempo", VideoID: "orig1"}, 200)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	if len(videos.searches) != 2 {
		t.Errorf("searches: got %d, want 2", len(videos.searches))
	}
	if saved != 5 || len(covers.rows) != 5 {
		t.Fatalf("saved: got %d (%d rows), want 5", saved, len(covers.rows))
	}
	// most viewed five win since every other signal is equal
	for i := 5; i < 10; i++ {
		if _, ok := covers.rows[fmt.Sprintf("orig1/c%02d", i)]; !ok {
			t.Errorf("c%02d not saved", i)
		}
	}
}

func TestRun_IsolatesFailingSongs(t *testing.T) {
	videos := tempoVideos()
	videos.failOn = "Broken"
	videos.meta["orig2"] = meta("orig2", "B - Broken", "B", 210, 100)
	chart := &fakeChart{
		snap: &models.ChartSnapshot{ID: 7, WeekEnding: "2025-12-11"},
		entries: []models.ChartEntry{
			{Rank: 3, Artist: "B", Title: "Broken", VideoID: "orig2"},
			{Rank: 1, Artist: "A", Title: "Tempo", VideoID: "orig1"},
		},
	}

	var mu sync.Mutex
	var progressed []int
	d := New(chart, videos, &memCovers{}, nil, testOptions(), nil)
	d.Progress = func(r SongResult) {
		mu.Lock()
		progressed = append(progressed, r.Rank)
		mu.Unlock()
	}

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.SnapshotID != 7 || summary.Songs != 2 || summary.TotalSaved != 1 {
		t.Errorf("summary: got %+v", summary)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].Rank != 3 || summary.Failed[0].Error == "" {
		t.Errorf("failed: got %+v", summary.Failed)
	}
	if summary.Results[0].Rank != 3 || summary.Results[1].Rank != 1 {
		t.Errorf("results not in priority order: %+v", summary.Results)
	}
	if len(progressed) != 2 {
		t.Errorf("progress calls: got %v", progressed)
	}
}

func TestRun_FailFast(t *testing.T) {
	videos := tempoVideos()
	videos.failOn = "Tempo"
	chart := &fakeChart{
		snap:    &models.ChartSnapshot{ID: 1, WeekEnding: "2025-12-11"},
		entries: []models.ChartEntry{{Rank: 1, Artist: "A", Title: "Tempo", VideoID: "orig1"}},
	}
	opts := testOptions()
	opts.FailFast = true

	_, err := New(chart, videos, &memCovers{}, nil, opts, nil).Run(context.Background())
	if !errors.Is(err, youtube.ErrSearchFailure) {
		t.Fatalf("err: got %v, want ErrSearchFailure", err)
	}
}

func TestRun_NoCharts(t *testing.T) {
	_, err := New(&fakeChart{}, &fakeVideos{}, &memCovers{}, nil, testOptions(), nil).Run(context.Background())
	if !errors.Is(err, database.ErrNoChartsFound) {
		t.Fatalf("err: got %v, want ErrNoChartsFound", err)
	}
}

func TestRun_LimitSongs(t *testing.T) {
	videos := &fakeVideos{search: map[string][]models.SearchItem{}, meta: map[string]models.CandidateVideoMetadata{}}
	chart := &fakeChart{snap: &models.ChartSnapshot{ID: 1, WeekEnding: "2025-12-11"}}
	for i := 1; i <= 6; i++ {
		chart.entries = append(chart.entries, models.ChartEntry{Rank: i, Artist: fmt.Sprintf("Artist%d", i), Title: "Song", VideoID: fmt.Sprintf("o%d", i)})
	}
	opts := testOptions()
	opts.LimitSongs = 4

	summary, err := New(chart, videos, &memCovers{}, nil, opts, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Songs != 4 || len(summary.Results) != 4 {
		t.Errorf("songs: got %d, want 4", summary.Songs)
	}
	for i := 1; i <= 4; i++ {
		if got := len(videos.searchesFor(fmt.Sprintf("Artist%d", i))); got != 3 {
			t.Errorf("Artist%d searches: got %d, want 3", i, got)
		}
	}
	if got := len(videos.searchesFor("Artist5")); got != 0 {
		t.Errorf("Artist5 searched %d times beyond the song limit", got)
	}
}

func TestOriginalDurationFallback(t *testing.T) {
	videos := tempoVideos()
	noLen := videos.meta["orig1"]
	noLen.DurationSeconds = nil
	videos.meta["orig1"] = noLen
	// c1 at 190s is fine; a 400s candidate must be rejected once the fallback knows the original is 200s
	videos.search["A Tempo cover|relevance"] = append(videos.search["A Tempo cover|relevance"], item("c4", "Tempo cover full band", "Band Room"))
	videos.meta["c4"] = meta("c4", "Tempo cover full band", "Band Room", 400, 999999)

	chart := &fakeChart{
		snap:    &models.ChartSnapshot{ID: 1, WeekEnding: "2025-12-11"},
		entries: []models.ChartEntry{{Rank: 1, Artist: "A", Title: "Tempo", VideoID: "orig1"}},
	}
	covers := &memCovers{}
	src := &fixedDuration{secs: 200}
	d := New(chart, videos, covers, nil, testOptions(), nil)
	d.Durations = []DurationSource{src}

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if src.calls != 1 {
		t.Errorf("fallback calls: got %d, want 1", src.calls)
	}
	if _, ok := covers.rows["orig1/c4"]; ok {
		t.Error("over-long candidate saved")
	}
	if _, ok := covers.rows["orig1/c1"]; !ok {
		t.Error("genuine cover not saved")
	}
}

func TestRank_TieBreak(t *testing.T) {
	scored := []*models.ScoredCandidate{
		{VideoID: "b", Score: 5},
		{VideoID: "c", Score: 7},
		{VideoID: "a", Score: 5},
	}
	Rank(scored)
	got := []string{scored[0].VideoID, scored[1].VideoID, scored[2].VideoID}
	if strings.Join(got, ",") != "c,a,b" {
		t.Errorf("order: got %v, want [c a b]", got)
	}
}

func TestDiscoverSong_PacesExternalCalls(t *testing.T) {
	const pace = 40 * time.Millisecond

	videos := &fakeVideos{search: map[string][]models.SearchItem{}, meta: map[string]models.CandidateVideoMetadata{}}
	var items []models.SearchItem
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("c%02d", i)
		items = append(items, item(id, "Tempo cover", "Singer"))
		videos.meta[id] = meta(id, "Tempo cover", "Singer", 200, 100)
	}
	// enough relevance hits that no view-count search runs
	videos.search["A Tempo cover|relevance"] = items

	opts := testOptions()
	opts.Pace = pace
	d := New(&fakeChart{}, videos, &memCovers{}, nil, opts, nil)
	if _, err := d.DiscoverSong(context.Background(), models.ChartEntry{Artist: "A", Title: "Tempo", VideoID: "orig1"}, 200); err != nil {
		t.Fatalf("discover: %v", err)
	}

	if len(videos.calls) != 3 || len(videos.batches) != 1 {
		t.Fatalf("calls: got %d (%d metadata), want 2 searches and 1 metadata", len(videos.calls), len(videos.batches))
	}
	for i := 1; i < len(videos.calls); i++ {
		if gap := videos.calls[i].Sub(videos.calls[i-1]); gap < pace {
			t.Errorf("gap before call %d: got %v, want >= %v", i, gap, pace)
		}
	}
}

func TestRun_WorkerPoolBound(t *testing.T) {
	videos := &fakeVideos{
		search: map[string][]models.SearchItem{},
		meta:   map[string]models.CandidateVideoMetadata{},
		delay:  10 * time.Millisecond,
	}
	chart := &fakeChart{snap: &models.ChartSnapshot{ID: 1, WeekEnding: "2025-12-11"}}
	for i := 1; i <= 8; i++ {
		chart.entries = append(chart.entries, models.ChartEntry{Rank: i, Artist: fmt.Sprintf("Artist%d", i), Title: "Song", VideoID: fmt.Sprintf("o%d", i)})
	}
	opts := testOptions()
	opts.Concurrency = 2

	summary, err := New(chart, videos, &memCovers{}, nil, opts, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Songs != 8 {
		t.Errorf("songs: got %d, want 8", summary.Songs)
	}
	if videos.peak > opts.Concurrency {
		t.Errorf("peak concurrent searches: got %d, want <= %d", videos.peak, opts.Concurrency)
	}
	if videos.peak < 2 {
		t.Errorf("peak concurrent searches: got %d, songs never overlapped", videos.peak)
	}
}

func TestOptions_ZeroPaceUsesDefault(t *testing.T) {
	d := &Discoverer{}
	if got := d.options().Pace; got != DefaultOptions().Pace {
		t.Errorf("pace: got %v, want %v", got, DefaultOptions().Pace)
	}
	d.Options.Pace = -1
	if got := d.options().Pace; got != -1 {
		t.Errorf("negative pace: got %v, want -1", got)
	}
}
