package kworb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coverchart-srv/internal/parser"
)

const chartPage = `<html><body>
<span class="pagetitle">Week ending 2025/12/11</span>
<table id="weeklytable"><thead><tr><th>Pos</th></tr></thead><tbody>
<tr><td>1</td><td>NEW</td><td><div>HUNTR/X - Golden</div></td><td>1</td><td>1</td><td></td><td>6,064,962</td><td>+6,064,962</td></tr>
<tr><td>2</td><td>+1</td><td><div>BLACKPINK - JUMP</div></td><td>12</td><td>1</td><td>(x3)</td><td>4,100,000</td><td>-200,000</td></tr>
</tbody></table></body></html>`

func TestFetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(chartPage))
	}))
	defer srv.Close()

	data, err := NewScraper(srv.URL, nil).Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(gotUA, "Mozilla") {
		t.Errorf("user agent: got %q", gotUA)
	}
	if data.WeekEnding != "2025-12-11" {
		t.Errorf("week ending: got %q", data.WeekEnding)
	}
	if len(data.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(data.Entries))
	}
	if e := data.Entries[1]; e.Artist != "BLACKPINK" || e.Title != "JUMP" || *e.StreamsDelta != -200000 {
		t.Errorf("entry 2: got %+v", e)
	}
}

func TestFetch_DefaultsWeekEndingToToday(t *testing.T) {
	page := strings.Replace(chartPage, "Week ending 2025/12/11", "", 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer srv.Close()

	s := NewScraper(srv.URL, nil)
	s.Now = func() time.Time { return time.Date(2025, 12, 14, 9, 0, 0, 0, time.UTC) }
	data, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if data.WeekEnding != "2025-12-14" {
		t.Errorf("week ending: got %q, want 2025-12-14", data.WeekEnding)
	}
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/down" {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("<html><body>nothing here</body></html>"))
	}))
	defer srv.Close()

	if _, err := NewScraper(srv.URL+"/down", nil).Fetch(context.Background()); err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("status error: got %v", err)
	}
	if _, err := NewScraper(srv.URL+"/empty", nil).Fetch(context.Background()); !errors.Is(err, parser.ErrTableNotFound) {
		t.Errorf("missing table: got %v, want ErrTableNotFound", err)
	}
}
