package parser

import (
	"errors"
	"strings"
	"testing"
)

const kworbPage = `<html><head><title>kworb</title></head><body>
<span class="pagetitle">YouTube Weekly Chart - South Korea</span>
<p>Week ending 2025/12/11</p>
<table id="weeklytable">
<thead><tr><th>Pos</th><th>P+</th><th>Track</th><th>Wks</th><th>Pk</th><th>(x?)</th><th>Streams</th><th>Streams+</th></tr></thead>
<tbody>
<tr><td>2</td><td>NEW</td><td><div><a href="#">Rosé, Bruno Mars</a> - <a href="#">APT.</a></div></td><td>1</td><td>2</td><td></td><td>5,120,000</td><td></td></tr>
<tr><td>1</td><td>=</td><td><div>HUNTR/X - Golden</div></td><td>12</td><td>1</td><td>(x4)</td><td>6,064,962</td><td>+120,345</td></tr>
<tr><td>3</td><td>-2</td><td><div>Untitled Track</div></td><td>5</td><td>1</td><td></td><td>3,000,000</td><td>-45,000</td></tr>
<tr><td>4</td><td>RE</td><td></td><td>1</td><td>4</td><td></td><td>1</td><td>1</td></tr>
<tr><td>5</td><td>+1</td><td>short row</td></tr>
</tbody>
</table>
</body></html>`

func TestParseKworbChart(t *testing.T) {
	data, err := ParseKworbChart(strings.NewReader(kworbPage))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.WeekEnding != "2025-12-11" {
		t.Errorf("week ending: got %q, want 2025-12-11", data.WeekEnding)
	}
	if len(data.Entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(data.Entries))
	}

	first := data.Entries[0]
	if first.Rank != 1 || first.Artist != "HUNTR/X" || first.Title != "Golden" {
		t.Errorf("first: got %+v", first)
	}
	if first.Streams != 6064962 {
		t.Errorf("streams: got %d, want 6064962", first.Streams)
	}
	if first.StreamsDelta == nil || *first.StreamsDelta != 120345 {
		t.Errorf("streams delta: got %v, want 120345", first.StreamsDelta)
	}
	if first.PeakMultiplier != "(x4)" || first.RankChange != "=" {
		t.Errorf("multiplier/change: got %q/%q", first.PeakMultiplier, first.RankChange)
	}
	if first.WeeksOnChart == nil || *first.WeeksOnChart != 12 {
		t.Errorf("weeks: got %v, want 12", first.WeeksOnChart)
	}

	second := data.Entries[1]
	if second.Artist != "Rosé, Bruno Mars" || second.Title != "APT." {
		t.Errorf("second split: got %q / %q", second.Artist, second.Title)
	}
	if second.RankChange != "NEW" {
		t.Errorf("rank change: got %q, want NEW", second.RankChange)
	}
	if second.StreamsDelta != nil {
		t.Errorf("blank delta: got %d, want nil", *second.StreamsDelta)
	}

	third := data.Entries[2]
	if third.Artist != "Unknown" || third.Title != "Untitled Track" {
		t.Errorf("third split: got %q / %q", third.Artist, third.Title)
	}
	if third.StreamsDelta == nil || *third.StreamsDelta != -45000 {
		t.Errorf("negative delta: got %v", third.StreamsDelta)
	}
}

func TestParseKworbChart_NoTable(t *testing.T) {
	_, err := ParseKworbChart(strings.NewReader(`<html><body><p>maintenance</p></body></html>`))
	if !errors.Is(err, ErrTableNotFound) {
		t.Fatalf("err: got %v, want ErrTableNotFound", err)
	}
}

func TestParseKworbChart_NoWeekEnding(t *testing.T) {
	page := `<table id="weeklytable"><tr><td>1</td><td>NEW</td><td>A - B</td><td>1</td><td>1</td><td></td><td>10</td></tr></table>`
	data, err := ParseKworbChart(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.WeekEnding != "" {
		t.Errorf("week ending: got %q, want empty", data.WeekEnding)
	}
	if len(data.Entries) != 1 || data.Entries[0].StreamsDelta != nil {
		t.Fatalf("entries: got %+v", data.Entries)
	}
}
