package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"coverchart-srv/internal/models"
)

// ErrTableNotFound means the page has no #weeklytable element.
var ErrTableNotFound = errors.New("kworb: weekly table not found")

var weekEndingRegex = regexp.MustCompile(`(?i)Week ending\s+(\d{4})/(\d{2})/(\d{2})`)

const kworbTableID = "weeklytable"

// Column layout of the weekly table:
// 0 Pos, 1 P+, 2 Track, 3 Wks, 4 Pk, 5 (xN), 6 Streams, 7 Streams+
const (
	colPos = iota
	colRankChange
	colTrack
	colWeeks
	colPeak
	colMultiplier
	colStreams
	colStreamsDelta
)

// ParseWeekEnding finds "Week ending 2025/12/11" and returns "2025-12-11".
func ParseWeekEnding(page string) (string, bool) {
	m := weekEndingRegex.FindStringSubmatch(page)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]), true
}

// ParseKworbChart reads a kworb weekly insights page. WeekEnding is left empty
// when the page does not state it; entries are sorted by rank.
func ParseKworbChart(r io.Reader) (*models.ChartData, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read chart page: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse chart page: %w", err)
	}

	table := findByID(doc, kworbTableID)
	if table == nil {
		return nil, ErrTableNotFound
	}

	data := &models.ChartData{}
	data.WeekEnding, _ = ParseWeekEnding(string(raw))

	for _, tr := range bodyRows(table) {
		cells := childElements(tr, atom.Td)
		if len(cells) < colStreams+1 {
			continue
		}

		text := make([]string, len(cells))
		for i, td := range cells {
			text[i] = collapseSpaces(nodeText(td))
		}

		trackText := text[colTrack]
		if trackText == "" {
			continue
		}
		artist, title := SplitTrackText(trackText)

		e := models.ChartEntry{
			Artist:         artist,
			Title:          title,
			TrackText:      trackText,
			RankChange:     text[colRankChange],
			PeakMultiplier: text[colMultiplier],
		}

		if rank, ok := parseNumber(text[colPos]); ok {
			e.Rank = int(rank)
		} else {
			e.Rank = len(data.Entries) + 1
		}
		if n, ok := parseNumber(text[colWeeks]); ok {
			w := int(n)
			e.WeeksOnChart = &w
		}
		if n, ok := parseNumber(text[colPeak]); ok {
			p := int(n)
			e.PeakRank = &p
		}
		if n, ok := parseNumber(text[colStreams]); ok {
			e.Streams = n
		}
		if len(text) > colStreamsDelta {
			if n, ok := parseNumber(text[colStreamsDelta]); ok {
				e.StreamsDelta = &n
			}
		}

		data.Entries = append(data.Entries, e)
	}

	sort.SliceStable(data.Entries, func(i, j int) bool {
		return data.Entries[i].Rank < data.Entries[j].Rank
	})
	return data, nil
}

// parseNumber accepts "6,064,962", "+1,200" and "-3"; blank and non-numeric
// cells report ok=false.
func parseNumber(s string) (int64, bool) {
	t := strings.NewReplacer(",", "", "+", "", " ", "").Replace(strings.TrimSpace(s))
	if t == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// bodyRows returns the rows of every tbody in table. The HTML parser inserts
// a tbody when the markup omits it.
func bodyRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	for _, body := range childElements(table, atom.Tbody) {
		rows = append(rows, childElements(body, atom.Tr)...)
	}
	return rows
}

func childElements(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			out = append(out, c)
		}
	}
	return out
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
