package parser

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"coverchart-srv/internal/models"
)

// canonical header mapping
var headerAliases = map[string]string{
	"rank":     "rank",
	"pos":      "rank",
	"position": "rank",

	"artist":      "artist",
	"artist_name": "artist",
	"performer":   "artist",

	"title":       "title",
	"track":       "title",
	"track_title": "title",
	"name":        "title",

	"video_id":   "video_id",
	"videoid":    "video_id",
	"youtube":    "video_id",
	"youtube_id": "video_id",

	"streams": "streams",
	"views":   "streams",

	"streams_delta": "streams_delta",
	"streams+":      "streams_delta",
	"delta":         "streams_delta",

	"rank_change": "rank_change",
	"p+":          "rank_change",
	"change":      "rank_change",

	"peak":      "peak",
	"pk":        "peak",
	"peak_rank": "peak",

	"weeks": "weeks",
	"wks":   "weeks",
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseChartCSV reads chart rows from a CSV export with a header row. Rows
// with neither title nor artist are skipped; a missing rank falls back to the
// row's position among kept rows.
func ParseChartCSV(r io.Reader) ([]models.ChartEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	// ---- Read header row ----
	rawHeaders, err := reader.Read()
	if err != nil {
		return nil, err
	}

	columnMap := make(map[int]string)
	for i, h := range rawHeaders {
		if canonical, ok := headerAliases[normalizeHeader(h)]; ok {
			columnMap[i] = canonical
		}
	}

	if len(columnMap) == 0 {
		return nil, errors.New("CSV has no recognizable columns")
	}

	var entries []models.ChartEntry

	// ---- Read rows ----
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		var e models.ChartEntry

		for i, v := range record {
			field, ok := columnMap[i]
			if !ok {
				continue
			}

			val := strings.TrimSpace(v)
			if val == "" {
				continue
			}

			switch field {
			case "rank":
				if n, ok := parseNumber(val); ok {
					e.Rank = int(n)
				}
			case "artist":
				e.Artist = val
			case "title":
				e.Title = val
			case "video_id":
				e.VideoID = val
			case "streams":
				if n, ok := parseNumber(val); ok {
					e.Streams = n
				}
			case "streams_delta":
				if n, ok := parseNumber(val); ok {
					e.StreamsDelta = &n
				}
			case "rank_change":
				e.RankChange = val
			case "peak":
				if n, ok := parseNumber(val); ok {
					p := int(n)
					e.PeakRank = &p
				}
			case "weeks":
				if n, ok := parseNumber(val); ok {
					w := int(n)
					e.WeeksOnChart = &w
				}
			}
		}

		// Skip totally empty rows
		if e.Title == "" && e.Artist == "" {
			continue
		}

		if e.Rank == 0 {
			e.Rank = len(entries) + 1
		}
		if e.Artist != "" && e.Title != "" {
			e.TrackText = e.Artist + " - " + e.Title
		}
		if e.VideoID != "" {
			e.MatchedBy = "import"
		}

		entries = append(entries, e)
	}

	return entries, nil
}
