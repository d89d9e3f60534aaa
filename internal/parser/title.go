package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	groupRegex    = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|【[^】]*】`)
	nonWordRegex  = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	durationRegex = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)
)

// coverMarkers positively identify a fan rendition. "ver" also catches
// "ver." and "version" suffixes.
var coverMarkers = []string{
	"cover",
	"커버",
	"노래해봤",
	"불러",
	"ver",
	"버전",
}

var noiseMarkers = []string{
	"lyrics",
	"가사",
	"karaoke",
	"노래방",
	"mr",
	"instrumental",
	"reaction",
	"리액션",
	"nightcore",
	"sped up",
	"slowed",
	"1hour",
	"1 hour",
	"mix",
	"playlist",
	"플레이리스트",
}

var channelMarkers = []string{
	"- topic",
	"official",
	"vevo",
}

// Normalize lowercases s, drops bracketed groups and every rune that is not a
// letter or digit, and collapses the remaining words to single spaces.
func Normalize(s string) string {
	t := strings.ToLower(s)
	t = groupRegex.ReplaceAllString(t, " ")
	t = nonWordRegex.ReplaceAllString(t, " ")
	return strings.Join(strings.Fields(t), " ")
}

func HasCoverSignal(title string) bool {
	return containsAny(strings.ToLower(title), coverMarkers)
}

func LooksLikeNoise(title string) bool {
	return containsAny(strings.ToLower(title), noiseMarkers)
}

// IsTopicOrOfficial reports auto-generated and rights-holder channels, which
// never upload fan covers.
func IsTopicOrOfficial(channelTitle string) bool {
	return containsAny(strings.ToLower(channelTitle), channelMarkers)
}

// TokenMatchRatio returns the fraction of the seed's normalized tokens (two
// runes or longer) that occur inside the normalized candidate title.
func TokenMatchRatio(seedTitle, candidateTitle string) float64 {
	seed := Normalize(seedTitle)
	cand := Normalize(candidateTitle)

	var tokens []string
	for _, tok := range strings.Split(seed, " ") {
		if utf8.RuneCountInString(tok) >= 2 {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return 0
	}

	hit := 0
	for _, tok := range tokens {
		if strings.Contains(cand, tok) {
			hit++
		}
	}
	return float64(hit) / float64(len(tokens))
}

// DurationToSeconds parses an ISO 8601 time duration such as PT1H2M3S.
// Empty, malformed and component-less ("PT") inputs report ok=false.
func DurationToSeconds(iso string) (int, bool) {
	m := durationRegex.FindStringSubmatch(strings.TrimSpace(iso))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "") {
		return 0, false
	}
	h, _ := strconv.Atoi(orZero(m[1]))
	mm, _ := strconv.Atoi(orZero(m[2]))
	s, _ := strconv.Atoi(orZero(m[3]))
	return h*3600 + mm*60 + s, true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
