package parser

import (
	"regexp"
	"strings"
)

var (
	// Decorations uploaders append to official titles.
	decorRegex = regexp.MustCompile(`(?i)[(\[](official (music )?video|official audio|official mv|m/?v|lyric video|audio|video|hd|remaster(ed)?)[)\]]`)
	pipeRegex  = regexp.MustCompile(`\|.*$`)
	spaceRegex = regexp.MustCompile(`\s+`)
)

const unknownArtist = "Unknown"

// SplitTrackText splits kworb's "ARTIST - TITLE" cell on the first separator.
// Without a separator the whole text is the title.
func SplitTrackText(trackText string) (artist, title string) {
	t := collapseSpaces(trackText)
	if a, rest, ok := strings.Cut(t, " - "); ok {
		artist = strings.TrimSpace(a)
		title = strings.TrimSpace(rest)
		if artist == "" {
			artist = unknownArtist
		}
		if title == "" {
			title = t
		}
		return artist, title
	}
	if t == "" {
		return unknownArtist, unknownArtist
	}
	return unknownArtist, t
}

// CleanSongTitle strips upload decorations such as "[Official Video]" or a
// trailing "| channel" so the remainder can seed a search query.
func CleanSongTitle(title string) string {
	t := decorRegex.ReplaceAllString(title, "")
	t = pipeRegex.ReplaceAllString(t, "")
	return collapseSpaces(t)
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
}
