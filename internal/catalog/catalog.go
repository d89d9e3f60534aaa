// Package catalog resolves song lengths from music catalogs when the video
// platform cannot report the original upload's duration.
package catalog

// DefaultMinSimilarity is the Jaro-Winkler floor for accepting a catalog
// match on "artist title".
const DefaultMinSimilarity = 0.85
