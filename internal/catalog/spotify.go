package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"coverchart-srv/internal/parser"
)

// Spotify looks up track lengths through the Spotify Web API using the
// client-credentials flow.
type Spotify struct {
	client        *spotify.Client
	MinSimilarity float64
}

func NewSpotify(ctx context.Context, clientID, clientSecret string) *Spotify {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return NewSpotifyWithClient(spotify.New(config.Client(ctx)))
}

func NewSpotifyWithClient(client *spotify.Client) *Spotify {
	return &Spotify{client: client, MinSimilarity: DefaultMinSimilarity}
}

func (s *Spotify) Name() string { return "spotify" }

func (s *Spotify) DurationSeconds(ctx context.Context, _, artist, title string) (int, bool, error) {
	query := fmt.Sprintf("track:%s artist:%s", title, artist)
	res, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(5))
	if err != nil {
		return 0, false, fmt.Errorf("spotify search: %w", err)
	}
	if res.Tracks == nil {
		return 0, false, nil
	}

	want := artist + " " + title
	bestScore := 0.0
	bestMS := 0
	for _, t := range res.Tracks.Tracks {
		score := parser.Similarity(want, joinArtists(t.Artists)+" "+t.Name)
		if score > bestScore {
			bestScore = score
			bestMS = int(t.Duration)
		}
	}
	if bestScore < s.MinSimilarity || bestMS <= 0 {
		return 0, false, nil
	}
	return bestMS / 1000, true, nil
}

func joinArtists(artists []spotify.SimpleArtist) string {
	names := make([]string, len(artists))
	for i, a := range artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}
