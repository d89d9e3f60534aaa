// Package config reads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

const (
	defaultPort         = "8080"
	defaultRegion       = "KR"
	defaultLanguage     = "ko"
	defaultCoverKeyword = "커버"
	dbRelPath           = "coverchart/registry.db"
)

var ErrMissingAPIKey = errors.New("YOUTUBE_API_KEY is not set")

type Config struct {
	YouTubeAPIKey   string
	YouTubeRegion   string
	YouTubeLanguage string

	SpotifyID     string
	SpotifySecret string

	DBPath   string
	Port     string
	KworbURL string
	LogLevel slog.Level

	CoverKeyword string
	LimitSongs   int
	TopK         int
	Concurrency  int

	MinTokenMatch    float64
	MinDurationRatio float64
	MaxDurationRatio float64
}

func Default() Config {
	return Config{
		YouTubeRegion:    defaultRegion,
		YouTubeLanguage:  defaultLanguage,
		Port:             defaultPort,
		LogLevel:         slog.LevelInfo,
		CoverKeyword:     defaultCoverKeyword,
		LimitSongs:       25,
		TopK:             5,
		Concurrency:      2,
		MinTokenMatch:    0.45,
		MinDurationRatio: 0.6,
		MaxDurationRatio: 1.6,
	}
}

// Load reads .env when present and then the process environment. Unset
// variables keep their defaults; malformed numbers are an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	cfg := Default()

	cfg.YouTubeAPIKey = env("YOUTUBE_API_KEY")
	cfg.SpotifyID = env("SPOTIFY_ID")
	cfg.SpotifySecret = env("SPOTIFY_SECRET")
	cfg.KworbURL = env("KWORB_URL")

	if v := env("YOUTUBE_REGION"); v != "" {
		cfg.YouTubeRegion = v
	}
	if v := env("YOUTUBE_LANGUAGE"); v != "" {
		cfg.YouTubeLanguage = v
	}
	if v := env("PORT"); v != "" {
		cfg.Port = v
	}
	if v := env("COVER_LOCAL_KEYWORD"); v != "" {
		cfg.CoverKeyword = v
	}

	if v := env("DB_PATH"); v != "" {
		cfg.DBPath = v
	} else {
		p, err := xdg.DataFile(dbRelPath)
		if err != nil {
			return Config{}, fmt.Errorf("resolve database path: %w", err)
		}
		cfg.DBPath = p
	}

	if v := env("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
		}
	}

	for _, f := range []struct {
		key string
		dst *int
	}{
		{"DISCOVERY_LIMIT_SONGS", &cfg.LimitSongs},
		{"DISCOVERY_TOP_K", &cfg.TopK},
		{"DISCOVERY_CONCURRENCY", &cfg.Concurrency},
	} {
		v := env(f.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("parse %s: want a positive integer, got %q", f.key, v)
		}
		*f.dst = n
	}

	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"SCORER_MIN_TOKEN_MATCH", &cfg.MinTokenMatch},
		{"SCORER_MIN_DURATION_RATIO", &cfg.MinDurationRatio},
		{"SCORER_MAX_DURATION_RATIO", &cfg.MaxDurationRatio},
	} {
		v := env(f.key)
		if v == "" {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", f.key, err)
		}
		*f.dst = x
	}

	if cfg.MinDurationRatio > cfg.MaxDurationRatio {
		return Config{}, fmt.Errorf("duration ratio bounds inverted: %.2f > %.2f", cfg.MinDurationRatio, cfg.MaxDurationRatio)
	}
	return cfg, nil
}

// RequireYouTube fails when no API key is configured.
func (c Config) RequireYouTube() error {
	if c.YouTubeAPIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func (c Config) HasSpotify() bool {
	return c.SpotifyID != "" && c.SpotifySecret != ""
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
