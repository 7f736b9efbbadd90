// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Admin       AdminConfig             `yaml:"admin"`
	Sessions    []SessionConfig         `yaml:"sessions" validate:"required,min=1,dive"`
	Queue       QueueConfig             `yaml:"queue"`
	Priority    PriorityConfig          `yaml:"priority"`
	Presence    PresenceConfig          `yaml:"presence"`
	Playback    PlaybackConfig          `yaml:"playback"`
	Preferences PreferencesConfig       `yaml:"preferences"`
	Catalog     CatalogConfig           `yaml:"catalog"`
	Spotify     SpotifyConfig           `yaml:"spotify"`
	LastFM      LastFMConfig            `yaml:"lastfm"`
	Redis       RedisConfig             `yaml:"redis"`
	Filters     map[string]FilterConfig `yaml:"filters"`
	Messages    MessagesConfig          `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// AdminConfig represents admin-related configuration.
type AdminConfig struct {
	Token        string   `yaml:"token" validate:"required"`
	DisplayNames []string `yaml:"display_names"`
}

// SessionConfig represents one managed session (voice channel).
type SessionConfig struct {
	ID    string `yaml:"id" validate:"required,max=64,excludes=."`
	Title string `yaml:"title"`
}

// QueueConfig represents request queue configuration.
type QueueConfig struct {
	MaxSize       int     `yaml:"max_size" default:"10" validate:"gte=1,lte=1000"`
	HistoryLength int     `yaml:"history_length" default:"20" validate:"gte=1,lte=1000"`
	Tolerance     float64 `yaml:"tolerance" default:"0.5" validate:"gte=0"`
}

// PriorityConfig represents scoring configuration.
type PriorityConfig struct {
	Base                     float64                 `yaml:"base" default:"1"`
	JitterMin                float64                 `yaml:"jitter_min" default:"0"`
	JitterMax                float64                 `yaml:"jitter_max" default:"0.5" validate:"gtefield=JitterMin"`
	GlobalRankMultiplier     float64                 `yaml:"global_rank_multiplier" default:"0.1"`
	ListenerRankMultiplier   float64                 `yaml:"listener_rank_multiplier" default:"0.5"`
	QueueBonus               float64                 `yaml:"queue_bonus" default:"100"`
	QueuePositionBonus       float64                 `yaml:"queue_position_bonus" default:"10"`
	Length                   LengthConfig            `yaml:"length"`
	LastPlayed               RecencyConfig           `yaml:"last_played"`
	LastRequested            RecencyConfig           `yaml:"last_requested"`
	PreferenceHighMultiplier float64                 `yaml:"preference_high_multiplier" default:"1.5"`
	PreferenceLowMultiplier  float64                 `yaml:"preference_low_multiplier" default:"2"`
	GlobalKeywords           []KeywordModifierConfig `yaml:"global_keywords" validate:"dive"`
}

// LengthConfig shapes the score by item length.
type LengthConfig struct {
	IdealMinSec int     `yaml:"ideal_min_sec" default:"120" validate:"gte=0"`
	IdealMaxSec int     `yaml:"ideal_max_sec" default:"360" validate:"gtefield=IdealMinSec"`
	CutoffSec   int     `yaml:"cutoff_sec" default:"900" validate:"gtefield=IdealMaxSec"`
	Bonus       float64 `yaml:"bonus" default:"1"`
}

// RecencyConfig configures a recency decay term.
type RecencyConfig struct {
	WindowMin  int     `yaml:"window_min" default:"720" validate:"gte=0"`
	Penalty    float64 `yaml:"penalty" default:"-5"`
	Multiplier float64 `yaml:"multiplier" default:"0.2"`
}

// KeywordModifierConfig adjusts the score of items carrying a keyword,
// optionally only between two MM-DD dates.
type KeywordModifierConfig struct {
	Keyword    string  `yaml:"keyword" validate:"required"`
	Multiplier float64 `yaml:"multiplier" default:"1"`
	Bonus      float64 `yaml:"bonus"`
	From       string  `yaml:"from" validate:"omitempty,datetime=01-02"`
	Until      string  `yaml:"until" validate:"omitempty,datetime=01-02"`
}

// UnmarshalYAML applies the field defaults to list elements, which the
// top-level defaults pass cannot reach.
func (k *KeywordModifierConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain KeywordModifierConfig
	var p plain
	if err := defaults.Set(&p); err != nil {
		return err
	}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*k = KeywordModifierConfig(p)
	return nil
}

// PresenceConfig represents presence tracking configuration.
type PresenceConfig struct {
	WithdrawAfterSec int `yaml:"withdraw_after_sec" default:"300" validate:"gte=0"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	LeadInMs            int     `yaml:"lead_in_ms" default:"2000" validate:"gte=0,lte=60000"`
	PauseExpirySec      int     `yaml:"pause_expiry_sec" default:"600" validate:"gte=0"`
	AnnounceCooldownSec int     `yaml:"announce_cooldown_sec" default:"30" validate:"gte=0"`
	Normalize           *bool   `yaml:"normalize" default:"true"`
	TargetLoudness      float64 `yaml:"target_loudness" default:"-14" validate:"lte=0"`
	DefaultVolume       int     `yaml:"default_volume" default:"50" validate:"gte=0,ltefield=MaxVolume"`
	MaxVolume           int     `yaml:"max_volume" default:"100" validate:"gte=1,lte=200"`
}

// PreferencesConfig represents keyword preference configuration.
type PreferencesConfig struct {
	MaxKeywords int `yaml:"max_keywords" default:"10" validate:"gte=0,lte=100"`
}

// CatalogConfig represents the content catalog configuration.
type CatalogConfig struct {
	Path       string   `yaml:"path" default:"data/catalog.db" validate:"required"`
	Dirs       []string `yaml:"dirs"`
	Watch      bool     `yaml:"watch"`
	Extensions []string `yaml:"extensions" default:"[\".mp3\",\".flac\",\".ogg\",\".opus\",\".m4a\",\".wav\"]"`
}

// SpotifyConfig represents Spotify API configuration.
// The importer is disabled unless both credentials are set.
type SpotifyConfig struct {
	ClientID     string   `yaml:"client_id" validate:"required_with=ClientSecret"`
	ClientSecret string   `yaml:"client_secret" validate:"required_with=ClientID"`
	Market       string   `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	Playlists    []string `yaml:"playlists"`
}

// LastFMConfig represents Last.fm API configuration.
// Keyword enrichment is disabled without an API key.
type LastFMConfig struct {
	APIKey   string `yaml:"api_key"`
	MaxTags  int    `yaml:"max_tags" default:"5" validate:"gte=1,lte=50"`
	MinCount int    `yaml:"min_count" default:"10" validate:"gte=0,lte=100"`
}

// RedisConfig represents the preference store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Prefix   string `yaml:"prefix" default:"19radio"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	Success               string `yaml:"success" default:"OK"`
	DefaultError          string `yaml:"default_error" default:"Something went wrong."`
	Duplicate             string `yaml:"duplicate" default:"That item is already queued or playing."`
	QueueFull             string `yaml:"queue_full" default:"The queue is full."`
	NotFound              string `yaml:"not_found" default:"Nothing matches that reference."`
	Ambiguous             string `yaml:"ambiguous" default:"That reference matches several items; type more of the id."`
	InvalidVolume         string `yaml:"invalid_volume" default:"Volume is out of range."`
	InvalidKeyword        string `yaml:"invalid_keyword" default:"That keyword is not valid."`
	InvalidLevel          string `yaml:"invalid_level" default:"Level must be high or low."`
	InvalidRating         string `yaml:"invalid_rating" default:"Rating must be -1, 0 or 1."`
	PreferenceLimit       string `yaml:"preference_limit" default:"You have reached the keyword limit."`
	AlreadyVoted          string `yaml:"already_voted" default:"You already voted to skip."`
	NotListening          string `yaml:"not_listening" default:"You need to be listening."`
	NothingPlaying        string `yaml:"nothing_playing" default:"Nothing is playing."`
	RadioOff              string `yaml:"radio_off" default:"The radio is off."`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"That item is too long or too short."`
	PendingLimit          string `yaml:"pending_limit" default:"You already have too many requests queued."`
	DemandNotAllowed      string `yaml:"demand_not_allowed" default:"You are not allowed to demand."`
	BlockedKeyword        string `yaml:"blocked_keyword" default:"That item cannot be requested."`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	// Defaults first, so explicit zero values in the file survive.
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.LastFM.APIKey = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "success":
		return c.Messages.Success
	case "duplicate":
		return c.Messages.Duplicate
	case "queue_full":
		return c.Messages.QueueFull
	case "not_found":
		return c.Messages.NotFound
	case "ambiguous":
		return c.Messages.Ambiguous
	case "invalid_volume":
		return c.Messages.InvalidVolume
	case "invalid_keyword":
		return c.Messages.InvalidKeyword
	case "invalid_level":
		return c.Messages.InvalidLevel
	case "invalid_rating":
		return c.Messages.InvalidRating
	case "preference_limit":
		return c.Messages.PreferenceLimit
	case "already_voted":
		return c.Messages.AlreadyVoted
	case "not_listening":
		return c.Messages.NotListening
	case "nothing_playing":
		return c.Messages.NothingPlaying
	case "radio_off":
		return c.Messages.RadioOff
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	case "pending_limit":
		return c.Messages.PendingLimit
	case "demand_not_allowed":
		return c.Messages.DemandNotAllowed
	case "blocked_keyword":
		return c.Messages.BlockedKeyword
	default:
		return c.Messages.DefaultError
	}
}

// IsAdminDisplayName checks if the given display name is an admin.
func (c *Config) IsAdminDisplayName(displayName string) bool {
	for _, name := range c.Admin.DisplayNames {
		if name == displayName {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Session ids key metadata namespaces, so they must be unique
	seen := make(map[string]bool, len(c.Sessions))
	for _, s := range c.Sessions {
		if seen[s.ID] {
			return errors.Newf("duplicate session id: %s", s.ID)
		}
		seen[s.ID] = true
	}

	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// NormalizeEnabled reports whether loudness normalisation is on.
func (c *PlaybackConfig) NormalizeEnabled() bool {
	return c.Normalize == nil || *c.Normalize
}

// LeadIn returns the lead-in delay.
func (c *PlaybackConfig) LeadIn() time.Duration {
	return time.Duration(c.LeadInMs) * time.Millisecond
}

// PauseExpiry returns how long a paused session is kept.
func (c *PlaybackConfig) PauseExpiry() time.Duration {
	return time.Duration(c.PauseExpirySec) * time.Second
}

// AnnounceCooldown returns the minimum gap between announcements.
func (c *PlaybackConfig) AnnounceCooldown() time.Duration {
	return time.Duration(c.AnnounceCooldownSec) * time.Second
}

// WithdrawAfter returns the auto-withdrawal delay.
func (c *PresenceConfig) WithdrawAfter() time.Duration {
	return time.Duration(c.WithdrawAfterSec) * time.Second
}
