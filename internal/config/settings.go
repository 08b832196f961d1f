package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yplay/yplay/internal/download"
	"github.com/yplay/yplay/internal/monitoring"
	"github.com/yplay/yplay/internal/playback"
	"github.com/yplay/yplay/internal/prefetch"
)

// EnvPrefix is prepended to every environment override, e.g. YPLAY_CACHE_DIR.
const EnvPrefix = "YPLAY"

// APIKeyEnv is read when no API key is configured anywhere else.
const APIKeyEnv = "YT_API_KEY"

// Settings holds all configuration options.
type Settings struct {
	// Cache and download
	CacheDir      string `json:"cache_dir" mapstructure:"cache_dir"`
	Format        string `json:"format" mapstructure:"format"`
	AudioQuality  string `json:"audio_quality" mapstructure:"audio_quality"`
	Native        bool   `json:"native" mapstructure:"native"`
	EmbedMetadata bool   `json:"embed_metadata" mapstructure:"embed_metadata"`
	ModifyTags    bool   `json:"modify_tags" mapstructure:"modify_tags"`

	// Download retries
	DownloadMaxRetries    int     `json:"download_max_retries" mapstructure:"download_max_retries"`
	DownloadRetryCooldown float64 `json:"download_retry_cooldown" mapstructure:"download_retry_cooldown"`
	DownloadRetryExponent float64 `json:"download_retry_exponent" mapstructure:"download_retry_exponent"`

	// Prefetch
	PrefetchCount   int `json:"prefetch_count" mapstructure:"prefetch_count"`
	PrefetchWorkers int `json:"prefetch_workers" mapstructure:"prefetch_workers"`

	// Playback
	Player      string        `json:"player" mapstructure:"player"`
	Volume      float64       `json:"volume" mapstructure:"volume"` // negative means player default
	StopTimeout time.Duration `json:"stop_timeout" mapstructure:"stop_timeout"`
	Loop        string        `json:"loop" mapstructure:"loop"`

	// Metadata service
	APIKey      string `json:"api_key" mapstructure:"api_key"`
	SearchLimit int    `json:"search_limit" mapstructure:"search_limit"`

	// Playlist export
	M3UExtended bool `json:"m3u_extended" mapstructure:"m3u_extended"`

	MetricsAddr string `json:"metrics_addr" mapstructure:"metrics_addr"`

	Logging monitoring.LogConfig `json:"logging" mapstructure:"logging"`
}

// DefaultSettings returns settings with default values.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()
	return &Settings{
		CacheDir:      filepath.Join(homeDir, "Music", "yt-audio"),
		Format:        "mp3",
		AudioQuality:  download.DefaultAudioQuality,
		Native:        false,
		EmbedMetadata: true,
		ModifyTags:    true,

		DownloadMaxRetries:    2,
		DownloadRetryCooldown: 0.5,
		DownloadRetryExponent: 2.0,

		PrefetchCount:   3,
		PrefetchWorkers: 1,

		Player:      "",
		Volume:      -1,
		StopTimeout: playback.DefaultStopTimeout,
		Loop:        playback.LoopNone.String(),

		SearchLimit: 10,
		M3UExtended: true,

		Logging: *monitoring.DefaultLogConfig(DataDir()),
	}
}

// DataDir returns the directory holding the config file and logs.
func DataDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if d, err := os.UserConfigDir(); err == nil {
			dir = d
		} else {
			home, _ := os.UserHomeDir()
			dir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(dir, "yplay")
}

// DefaultConfigPath returns the config file used when none is given.
func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// NewViper returns a viper instance carrying every default and env binding.
// Callers may bind command-line flags into it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configPath (or the default path) into v and returns the
// validated settings. A missing file is not an error; defaults, env and
// bound flags still apply.
func Load(v *viper.Viper, configPath string) (*Settings, error) {
	if v == nil {
		v = NewViper()
	}
	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if s.APIKey == "" {
		s.APIKey = os.Getenv(APIKeyEnv)
	}
	s.CacheDir = expandHome(s.CacheDir)
	s.Logging.FilePath = expandHome(s.Logging.FilePath)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &s, nil
}

// Validate validates the configuration
func (s *Settings) Validate() error {
	if s.CacheDir == "" {
		return fmt.Errorf("cache directory cannot be empty")
	}

	if !download.IsSupportedFormat(s.Format) {
		return fmt.Errorf("invalid format: %s (must be one of %s)", s.Format, strings.Join(download.SupportedFormats, ", "))
	}

	if !download.IsValidAudioQuality(s.AudioQuality) {
		return fmt.Errorf("invalid audio quality: %s (must be 0-10 or a bitrate like 192K)", s.AudioQuality)
	}

	if s.DownloadMaxRetries < 0 {
		return fmt.Errorf("download retries cannot be negative")
	}

	if s.PrefetchCount < 0 {
		return fmt.Errorf("prefetch count cannot be negative")
	}

	if s.PrefetchWorkers < 1 || s.PrefetchWorkers > prefetch.MaxWorkers {
		return fmt.Errorf("prefetch workers must be between 1 and %d", prefetch.MaxWorkers)
	}

	if s.Volume > 1 {
		return fmt.Errorf("volume must be between 0 and 1")
	}

	if s.StopTimeout <= 0 {
		return fmt.Errorf("stop timeout must be positive")
	}

	if _, ok := playback.ParseLoopMode(s.Loop); !ok {
		return fmt.Errorf("invalid loop mode: %s (must be none, single or all)", s.Loop)
	}

	switch s.Player {
	case "", playback.PlayerMPV, playback.PlayerFFPlay, playback.PlayerAFPlay:
	default:
		return fmt.Errorf("invalid player: %s (must be mpv, ffplay or afplay)", s.Player)
	}

	if s.SearchLimit < 1 || s.SearchLimit > 50 {
		return fmt.Errorf("search limit must be between 1 and 50")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[s.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[s.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", s.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[s.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", s.Logging.Output)
	}

	return nil
}

// HasVolume reports whether a volume override is configured.
func (s *Settings) HasVolume() bool {
	return s.Volume >= 0
}

// LoopMode returns the parsed loop mode. Validate has already checked it.
func (s *Settings) LoopMode() playback.LoopMode {
	mode, _ := playback.ParseLoopMode(s.Loop)
	return mode
}

// Save saves the settings to path, creating its directory.
func (s *Settings) Save(path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("cache_dir", s.CacheDir)
	v.Set("format", s.Format)
	v.Set("audio_quality", s.AudioQuality)
	v.Set("native", s.Native)
	v.Set("embed_metadata", s.EmbedMetadata)
	v.Set("modify_tags", s.ModifyTags)
	v.Set("download_max_retries", s.DownloadMaxRetries)
	v.Set("download_retry_cooldown", s.DownloadRetryCooldown)
	v.Set("download_retry_exponent", s.DownloadRetryExponent)
	v.Set("prefetch_count", s.PrefetchCount)
	v.Set("prefetch_workers", s.PrefetchWorkers)
	v.Set("player", s.Player)
	v.Set("volume", s.Volume)
	v.Set("stop_timeout", s.StopTimeout.String())
	v.Set("loop", s.Loop)
	v.Set("api_key", s.APIKey)
	v.Set("search_limit", s.SearchLimit)
	v.Set("m3u_extended", s.M3UExtended)
	v.Set("metrics_addr", s.MetricsAddr)
	v.Set("logging", s.Logging)

	return v.WriteConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := DefaultSettings()

	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("format", d.Format)
	v.SetDefault("audio_quality", d.AudioQuality)
	v.SetDefault("native", d.Native)
	v.SetDefault("embed_metadata", d.EmbedMetadata)
	v.SetDefault("modify_tags", d.ModifyTags)

	v.SetDefault("download_max_retries", d.DownloadMaxRetries)
	v.SetDefault("download_retry_cooldown", d.DownloadRetryCooldown)
	v.SetDefault("download_retry_exponent", d.DownloadRetryExponent)

	v.SetDefault("prefetch_count", d.PrefetchCount)
	v.SetDefault("prefetch_workers", d.PrefetchWorkers)

	v.SetDefault("player", d.Player)
	v.SetDefault("volume", d.Volume)
	v.SetDefault("stop_timeout", d.StopTimeout)
	v.SetDefault("loop", d.Loop)

	v.SetDefault("api_key", "")
	v.SetDefault("search_limit", d.SearchLimit)
	v.SetDefault("m3u_extended", d.M3UExtended)
	v.SetDefault("metrics_addr", "")

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("logging.file_path", d.Logging.FilePath)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
