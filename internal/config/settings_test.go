package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestSettingsValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(s *Settings)
		wantErr bool
	}{
		{name: "defaults", modify: func(s *Settings) {}},
		{name: "opus format", modify: func(s *Settings) { s.Format = "opus" }},
		{name: "unknown format", modify: func(s *Settings) { s.Format = "wma" }, wantErr: true},
		{name: "bitrate quality", modify: func(s *Settings) { s.AudioQuality = "192K" }},
		{name: "vbr quality", modify: func(s *Settings) { s.AudioQuality = "5" }},
		{name: "bad quality", modify: func(s *Settings) { s.AudioQuality = "great" }, wantErr: true},
		{name: "empty cache dir", modify: func(s *Settings) { s.CacheDir = "" }, wantErr: true},
		{name: "negative prefetch", modify: func(s *Settings) { s.PrefetchCount = -1 }, wantErr: true},
		{name: "zero prefetch", modify: func(s *Settings) { s.PrefetchCount = 0 }},
		{name: "too many workers", modify: func(s *Settings) { s.PrefetchWorkers = 5 }, wantErr: true},
		{name: "no workers", modify: func(s *Settings) { s.PrefetchWorkers = 0 }, wantErr: true},
		{name: "volume above one", modify: func(s *Settings) { s.Volume = 1.5 }, wantErr: true},
		{name: "volume unset", modify: func(s *Settings) { s.Volume = -1 }},
		{name: "unknown player", modify: func(s *Settings) { s.Player = "vlc" }, wantErr: true},
		{name: "ffplay", modify: func(s *Settings) { s.Player = "ffplay" }},
		{name: "bad loop", modify: func(s *Settings) { s.Loop = "forever" }, wantErr: true},
		{name: "zero stop timeout", modify: func(s *Settings) { s.StopTimeout = 0 }, wantErr: true},
		{name: "bad log level", modify: func(s *Settings) { s.Logging.Level = "trace" }, wantErr: true},
		{name: "bad log output", modify: func(s *Settings) { s.Logging.Output = "syslog" }, wantErr: true},
		{name: "search limit", modify: func(s *Settings) { s.SearchLimit = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("YT_API_KEY", "")
	path := filepath.Join(t.TempDir(), "absent.json")

	s, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Format != "mp3" || s.PrefetchCount != 3 || s.PrefetchWorkers != 1 {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if s.StopTimeout != 2*time.Second {
		t.Errorf("StopTimeout = %v, want 2s", s.StopTimeout)
	}
	if s.HasVolume() {
		t.Error("volume should be unset by default")
	}
	if !s.EmbedMetadata {
		t.Error("metadata embedding should default to on")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	s := DefaultSettings()
	s.CacheDir = filepath.Join(t.TempDir(), "cache")
	s.Format = "m4a"
	s.PrefetchCount = 5
	s.Volume = 0.4
	s.StopTimeout = 3 * time.Second
	s.Loop = "all"
	s.Logging.Level = "debug"
	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.CacheDir != s.CacheDir {
		t.Errorf("CacheDir = %q, want %q", loaded.CacheDir, s.CacheDir)
	}
	if loaded.Format != "m4a" || loaded.PrefetchCount != 5 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Volume != 0.4 {
		t.Errorf("Volume = %v, want 0.4", loaded.Volume)
	}
	if loaded.StopTimeout != 3*time.Second {
		t.Errorf("StopTimeout = %v, want 3s", loaded.StopTimeout)
	}
	if loaded.LoopMode().String() != "all" {
		t.Errorf("LoopMode = %v, want all", loaded.LoopMode())
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", loaded.Logging.Level)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"format":"wma"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(nil, path); err == nil {
		t.Fatal("expected validation error")
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(nil, path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"format":"opus","prefetch_count":2}`), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("env beats file", func(t *testing.T) {
		t.Setenv("YPLAY_FORMAT", "flac")
		s, err := Load(NewViper(), path)
		if err != nil {
			t.Fatal(err)
		}
		if s.Format != "flac" {
			t.Errorf("Format = %q, want flac", s.Format)
		}
		if s.PrefetchCount != 2 {
			t.Errorf("PrefetchCount = %d, want 2", s.PrefetchCount)
		}
	})

	t.Run("flag beats file", func(t *testing.T) {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int("prefetch", 3, "")
		if err := flags.Parse([]string{"--prefetch", "7"}); err != nil {
			t.Fatal(err)
		}
		v := NewViper()
		if err := v.BindPFlag("prefetch_count", flags.Lookup("prefetch")); err != nil {
			t.Fatal(err)
		}
		s, err := Load(v, path)
		if err != nil {
			t.Fatal(err)
		}
		if s.PrefetchCount != 7 {
			t.Errorf("PrefetchCount = %d, want 7", s.PrefetchCount)
		}
	})

	t.Run("api key from env", func(t *testing.T) {
		t.Setenv("YT_API_KEY", "secret")
		s, err := Load(NewViper(), path)
		if err != nil {
			t.Fatal(err)
		}
		if s.APIKey != "secret" {
			t.Errorf("APIKey = %q, want secret", s.APIKey)
		}
	})
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in   string
		want string
	}{
		{"~/Music", filepath.Join(home, "Music")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"rel/~x", "rel/~x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := expandHome(tt.in); got != tt.want {
				t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
