// Package config provides configuration management for yplay.
//
// Settings are layered by viper: built-in defaults, then the JSON config
// file, then YPLAY_* environment variables, then any command-line flags the
// caller bound into the viper instance. The API key also falls back to
// YT_API_KEY.
//
//	v := config.NewViper()
//	_ = v.BindPFlag("format", flags.Lookup("format"))
//	settings, err := config.Load(v, "")
//
// The default file lives at $XDG_CONFIG_HOME/yplay/config.json; logs go
// next to it under logs/.
package config
