// Package config loads runtime configuration via viper, bound to pflag
// command-line flags with environment variable overrides, and watches the
// config file for non-identity changes via fsnotify. Grounded on the
// teacher's go.mod, which lists spf13/viper, spf13/pflag, and fsnotify as
// direct dependencies; no config-loading source file was present in the
// retrieved reference pack to imitate line-for-line, so this package
// follows viper's own idiomatic wiring (pflag-bound flags, env prefix,
// OnConfigChange) rather than a specific teacher file.
package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig controls the Store Adapter.
type StoreConfig struct {
	SQLitePath string
}

// LifecycleConfig controls the Message Lifecycle Engine's and Typing
// Tracker's timing knobs (spec §5 timeouts). On a config file change,
// DeliverDelay and MaxContentRunes are re-applied to the running engine;
// TypingIdle is applied only when the Typing Tracker is built at startup.
type LifecycleConfig struct {
	DeliverDelay    time.Duration
	TypingIdle      time.Duration
	MaxContentRunes int
}

// AuthConfig controls the Identity Gate's JWT verifier. Deliberately never
// hot-reloaded: rotating signing material live, mid-process, is out of
// scope and risks verifying against a half-applied secret.
type AuthConfig struct {
	JWTSecret string
	JWTIssuer string
}

// Config aggregates every named group.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Lifecycle LifecycleConfig
	Auth      AuthConfig
}

// Load builds flags, binds them into viper alongside environment variables
// and an optional config file, and returns the resolved Config.
func Load(args []string) (*Config, *viper.Viper, error) {
	flags := pflag.NewFlagSet("chat-core", pflag.ContinueOnError)
	flags.String("listen-addr", ":8080", "HTTP/WebSocket listen address")
	flags.Duration("read-timeout", 15*time.Second, "connection read timeout")
	flags.Duration("write-timeout", 15*time.Second, "connection write timeout")
	flags.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	flags.String("sqlite-path", "./data/chat-core.db", "path to the SQLite database file")
	flags.Duration("deliver-delay", time.Second, "delay before a reachable recipient's message is marked delivered")
	flags.Duration("typing-idle", 3*time.Second, "idle window before a typing indicator auto-expires")
	flags.Int("max-content-runes", 4000, "maximum accepted message content length")
	flags.String("jwt-secret", "", "HMAC secret for verifying bearer tokens")
	flags.String("jwt-issuer", "", "expected JWT issuer claim; empty skips issuer validation")
	flags.String("config", "", "optional path to a config file (yaml/json/toml)")
	if err := flags.Parse(args); err != nil {
		return nil, nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix("CHAT_CORE")
	v.AutomaticEnv()

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	return cfg, v, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      v.GetString("listen-addr"),
			ReadTimeout:     v.GetDuration("read-timeout"),
			WriteTimeout:    v.GetDuration("write-timeout"),
			ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		},
		Store: StoreConfig{
			SQLitePath: v.GetString("sqlite-path"),
		},
		Lifecycle: LifecycleConfig{
			DeliverDelay:    v.GetDuration("deliver-delay"),
			TypingIdle:      v.GetDuration("typing-idle"),
			MaxContentRunes: v.GetInt("max-content-runes"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("jwt-secret"),
			JWTIssuer: v.GetString("jwt-issuer"),
		},
	}
}

// WatchLifecycle re-resolves LifecycleConfig whenever the config file
// changes on disk, calling onChange with the updated value. Server, Store,
// and Auth groups are deliberately excluded from hot-reload: rebinding a
// listen address or a JWT secret mid-process would need a restart anyway.
func WatchLifecycle(v *viper.Viper, onChange func(LifecycleConfig)) {
	v.OnConfigChange(func(fsnotify.Event) {
		onChange(fromViper(v).Lifecycle)
	})
	v.WatchConfig()
}
