// Package config loads the bridge configuration: server surface, credentials
// for every integration, and the shared reconnect policy.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/kittynXR/mewbot/internal/discord"
	"github.com/kittynXR/mewbot/internal/obs"
	"github.com/kittynXR/mewbot/internal/osc"
	"github.com/kittynXR/mewbot/internal/supervisor"
	"github.com/kittynXR/mewbot/internal/twitch"
	"github.com/kittynXR/mewbot/internal/vrchat"
	pkgconfig "github.com/kittynXR/mewbot/pkg/config"
	"github.com/kittynXR/mewbot/pkg/log"
)

// Config is the full application configuration. Credentials are read at
// supervisor start-up only, never on the hot path.
type Config struct {
	Server    ServerConfig
	Log       log.Config
	WebSocket WebSocketConfig
	Retry     supervisor.RetryConfig
	Bus       BusConfig

	Twitch  twitch.Config
	Discord discord.Config
	VRChat  vrchat.Config
	OSC     osc.Config
	OBS     OBSConfig

	// RelayTargets are the secondary chat channels offered as extra
	// sendChat destinations.
	RelayTargets []string `mapstructure:"relay_targets"`

	mu sync.Mutex
	v  *viper.Viper
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type BusConfig struct {
	Capacity int
}

type OBSConfig struct {
	Instances []obs.InstanceConfig
}

// Load reads config.yaml plus environment overrides.
func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 11400)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.max_attempts", 10)
	v.SetDefault("retry.connect_timeout", "15s")
	v.SetDefault("bus.capacity", 256)
	v.SetDefault("twitch.server_url", twitch.DefaultServerURL)
	v.SetDefault("vrchat.base_url", vrchat.DefaultBaseURL)
	v.SetDefault("vrchat.poll_interval", "30s")
	v.SetDefault("osc.host", "127.0.0.1")
	v.SetDefault("osc.port", 9000)

	v.BindEnv("server.port", "PORT")
	v.BindEnv("twitch.bot_username", "TWITCH_BOT_USERNAME")
	v.BindEnv("twitch.bot_token", "TWITCH_BOT_TOKEN")
	v.BindEnv("twitch.broadcaster_token", "TWITCH_BROADCASTER_TOKEN")
	v.BindEnv("twitch.channel", "TWITCH_CHANNEL")
	v.BindEnv("discord.token", "DISCORD_TOKEN")
	v.BindEnv("discord.relay_channel_id", "DISCORD_RELAY_CHANNEL_ID")
	v.BindEnv("vrchat.auth_cookie", "VRCHAT_AUTH_COOKIE")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Retry.BaseDelay = parseDuration(v, "retry.base_delay", time.Second)
	cfg.Retry.MaxDelay = parseDuration(v, "retry.max_delay", 30*time.Second)
	cfg.Retry.ConnectTimeout = parseDuration(v, "retry.connect_timeout", 15*time.Second)
	cfg.VRChat.PollInterval = parseDuration(v, "vrchat.poll_interval", 30*time.Second)

	cfg.v = v
	return &cfg, nil
}

// Relays returns the configured secondary relay targets.
func (c *Config) Relays() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.RelayTargets))
	copy(out, c.RelayTargets)
	return out
}

// SetRelays replaces the relay target list and persists it.
func (c *Config) SetRelays(targets []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.RelayTargets = append([]string(nil), targets...)
	c.v.Set("relay_targets", c.RelayTargets)
	return pkgconfig.Save(c.v, "./config/config.yaml")
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}
