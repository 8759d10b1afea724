package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string         `mapstructure:"mode"`
	Port           int            `mapstructure:"port"`
	StaticPath     string         `mapstructure:"static_path"`
	Secret         string         `mapstructure:"secret"`
	SecureCookies  bool           `mapstructure:"secure_cookies"`
	LogLevel       string         `mapstructure:"log_level"`
	AllowedOrigins []string       `mapstructure:"allowed_origins"`
	Signal         SignalConfig   `mapstructure:"signal"`
	Rooms          RoomsConfig    `mapstructure:"rooms"`
	Presence       PresenceConfig `mapstructure:"presence"`
	Redis          RedisConfig    `mapstructure:"redis"`
}

// DevSecret is the built-in cookie secret; Validate refuses it in release mode.
const DevSecret = "dev-secret-change-me"

type SignalConfig struct {
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	Backpressure string        `mapstructure:"backpressure"`
}

type RoomsConfig struct {
	EnforceCapacity   bool `mapstructure:"enforce_capacity"`
	RequireRegistered bool `mapstructure:"require_registered"`
}

type PresenceConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// RedisConfig selects the Redis room directory when Addr is set.
type RedisConfig struct {
	Addr    string        `mapstructure:"addr"`
	DB      int           `mapstructure:"db"`
	RoomTTL time.Duration `mapstructure:"room_ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", DevSecret)
	v.SetDefault("secure_cookies", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{})

	v.SetDefault("signal.read_limit", 32768)
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.pong_wait", "60s")
	v.SetDefault("signal.write_wait", "5s")
	v.SetDefault("signal.send_buffer", 64)
	v.SetDefault("signal.rate_limit", 10)
	v.SetDefault("signal.rate_interval", "1s")
	v.SetDefault("signal.backpressure", "kick")

	v.SetDefault("rooms.enforce_capacity", false)
	v.SetDefault("rooms.require_registered", false)

	v.SetDefault("presence.grace_period", "0s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.room_ttl", "0s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (or CONFIG_FILE), then applies
// RELAY_* environment overrides, e.g. RELAY_SIGNAL_SEND_BUFFER.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := os.Getenv("CONFIG_FILE")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("relay")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(fileName); errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

// Validate rejects settings that are only acceptable during development.
func (c *Config) Validate() error {
	if c.Mode == "release" && (c.Secret == "" || c.Secret == DevSecret) {
		return errors.New("release mode requires a session secret (set RELAY_SECRET)")
	}
	return nil
}
