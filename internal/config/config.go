// Package config provides Viper-based configuration loading for the mimic server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by game.store and game.broadcast.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	BroadcastLocal = "local"
	BroadcastRedis = "redis"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings used by the redis room store
// and the cross-instance broadcast relay.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// TxRetries bounds optimistic-transaction retries per room update.
	TxRetries int `mapstructure:"tx_retries"`
	// ChannelPrefix namespaces the per-room pub/sub channels.
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// KafkaConfig holds settings for the room event stream.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Async        bool          `mapstructure:"async"`
}

// WebSocketConfig holds the websocket/HTTP listener settings.
type WebSocketConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// Path is the websocket route.
	Path string `mapstructure:"path"`
	// PongWait is how long a connection may stay silent before it is dropped.
	PongWait time.Duration `mapstructure:"pong_wait"`
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingInterval is the keepalive ping period; must be shorter than PongWait.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// SendBuffer is the outbound queue depth per connection.
	SendBuffer int `mapstructure:"send_buffer"`
	// MaxMessageBytes caps inbound frame size.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
	// MessagesPerSecond is the sustained inbound rate per connection.
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	// Burst is the inbound burst allowance per connection.
	Burst int `mapstructure:"burst"`
	// AllowOrigins is the CORS allow-list for the HTTP routes.
	AllowOrigins string `mapstructure:"allow_origins"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// AdminConfig holds the admin gRPC listener settings.
type AdminConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	GRPCHost string `mapstructure:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.GRPCHost, a.GRPCPort)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds room defaults and backend selection.
type GameConfig struct {
	// Store selects the room store: "memory", "postgres", or "redis".
	Store string `mapstructure:"store"`
	// Broadcast selects the fan-out backend: "local" or "redis".
	Broadcast string `mapstructure:"broadcast"`
	// DefaultTimer is the per-turn time budget in seconds for new rooms.
	DefaultTimer int `mapstructure:"default_timer"`
	// DefaultRounds is the round count for new rooms.
	DefaultRounds int `mapstructure:"default_rounds"`
	// SymbolsFile overrides the built-in symbol catalog when non-empty.
	SymbolsFile string `mapstructure:"symbols_file"`
	// HintScriptDir holds Lua hint scripts; empty disables scripted hints.
	HintScriptDir string `mapstructure:"hint_script_dir"`
	// HintInstructionLimit caps Lua opcodes per hint call.
	HintInstructionLimit int `mapstructure:"hint_instruction_limit"`
	// RandomSeed makes all random picks deterministic when non-zero.
	RandomSeed uint64 `mapstructure:"random_seed"`
}

// Config is the top-level application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Game      GameConfig      `mapstructure:"game"`
}

// Validate checks all configuration invariants. Backend sections are only
// checked when the game configuration selects them.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Game.Store == StorePostgres {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Game.Store == StoreRedis || c.Game.Broadcast == BroadcastRedis {
		if err := validateRedis(c.Redis); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.Kafka.Enabled {
		if err := validateKafka(c.Kafka); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateWebSocket(c.WebSocket); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Admin.Enabled {
		if err := validateAdmin(c.Admin); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	validStores := map[string]bool{StoreMemory: true, StorePostgres: true, StoreRedis: true}
	if !validStores[g.Store] {
		errs = append(errs, fmt.Sprintf("game.store must be one of [memory, postgres, redis], got %q", g.Store))
	}
	validBroadcast := map[string]bool{BroadcastLocal: true, BroadcastRedis: true}
	if !validBroadcast[g.Broadcast] {
		errs = append(errs, fmt.Sprintf("game.broadcast must be one of [local, redis], got %q", g.Broadcast))
	}
	if g.DefaultTimer < 0 || g.DefaultTimer > 3600 {
		errs = append(errs, fmt.Sprintf("game.default_timer must be 0-3600, got %d", g.DefaultTimer))
	}
	if g.DefaultRounds < 1 || g.DefaultRounds > 10 {
		errs = append(errs, fmt.Sprintf("game.default_rounds must be 1-10, got %d", g.DefaultRounds))
	}
	if g.HintInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("game.hint_instruction_limit must be >= 0, got %d", g.HintInstructionLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.Addr == "" {
		errs = append(errs, "redis.addr must not be empty")
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if r.TxRetries < 1 {
		errs = append(errs, fmt.Sprintf("redis.tx_retries must be >= 1, got %d", r.TxRetries))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateKafka(k KafkaConfig) error {
	var errs []string
	if len(k.Brokers) == 0 {
		errs = append(errs, "kafka.brokers must not be empty when kafka is enabled")
	}
	if k.Topic == "" {
		errs = append(errs, "kafka.topic must not be empty when kafka is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if w.Port < 1 || w.Port > 65535 {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with '/', got %q", w.Path))
	}
	if w.PongWait <= 0 {
		errs = append(errs, "websocket.pong_wait must be positive")
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.PingInterval <= 0 || w.PingInterval >= w.PongWait {
		errs = append(errs, "websocket.ping_interval must be positive and shorter than websocket.pong_wait")
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if w.MaxMessageBytes < 1 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_bytes must be >= 1, got %d", w.MaxMessageBytes))
	}
	if w.MessagesPerSecond <= 0 {
		errs = append(errs, "websocket.messages_per_second must be positive")
	}
	if w.Burst < 1 {
		errs = append(errs, fmt.Sprintf("websocket.burst must be >= 1, got %d", w.Burst))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	var errs []string
	if a.GRPCHost == "" {
		errs = append(errs, "admin.grpc_host must not be empty")
	}
	if a.GRPCPort < 1 || a.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("admin.grpc_port must be 1-65535, got %d", a.GRPCPort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with MIMIC_ prefix
	v.SetEnvPrefix("MIMIC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	if v == nil {
		return Config{}, errors.New("viper instance must not be nil")
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mimic")
	v.SetDefault("database.password", "mimic")
	v.SetDefault("database.name", "mimic")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.tx_retries", 100)
	v.SetDefault("redis.channel_prefix", "mimic:room:")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "mimic.room-events")
	v.SetDefault("kafka.batch_timeout", "50ms")
	v.SetDefault("kafka.async", true)

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 8000)
	v.SetDefault("websocket.path", "/ws/room")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.max_message_bytes", 4096)
	v.SetDefault("websocket.messages_per_second", 10.0)
	v.SetDefault("websocket.burst", 20)
	v.SetDefault("websocket.allow_origins", "*")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.grpc_host", "127.0.0.1")
	v.SetDefault("admin.grpc_port", 50051)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.store", StoreMemory)
	v.SetDefault("game.broadcast", BroadcastLocal)
	v.SetDefault("game.default_timer", 60)
	v.SetDefault("game.default_rounds", 3)
	v.SetDefault("game.hint_instruction_limit", 100000)
	v.SetDefault("game.random_seed", 0)
}
