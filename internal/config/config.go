package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/smgpctl/internal/protocol"
	"github.com/danmuck/smgpctl/internal/protocol/session"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoGateways    = errors.New("config: no gateways configured")
	ErrUnknownKeys   = errors.New("config: unknown keys")
	ErrInvalidConfig = errors.New("config: invalid")
)

// Format selects the file syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

const (
	DefaultAdminAddr = "127.0.0.1:9180"
	DefaultPort      = 8890

	maxAccountLen   = 8
	maxTermIDLen    = 21
	maxServiceIDLen = 10
)

// GatewayConfig is one [[gateways]] entry.
type GatewayConfig struct {
	Name      string `toml:"name" yaml:"name"`
	Host      string `toml:"host" yaml:"host"`
	Port      int    `toml:"port" yaml:"port"`
	Account   string `toml:"account" yaml:"account"`
	Secret    string `toml:"secret" yaml:"secret"`
	SrcTermID string `toml:"src_term_id,omitempty" yaml:"src_term_id,omitempty"`
	ServiceID string `toml:"service_id,omitempty" yaml:"service_id,omitempty"`
}

// Config is the resolved runtime configuration.
type Config struct {
	AdminAddr   string
	CorsOrigins []string
	// AdminToken guards the /gateways routes when set.
	AdminToken  string
	LogLevel    string
	Session     session.Config
	Gateways    []GatewayConfig
}

// smgpctl config file key mapping.
type fileConfig struct {
	AdminAddr         string          `toml:"admin_addr" yaml:"admin_addr"`
	CorsOrigins       []string        `toml:"cors_origins" yaml:"cors_origins"`
	AdminToken        string          `toml:"admin_token" yaml:"admin_token"`
	LogLevel          string          `toml:"log_level" yaml:"log_level"`
	ConnectTimeout    string          `toml:"connect_timeout" yaml:"connect_timeout"`
	WriteTimeout      string          `toml:"write_timeout" yaml:"write_timeout"`
	HeartbeatInterval string          `toml:"heartbeat_interval" yaml:"heartbeat_interval"`
	DeadAfter         string          `toml:"dead_after" yaml:"dead_after"`
	HealthyPoll       string          `toml:"healthy_poll" yaml:"healthy_poll"`
	DisconnectedPoll  string          `toml:"disconnected_poll" yaml:"disconnected_poll"`
	SendAttempts      int             `toml:"send_attempts" yaml:"send_attempts"`
	MaxPacketSize     uint32          `toml:"max_packet_size" yaml:"max_packet_size"`
	LoginMode         uint8           `toml:"login_mode" yaml:"login_mode"`
	BackoffInitial    string          `toml:"backoff_initial" yaml:"backoff_initial"`
	BackoffMax        string          `toml:"backoff_max" yaml:"backoff_max"`
	Gateways          []GatewayConfig `toml:"gateways" yaml:"gateways"`
}

func Default() Config {
	return Config{
		AdminAddr: DefaultAdminAddr,
		LogLevel:  "info",
		Session:   session.DefaultConfig(),
	}
}

// FormatFor picks the syntax from the file extension; anything that is not
// .yaml or .yml is read as TOML.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data, overlays the keys it defines on Default and validates
// the result.
func Parse(data []byte, format Format) (Config, error) {
	var (
		raw     fileConfig
		defined func(key string) bool
		err     error
	)
	switch format {
	case FormatYAML:
		defined, err = decodeYAML(data, &raw)
	default:
		defined, err = decodeTOML(data, &raw)
	}
	if err != nil {
		return Config{}, err
	}
	cfg, err := overlay(raw, defined)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeTOML(data []byte, raw *fileConfig) (func(string) bool, error) {
	meta, err := toml.Decode(string(data), raw)
	if err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
	}
	return func(key string) bool { return meta.IsDefined(key) }, nil
}

func decodeYAML(data []byte, raw *fileConfig) (func(string) bool, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(raw); err != nil {
		if strings.Contains(err.Error(), "not found in type") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownKeys, err)
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return func(key string) bool {
		_, ok := tree[key]
		return ok
	}, nil
}

func overlay(raw fileConfig, defined func(string) bool) (Config, error) {
	cfg := Default()
	if defined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if defined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if defined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if defined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	durations := []struct {
		key    string
		value  string
		target *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.Session.HeartbeatInterval},
		{"dead_after", raw.DeadAfter, &cfg.Session.DeadAfter},
		{"healthy_poll", raw.HealthyPoll, &cfg.Session.HealthyPoll},
		{"disconnected_poll", raw.DisconnectedPoll, &cfg.Session.DisconnectedPoll},
		{"backoff_initial", raw.BackoffInitial, &cfg.Session.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !defined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if defined("send_attempts") {
		cfg.Session.SendAttempts = raw.SendAttempts
	}
	if defined("max_packet_size") {
		cfg.Session.MaxPacketSize = raw.MaxPacketSize
	}
	if defined("login_mode") {
		cfg.Session.LoginMode = raw.LoginMode
	}

	cfg.Gateways = make([]GatewayConfig, 0, len(raw.Gateways))
	for _, gw := range raw.Gateways {
		gw.Name = strings.TrimSpace(gw.Name)
		gw.Host = strings.TrimSpace(gw.Host)
		gw.Account = strings.TrimSpace(gw.Account)
		gw.SrcTermID = strings.TrimSpace(gw.SrcTermID)
		gw.ServiceID = strings.TrimSpace(gw.ServiceID)
		if gw.Port == 0 {
			gw.Port = DefaultPort
		}
		cfg.Gateways = append(cfg.Gateways, gw)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("%w: admin_addr is required", ErrInvalidConfig)
	}
	if err := ValidateSessionConfig(cfg.Session); err != nil {
		return err
	}
	if len(cfg.Gateways) == 0 {
		return ErrNoGateways
	}
	seen := make(map[string]struct{}, len(cfg.Gateways))
	for i, gw := range cfg.Gateways {
		if err := ValidateGatewayConfig(gw); err != nil {
			return fmt.Errorf("gateway[%d] invalid: %w", i, err)
		}
		if _, dup := seen[gw.Name]; dup {
			return fmt.Errorf("gateway[%d] invalid: %w: duplicate name %q", i, ErrInvalidConfig, gw.Name)
		}
		seen[gw.Name] = struct{}{}
	}
	return nil
}

func ValidateSessionConfig(cfg session.Config) error {
	positive := map[string]time.Duration{
		"connect_timeout":    cfg.ConnectTimeout,
		"write_timeout":      cfg.WriteTimeout,
		"heartbeat_interval": cfg.HeartbeatInterval,
		"dead_after":         cfg.DeadAfter,
		"healthy_poll":       cfg.HealthyPoll,
		"disconnected_poll":  cfg.DisconnectedPoll,
	}
	keys := make([]string, 0, len(positive))
	for key := range positive {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if positive[key] <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, key)
		}
	}
	if cfg.DeadAfter <= cfg.HeartbeatInterval {
		return fmt.Errorf("%w: dead_after (%s) must exceed heartbeat_interval (%s)",
			ErrInvalidConfig, cfg.DeadAfter, cfg.HeartbeatInterval)
	}
	if cfg.SendAttempts < 1 {
		return fmt.Errorf("%w: send_attempts must be at least 1", ErrInvalidConfig)
	}
	if cfg.MaxPacketSize < protocol.HeaderSize {
		return fmt.Errorf("%w: max_packet_size %d below header size", ErrInvalidConfig, cfg.MaxPacketSize)
	}
	if cfg.LoginMode > protocol.LoginModeTransmit {
		return fmt.Errorf("%w: login_mode %d", ErrInvalidConfig, cfg.LoginMode)
	}
	return nil
}

func ValidateGatewayConfig(cfg GatewayConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}
	account := strings.TrimSpace(cfg.Account)
	if account == "" {
		return fmt.Errorf("%w: account is required", ErrInvalidConfig)
	}
	if len(account) > maxAccountLen {
		return fmt.Errorf("%w: account longer than %d bytes", ErrInvalidConfig, maxAccountLen)
	}
	if len(cfg.SrcTermID) > maxTermIDLen {
		return fmt.Errorf("%w: src_term_id longer than %d bytes", ErrInvalidConfig, maxTermIDLen)
	}
	if len(cfg.ServiceID) > maxServiceIDLen {
		return fmt.Errorf("%w: service_id longer than %d bytes", ErrInvalidConfig, maxServiceIDLen)
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		v := strings.TrimSpace(item)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
