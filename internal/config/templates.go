package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/danmuck/smgpctl/internal/protocol/session"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Template renders a starter config in the given syntax, filled with the
// session defaults and one example gateway.
func Template(format Format) (string, error) {
	raw := templateFile()
	switch format {
	case FormatTOML:
		out, err := toml.Marshal(raw)
		if err != nil {
			return "", fmt.Errorf("render toml template: %w", err)
		}
		return string(out), nil
	case FormatYAML:
		out, err := yaml.Marshal(raw)
		if err != nil {
			return "", fmt.Errorf("render yaml template: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("unknown config format: %s", format)
	}
}

// WriteTemplate writes a starter config to path, choosing the syntax from its
// extension.
func WriteTemplate(path string, overwrite bool) error {
	template, err := Template(FormatFor(path))
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func templateFile() fileConfig {
	d := session.DefaultConfig()
	return fileConfig{
		AdminAddr:         DefaultAdminAddr,
		CorsOrigins:       []string{"http://localhost:3000"},
		AdminToken:        "",
		LogLevel:          "info",
		ConnectTimeout:    d.ConnectTimeout.String(),
		WriteTimeout:      d.WriteTimeout.String(),
		HeartbeatInterval: d.HeartbeatInterval.String(),
		DeadAfter:         d.DeadAfter.String(),
		HealthyPoll:       d.HealthyPoll.String(),
		DisconnectedPoll:  d.DisconnectedPoll.String(),
		SendAttempts:      d.SendAttempts,
		MaxPacketSize:     d.MaxPacketSize,
		LoginMode:         d.LoginMode,
		BackoffInitial:    d.Backoff.InitialDelay.String(),
		BackoffMax:        d.Backoff.MaxDelay.String(),
		Gateways: []GatewayConfig{{
			Name:      "ismg-primary",
			Host:      "127.0.0.1",
			Port:      DefaultPort,
			Account:   "10001000",
			Secret:    "change-me",
			SrcTermID: "106900001234",
			ServiceID: "SMGPTEST",
		}},
	}
}

// String summarizes cfg for logs. Secrets are left out.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "admin_addr=%s admin_auth=%t log_level=%s", c.AdminAddr, c.AdminToken != "", c.LogLevel)
	fmt.Fprintf(&b, " heartbeat_interval=%s dead_after=%s send_attempts=%d",
		c.Session.HeartbeatInterval, c.Session.DeadAfter, c.Session.SendAttempts)
	for _, gw := range c.Gateways {
		b.WriteString(" gateway=" + gw.Name + "@" + gw.Host + ":" + strconv.Itoa(gw.Port))
	}
	return b.String()
}
