package session

import (
	"time"

	"github.com/danmuck/smgpctl/internal/protocol"
)

// BackoffConfig defines retry backoff behavior for initial connects.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines session reliability defaults.
type Config struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	// HeartbeatInterval is the silence after which an ActiveTest probe is sent
	// and the wait that follows it.
	HeartbeatInterval time.Duration
	// DeadAfter is the silence (and connect age) after which the link is
	// declared dead and rebuilt.
	DeadAfter        time.Duration
	HealthyPoll      time.Duration
	DisconnectedPoll time.Duration
	SendAttempts     int
	MaxPacketSize    uint32
	// LoginMode is sent verbatim; zero is send-only.
	LoginMode uint8
	Backoff   BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    10 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		DeadAfter:         180 * time.Second,
		HealthyPoll:       2 * time.Second,
		DisconnectedPoll:  5 * time.Second,
		SendAttempts:      3,
		MaxPacketSize:     8 * 1024,
		LoginMode:         protocol.LoginModeTransmit,
		Backoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.DeadAfter <= 0 {
		c.DeadAfter = d.DeadAfter
	}
	if c.HealthyPoll <= 0 {
		c.HealthyPoll = d.HealthyPoll
	}
	if c.DisconnectedPoll <= 0 {
		c.DisconnectedPoll = d.DisconnectedPoll
	}
	if c.SendAttempts <= 0 {
		c.SendAttempts = d.SendAttempts
	}
	if c.MaxPacketSize == 0 {
		c.MaxPacketSize = d.MaxPacketSize
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = d.Backoff
	}
	return c
}
