// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds everything the relay server and the terminal client read from
// the environment. Values have local-friendly defaults; only the JWT secret
// is mandatory for the server.
type Config struct {
	// ListenAddr is the relay server bind address.
	ListenAddr string

	// RingWindow bounds how long an invitation may ring before timeout.
	RingWindow time.Duration

	// STUNServers are the ICE server URLs handed to peer sessions.
	STUNServers []string

	// JWTSecret signs media session tokens. Required by the server.
	JWTSecret string

	// TokenTTL is the media session token lifetime.
	TokenTTL time.Duration
}

// Load reads configuration from VETCALL_* environment variables and applies
// defaults.
func Load() (Config, error) {
	c := Config{
		ListenAddr: ":8080",
		RingWindow: 30 * time.Second,
		TokenTTL:   15 * time.Minute,
	}

	if v := strings.TrimSpace(os.Getenv("VETCALL_ADDR")); v != "" {
		c.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("VETCALL_RING_WINDOW")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("VETCALL_RING_WINDOW must be a duration, got %q", v)
		}
		c.RingWindow = d
	}
	if v := strings.TrimSpace(os.Getenv("VETCALL_STUN_SERVERS")); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.STUNServers = append(c.STUNServers, s)
			}
		}
	}
	c.JWTSecret = os.Getenv("VETCALL_JWT_SECRET")
	if v := strings.TrimSpace(os.Getenv("VETCALL_TOKEN_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("VETCALL_TOKEN_TTL must be a duration, got %q", v)
		}
		c.TokenTTL = d
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks invariants that hold for both binaries.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if c.RingWindow <= 0 {
		errs = append(errs, errors.New("ring window must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token TTL must be positive"))
	}
	return errors.Join(errs...)
}
