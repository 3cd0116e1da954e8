package triage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIBase is used when no submission endpoint is configured.
	DefaultAPIBase = "http://localhost:8000"
	// DefaultListenAddr is the address triagectl serve binds to.
	DefaultListenAddr = ":9876"
)

// Config gathers every tunable for a triage deployment. Values load from an
// optional YAML file and are then overridden by TRIAGE_* environment variables.
type Config struct {
	APIBase       string      `yaml:"api_base" env:"TRIAGE_API_BASE"`
	AdminEmails   []string    `yaml:"admin_emails" env:"TRIAGE_ADMIN_EMAILS" envSeparator:","`
	Collection    string      `yaml:"collection" env:"TRIAGE_COLLECTION"`
	Listen        string      `yaml:"listen" env:"TRIAGE_LISTEN"`
	RedisAddr     string      `yaml:"redis_addr" env:"TRIAGE_REDIS_ADDR"`
	SessionSecret string      `yaml:"session_secret" env:"TRIAGE_SESSION_SECRET"`
	ChartTheme    string      `yaml:"chart_theme" env:"TRIAGE_CHART_THEME"`
	Routes        GuardRoutes `yaml:"routes"`
}

// LoadConfig reads path (when non-empty), applies environment overrides and
// fills defaults. A missing file is an error; an empty path skips the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return Config{}, fmt.Errorf("triage: open config %s: %w", path, err)
		}
		defer f.Close()
		decoded, err := DecodeConfig(f)
		if err != nil {
			return Config{}, fmt.Errorf("triage: decode config %s: %w", path, err)
		}
		cfg = decoded
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("triage: parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// DecodeConfig parses a YAML config document, rejecting unknown keys.
func DecodeConfig(r io.Reader) (Config, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("triage: parse config: %w", err)
	}
	return cfg, nil
}

// WithDefaults returns a copy of c with every empty field defaulted.
func (c Config) WithDefaults() Config {
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.APIBase) == "" {
		c.APIBase = DefaultAPIBase
	}
	c.APIBase = strings.TrimRight(c.APIBase, "/")
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.Listen == "" {
		c.Listen = DefaultListenAddr
	}
	c.Routes = c.Routes.withDefaults()
}

// AdminPolicy returns the allowlist built from AdminEmails.
func (c Config) AdminPolicy() AdminPolicy {
	return NewAdminPolicy(c.AdminEmails...)
}

// AdminPolicy decides which identities hold administrator privilege.
//
// The decision is made entirely from identity data the client can see; a
// server-asserted role claim is the stronger alternative.
type AdminPolicy struct {
	emails map[string]struct{}
}

// NewAdminPolicy builds an allowlist of administrator emails.
func NewAdminPolicy(emails ...string) AdminPolicy {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		email = strings.TrimSpace(email)
		if email == "" {
			continue
		}
		set[email] = struct{}{}
	}
	return AdminPolicy{emails: set}
}

// IsAdmin reports whether identity is present and its email is allowlisted.
func (p AdminPolicy) IsAdmin(identity *Identity) bool {
	if identity == nil || identity.Email == "" {
		return false
	}
	_, ok := p.emails[identity.Email]
	return ok
}

// Emails returns the configured administrator emails.
func (p AdminPolicy) Emails() []string {
	out := make([]string, 0, len(p.emails))
	for email := range p.emails {
		out = append(out, email)
	}
	return out
}
