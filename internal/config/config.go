// Package config loads the gateway's typed JSON configuration record
// (component H). It mirrors the teacher's Caddyfile-unmarshal-then-
// default-fill pattern (caddy-plugin/module.go Provision), translated to
// JSON since this gateway is a standalone binary with its own config
// file rather than a Caddy module.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ACLRule is one entry of the "acl" array in the config file. Fields left
// zero-valued are treated as "no predicate" for that dimension (component
// C evaluates only the predicates present).
type ACLRule struct {
	HTTPBasicAuth string `json:"http_basic_auth,omitempty"`
	CIDR          string `json:"cidr,omitempty"`
	Verb          string `json:"verb,omitempty"`
	Enabled       bool   `json:"enabled,omitempty"`
	Disabled      bool   `json:"disabled,omitempty"`
}

// Allows reports the rule's verdict: enabled rules admit, disabled rules
// deny. A rule with neither flag set defaults to deny, matching the
// spec's "default deny unless no rules are configured" posture once a
// rule has matched.
func (r ACLRule) Allows() bool {
	return r.Enabled && !r.Disabled
}

// Config is the gateway's fully-resolved, immutable-after-load
// configuration record.
type Config struct {
	RedisHost string    `json:"redis_host"`
	RedisPort int       `json:"redis_port"`
	RedisAuth string    `json:"redis_auth,omitempty"`
	HTTPHost  string    `json:"http_host"`
	HTTPPort  int       `json:"http_port"`
	User      *int      `json:"user,omitempty"`
	Group     *int      `json:"group,omitempty"`
	ACL       []ACLRule `json:"acl,omitempty"`
	Verbosity string    `json:"verbosity,omitempty"`
}

// Defaults applied to zero-valued optional fields.
const (
	DefaultHTTPHost  = "127.0.0.1"
	DefaultHTTPPort  = 7379
	DefaultRedisHost = "127.0.0.1"
	DefaultRedisPort = 6379
	DefaultVerbosity = "info"
)

// Load reads and validates the JSON configuration file at path, applying
// defaults for any zero-valued optional field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTPHost == "" {
		c.HTTPHost = DefaultHTTPHost
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = DefaultHTTPPort
	}
	if c.RedisHost == "" {
		c.RedisHost = DefaultRedisHost
	}
	if c.RedisPort == 0 && !strings.HasPrefix(c.RedisHost, "/") {
		c.RedisPort = DefaultRedisPort
	}
	if c.Verbosity == "" {
		c.Verbosity = DefaultVerbosity
	}
}

func (c *Config) validate() error {
	switch c.Verbosity {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid verbosity %q", c.Verbosity)
	}
	if c.User != nil && *c.User < 0 {
		return fmt.Errorf("invalid user %d", *c.User)
	}
	if c.Group != nil && *c.Group < 0 {
		return fmt.Errorf("invalid group %d", *c.Group)
	}
	return nil
}

// IsUnixSocket reports whether RedisHost names a UNIX socket path rather
// than a TCP hostname (the "leading / means UNIX path" rule).
func (c *Config) IsUnixSocket() bool {
	return strings.HasPrefix(c.RedisHost, "/")
}

// HTTPAddr returns the "host:port" string to bind the HTTP listener to.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}
