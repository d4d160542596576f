// Package config loads the YAML configuration shared by routegrammard and
// routectl.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/psaab/iproute2/pkg/grammar"
	"github.com/psaab/iproute2/pkg/logging"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/routegrammar/routegrammar.yaml"

// Config is the whole configuration file.
type Config struct {
	Parser ParserConfig    `yaml:"parser"`
	IP     IPConfig        `yaml:"ip"`
	Store  StoreConfig     `yaml:"store"`
	API    APIConfig       `yaml:"api"`
	Log    logging.Options `yaml:"log"`
	Tables []TableConfig   `yaml:"tables"`
}

// ParserConfig selects the grammar options.
type ParserConfig struct {
	Multipath  bool   `yaml:"multipath"`
	Duplicates string `yaml:"duplicates"` // first, last, reject
	Trailing   string `yaml:"trailing"`   // reject, allow
}

// IPConfig locates the ip binary.
type IPConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig locates the route table database. An empty path disables
// persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// APIConfig holds listen addresses. Empty disables the listener. When
// users or API keys are set the HTTP API requires one of them.
type APIConfig struct {
	HTTPAddr string            `yaml:"http_addr"`
	GRPCAddr string            `yaml:"grpc_addr"`
	Users    map[string]string `yaml:"users,omitempty"`
	APIKeys  []string          `yaml:"api_keys,omitempty"`
}

// AuthEnabled reports whether HTTP credentials are configured.
func (a APIConfig) AuthEnabled() bool {
	return len(a.Users) > 0 || len(a.APIKeys) > 0
}

// TableConfig names a routes file to load into a table at startup.
type TableConfig struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	File        string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Parser: ParserConfig{
			Duplicates: grammar.DuplicateFirstWins.String(),
			Trailing:   grammar.TrailingReject.String(),
		},
		IP: IPConfig{Binary: "ip", Timeout: 5 * time.Second},
		Store: StoreConfig{
			Path: "/var/lib/routegrammar/tables.db",
		},
		API: APIConfig{
			HTTPAddr: "127.0.0.1:8080",
			GRPCAddr: "127.0.0.1:50051",
		},
		Log: logging.Options{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML from r over the defaults and validates the result.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the YAML decoder cannot.
func (c *Config) Validate() error {
	if _, err := c.ParserOptions(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.IP.Timeout < 0 {
		return fmt.Errorf("ip timeout %s is negative", c.IP.Timeout)
	}
	for user, pass := range c.API.Users {
		if pass == "" {
			return fmt.Errorf("api user %q has an empty password", user)
		}
	}
	seen := make(map[string]bool, len(c.Tables))
	for i, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("tables[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("tables[%d]: duplicate table %q", i, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// ParserOptions converts the parser section to grammar options.
func (c *Config) ParserOptions() (grammar.Options, error) {
	dup, err := grammar.ParseDuplicatePolicy(c.Parser.Duplicates)
	if err != nil {
		return grammar.Options{}, fmt.Errorf("parser duplicates: %w", err)
	}
	trail, err := grammar.ParseTrailingPolicy(c.Parser.Trailing)
	if err != nil {
		return grammar.Options{}, fmt.Errorf("parser trailing: %w", err)
	}
	return grammar.Options{
		Multipath:  c.Parser.Multipath,
		Duplicates: dup,
		Trailing:   trail,
	}, nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
