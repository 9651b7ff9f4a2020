// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

// Package config loads realmgate settings from flags, REALMGATE_* environment
// variables and an optional YAML or JSON file, in that order of precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/openchami/realmgate/pkg/logging"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable, e.g.
// REALMGATE_ADMIN_PASSWORD for admin.password.
const EnvPrefix = "REALMGATE"

const secretRedacted = "[REDACTED]"

// Secret is a string that redacts itself when printed, logged or marshaled.
// The real value is only reachable through Value.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secretRedacted
}

// GoString implements fmt.GoStringer so %#v is redacted too.
func (s Secret) GoString() string { return s.String() }

// Value returns the unredacted secret.
func (s Secret) Value() string { return string(s) }

// MarshalText implements encoding.TextMarshaler.
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Config is the complete gateway configuration.
type Config struct {
	ListenAddr string         `mapstructure:"listen_addr" yaml:"listen_addr"`
	IdP        IdPConfig      `mapstructure:"idp" yaml:"idp"`
	Admin      AdminConfig    `mapstructure:"admin" yaml:"admin"`
	Claims     ClaimsConfig   `mapstructure:"claims" yaml:"claims"`
	Policy     PolicyConfig   `mapstructure:"policy" yaml:"policy"`
	Log        logging.Config `mapstructure:"log" yaml:"log"`
}

// IdPConfig describes the realm the gateway protects and the confidential
// client it acts as.
type IdPConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	Realm        string        `mapstructure:"realm" yaml:"realm"`
	ClientID     string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret Secret        `mapstructure:"client_secret" yaml:"client_secret"`
	Audience     string        `mapstructure:"audience" yaml:"audience"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout" yaml:"http_timeout"`
}

// AdminConfig describes the privileged service account used for admin calls.
type AdminConfig struct {
	Realm          string        `mapstructure:"realm" yaml:"realm"`
	ClientID       string        `mapstructure:"client_id" yaml:"client_id"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       Secret        `mapstructure:"password" yaml:"password"`
	SafetyMargin   time.Duration `mapstructure:"safety_margin" yaml:"safety_margin"`
	ClientCacheTTL time.Duration `mapstructure:"client_cache_ttl" yaml:"client_cache_ttl"`
}

// ClaimsConfig controls how validated tokens are turned into identities.
type ClaimsConfig struct {
	// ParseMode is "lenient" or "strict".
	ParseMode   string `mapstructure:"parse_mode" yaml:"parse_mode"`
	ExchangeRPT bool   `mapstructure:"exchange_rpt" yaml:"exchange_rpt"`
}

// PolicyConfig points at an optional requirement table that overrides the
// built-in route requirements.
type PolicyConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	log := logging.DefaultConfig()
	return &Config{
		ListenAddr: ":8080",
		IdP: IdPConfig{
			BaseURL:     "http://localhost:8180",
			Realm:       "realmgate",
			ClientID:    "realmgate",
			HTTPTimeout: 10 * time.Second,
		},
		Admin: AdminConfig{
			Realm:          "master",
			ClientID:       "admin-cli",
			SafetyMargin:   60 * time.Second,
			ClientCacheTTL: 10 * time.Minute,
		},
		Claims: ClaimsConfig{
			ParseMode: "lenient",
		},
		Log: *log,
	}
}

// NewViper returns a viper instance preloaded with defaults and wired to the
// REALMGATE_ environment namespace.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("idp.base_url", d.IdP.BaseURL)
	v.SetDefault("idp.realm", d.IdP.Realm)
	v.SetDefault("idp.client_id", d.IdP.ClientID)
	v.SetDefault("idp.client_secret", "")
	v.SetDefault("idp.audience", "")
	v.SetDefault("idp.http_timeout", d.IdP.HTTPTimeout)
	v.SetDefault("admin.realm", d.Admin.Realm)
	v.SetDefault("admin.client_id", d.Admin.ClientID)
	v.SetDefault("admin.username", "")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.safety_margin", d.Admin.SafetyMargin)
	v.SetDefault("admin.client_cache_ttl", d.Admin.ClientCacheTTL)
	v.SetDefault("claims.parse_mode", d.Claims.ParseMode)
	v.SetDefault("claims.exchange_rpt", d.Claims.ExchangeRPT)
	v.SetDefault("policy.file", "")
	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.format", string(d.Log.Format))
	v.SetDefault("log.service_name", d.Log.ServiceName)
	v.SetDefault("log.environment", d.Log.Environment)
	v.SetDefault("log.version", d.Log.Version)
	v.SetDefault("log.caller", d.Log.Caller)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile (if non-empty) into v and decodes the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, errors.ErrCodeInvalidConfig, "failed to read config file %s", configFile)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.IdP.BaseURL == "" {
		return errors.New(errors.ErrCodeMissingConfig, "idp.base_url is required")
	}
	u, err := url.Parse(c.IdP.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.Newf(errors.ErrCodeInvalidConfig, "idp.base_url %q is not an absolute URL", c.IdP.BaseURL)
	}
	if c.IdP.Realm == "" {
		return errors.New(errors.ErrCodeMissingConfig, "idp.realm is required")
	}
	if c.IdP.ClientID == "" {
		return errors.New(errors.ErrCodeMissingConfig, "idp.client_id is required")
	}
	if c.Admin.Username == "" || c.Admin.Password == "" {
		return errors.New(errors.ErrCodeMissingConfig, "admin.username and admin.password are required")
	}
	if c.Admin.SafetyMargin < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "admin.safety_margin must not be negative")
	}
	switch c.Claims.ParseMode {
	case "lenient", "strict":
	default:
		return errors.Newf(errors.ErrCodeInvalidConfig, "claims.parse_mode must be lenient or strict, got %q", c.Claims.ParseMode)
	}
	return nil
}

// Save writes cfg to path as YAML. Secrets are written redacted so a
// generated file never contains credentials.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
