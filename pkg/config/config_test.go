// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openchami/realmgate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	s := Secret("s3cr3t")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
	assert.Equal(t, "s3cr3t", s.Value())

	text, err := s.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "[REDACTED]", string(text))

	assert.Equal(t, "", Secret("").String())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "realmgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9090"
idp:
  base_url: https://idp.example.org
  realm: qrswitch
  client_id: gateway
admin:
  username: svc-admin
  safety_margin: 30s
claims:
  parse_mode: strict
`), 0o600))

	t.Setenv("REALMGATE_ADMIN_PASSWORD", "from-env")
	t.Setenv("REALMGATE_IDP_CLIENT_SECRET", "client-secret")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "https://idp.example.org", cfg.IdP.BaseURL)
	assert.Equal(t, "qrswitch", cfg.IdP.Realm)
	assert.Equal(t, "gateway", cfg.IdP.ClientID)
	assert.Equal(t, "client-secret", cfg.IdP.ClientSecret.Value())
	assert.Equal(t, "svc-admin", cfg.Admin.Username)
	assert.Equal(t, "from-env", cfg.Admin.Password.Value())
	assert.Equal(t, 30*time.Second, cfg.Admin.SafetyMargin)
	assert.Equal(t, "master", cfg.Admin.Realm)
	assert.Equal(t, "admin-cli", cfg.Admin.ClientID)
	assert.Equal(t, "strict", cfg.Claims.ParseMode)
	assert.Equal(t, 10*time.Second, cfg.IdP.HTTPTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Admin.Username = "svc"
		c.Admin.Password = "pw"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		code   errors.ErrorCode
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.IdP.BaseURL = "" }, code: errors.ErrCodeMissingConfig},
		{name: "relative base url", mutate: func(c *Config) { c.IdP.BaseURL = "idp.local" }, code: errors.ErrCodeInvalidConfig},
		{name: "missing realm", mutate: func(c *Config) { c.IdP.Realm = "" }, code: errors.ErrCodeMissingConfig},
		{name: "missing admin password", mutate: func(c *Config) { c.Admin.Password = "" }, code: errors.ErrCodeMissingConfig},
		{name: "negative margin", mutate: func(c *Config) { c.Admin.SafetyMargin = -time.Second }, code: errors.ErrCodeInvalidConfig},
		{name: "unknown parse mode", mutate: func(c *Config) { c.Claims.ParseMode = "permissive" }, code: errors.ErrCodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetErrorCode(err))
		})
	}
}

func TestSaveRedactsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Admin.Username = "svc"
	cfg.Admin.Password = "do-not-write"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "do-not-write")
	assert.Contains(t, string(data), "[REDACTED]")
	assert.Contains(t, string(data), "safety_margin")
}
