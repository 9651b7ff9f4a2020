// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package policy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openchami/realmgate/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RegistryFile is the on-disk form of a registry overlay.
//
//	version: "1"
//	replace: false
//	operations:
//	  - method: POST
//	    route: /api/users
//	    permission: CreateUser
//	  - method: GET
//	    route: /api/roles
//	    role: realm-admin
//	  - method: GET
//	    route: /api/roles/users/{username}
//	    open: true
type RegistryFile struct {
	Version string `yaml:"version"`
	// Replace discards the built-in table instead of overlaying it.
	Replace    bool            `yaml:"replace"`
	Operations []FileOperation `yaml:"operations"`
}

// FileOperation is one row of a RegistryFile. Exactly one of Permission,
// Role and Open must be set. Open removes any requirement for the operation.
type FileOperation struct {
	Method     string `yaml:"method"`
	Route      string `yaml:"route"`
	Permission string `yaml:"permission,omitempty"`
	Role       string `yaml:"role,omitempty"`
	Open       bool   `yaml:"open,omitempty"`
}

// Remove drops any requirement for the operation, leaving it open.
func (b *RegistryBuilder) Remove(method, pattern string) *RegistryBuilder {
	delete(b.entries, OperationID(method, pattern))
	return b
}

// Reset drops every entry.
func (b *RegistryBuilder) Reset() *RegistryBuilder {
	b.entries = make(map[string]Entry)
	return b
}

// Apply overlays f onto the builder.
func (b *RegistryBuilder) Apply(f *RegistryFile) error {
	if f.Replace {
		b.Reset()
	}
	for i, op := range f.Operations {
		set := 0
		for _, v := range []bool{op.Permission != "", op.Role != "", op.Open} {
			if v {
				set++
			}
		}
		if set != 1 {
			return errors.Newf(errors.ErrCodeInvalidConfig,
				"operation %d (%s): exactly one of permission, role or open is required", i, OperationID(op.Method, op.Route))
		}

		switch {
		case op.Open:
			b.Remove(op.Method, op.Route)
		case op.Permission != "":
			b.Permission(op.Method, op.Route, op.Permission)
		default:
			b.Role(op.Method, op.Route, op.Role)
		}
	}
	return nil
}

// ParseRegistryFile decodes a registry overlay. Unknown keys are rejected so
// a misspelt field cannot silently open an operation.
func ParseRegistryFile(data []byte) (*RegistryFile, error) {
	var f RegistryFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to parse policy registry file")
	}
	if f.Version != "" && f.Version != "1" {
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unsupported policy registry version %q", f.Version)
	}
	return &f, nil
}

// LoadRegistryFile overlays the file at path onto defaults and builds the
// validated registry. An empty path builds defaults unchanged.
func LoadRegistryFile(path string, defaults *RegistryBuilder) (*Registry, error) {
	pl := NewPolicyLogger()
	if defaults == nil {
		defaults = NewRegistryBuilder()
	}

	source := "built-in"
	if path != "" {
		source = filepath.Clean(path)
		data, err := os.ReadFile(source)
		if err != nil {
			err = errors.Wrap(err, errors.ErrCodeInvalidConfig, fmt.Sprintf("failed to read policy registry file %s", source))
			pl.LogRegistryLoaded(source, nil, err)
			return nil, err
		}
		f, err := ParseRegistryFile(data)
		if err == nil {
			err = defaults.Apply(f)
		}
		if err != nil {
			pl.LogRegistryLoaded(source, nil, err)
			return nil, err
		}
	}

	pl.LogValidation(source, defaults.Validate())
	registry, err := defaults.BuildValidated()
	pl.LogRegistryLoaded(source, registry, err)
	return registry, err
}
