// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 hookhost Contributors

// Package plugin loads hub scripts from disk and tracks their lifecycle.
package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Manifest is the optional <script>.yaml file next to a script.
type Manifest struct {
	Name         string   `yaml:"name,omitempty" validate:"omitempty,max=64" jsonschema:"maxLength=64,pattern=^[A-Za-z0-9][A-Za-z0-9_-]*$"`
	Version      string   `yaml:"version,omitempty" jsonschema:"description=Semantic version of the script"`
	Priority     int      `yaml:"priority,omitempty" validate:"omitempty,min=1,max=1000" jsonschema:"minimum=1,maximum=1000"`
	Capabilities []string `yaml:"capabilities,omitempty" validate:"dive,required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseManifest checks data against the manifest schema, decodes it and
// validates the result.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, ErrInvalidManifest(errors.New("manifest data is empty"))
	}
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, ErrInvalidManifest(err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks field constraints and that the version is semver.
func (m *Manifest) Validate() error {
	if err := validate.Struct(m); err != nil {
		return ErrInvalidManifest(err)
	}
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return ErrInvalidManifest(err)
		}
	}
	return nil
}

// ManifestPath returns where the manifest for scriptPath lives.
func ManifestPath(scriptPath string) string {
	return strings.TrimSuffix(scriptPath, filepath.Ext(scriptPath)) + ".yaml"
}

// ReadManifest loads the manifest next to scriptPath. A missing file yields
// an empty manifest.
func ReadManifest(scriptPath string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(scriptPath)) //nolint:gosec // path derives from an operator-supplied script path
	if errors.Is(err, os.ErrNotExist) {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, oops.In("plugin").Code(CodeInvalidManifest).With("path", ManifestPath(scriptPath)).Wrap(err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, oops.In("plugin").With("path", ManifestPath(scriptPath)).Wrap(err)
	}
	return m, nil
}

// ScriptName returns the manifest name, or the script's base name without
// extension when the manifest has none.
func ScriptName(scriptPath string, m *Manifest) string {
	if m != nil && m.Name != "" {
		return m.Name
	}
	base := filepath.Base(scriptPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
