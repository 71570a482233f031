// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	manifestFile      = "SKILL.md"
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

// Manifest is a skill declared in a SKILL.md file: YAML frontmatter followed
// by a free-form body used as the skill's long description.
type Manifest struct {
	Name             string              `yaml:"name"`
	Description      string              `yaml:"description"`
	Why              string              `yaml:"why"`
	What             string              `yaml:"what"`
	Roles            []string            `yaml:"roles"`
	NeedConfirmation bool                `yaml:"need-confirmation"`
	Arguments        []ArgumentSpec      `yaml:"arguments"`
	Required         []string            `yaml:"required"`
	Options          map[string][]Option `yaml:"options"`

	Body string `yaml:"-"`
	Path string `yaml:"-"`
	Dir  string `yaml:"-"`
}

// Spec turns the manifest into a registration spec bound to action.
// Enumerators named in "options" are served from the manifest itself.
func (m Manifest) Spec(action ActionFunc) Spec {
	spec := Spec{
		Name:              m.Name,
		Description:       m.Description,
		Why:               m.Why,
		What:              firstNonEmpty(m.What, m.Body),
		Arguments:         m.Arguments,
		RequiredArguments: m.Required,
		Roles:             m.Roles,
		NeedConfirmation:  m.NeedConfirmation,
		Action:            action,
	}
	if len(m.Options) > 0 {
		spec.Enumerators = make(map[string]EnumeratorFunc, len(m.Options))
		for name, opts := range m.Options {
			opts := opts
			spec.Enumerators[name] = func() []Option { return opts }
		}
	}
	return spec
}

// LoadManifestDir scans root for subdirectories containing SKILL.md.
func LoadManifestDir(root string) ([]Manifest, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), manifestFile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := LoadManifest(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// LoadManifest parses a single SKILL.md file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal([]byte(fm), &m); err != nil {
		return Manifest{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	m.Body = strings.TrimSpace(body)
	m.Path = path
	m.Dir = filepath.Dir(path)
	if err := validateManifest(m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func splitFrontmatter(content string) (string, string, error) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", errors.New("missing frontmatter")
	}
	parts := strings.SplitN(trimmed, "---", 3)
	if len(parts) < 3 {
		return "", "", errors.New("invalid frontmatter")
	}
	return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

func validateManifest(m Manifest) error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	desc := strings.TrimSpace(m.Description)
	if desc == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	for _, arg := range m.Arguments {
		if strings.HasPrefix(arg.Type, enumeratorSigil) {
			if _, ok := m.Options[strings.TrimPrefix(arg.Type, enumeratorSigil)]; !ok {
				return fmt.Errorf("argument %q references undeclared options %q", arg.Name, arg.Type)
			}
		}
	}
	return nil
}
