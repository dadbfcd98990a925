// Package catalog loads the static agent definition catalog.
//
// Definitions are read-only reference data: one YAML document per agent,
// loaded once at process start and never mutated afterwards.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Definition describes one agent type: its specialization, the skills and
// tools it starts with, and the topics its research cycle explores.
type Definition struct {
	Name           string   `yaml:"name"`
	Category       string   `yaml:"category"`
	Specialization string   `yaml:"specialization"`
	Description    string   `yaml:"description"`
	Skills         []string `yaml:"skills"`
	Tools          []string `yaml:"tools"`
	APIs           []string `yaml:"apis"`
	Frameworks     []string `yaml:"frameworks"`
	LearningFocus  []string `yaml:"learning_focus"`
	Metrics        []string `yaml:"metrics"`
}

const (
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// LoadDir scans a directory for agent definition YAML files.
func LoadDir(root string) ([]Definition, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadFile(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// LoadFile parses a single agent definition file. The definition name must
// match the file stem so catalog listings stay greppable.
func LoadFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := validate(def, stem); err != nil {
		return Definition{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	normalize(&def)
	return def, nil
}

func validate(def Definition, stem string) error {
	name := strings.TrimSpace(def.Name)
	if name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if stem != "" && stem != name {
		return fmt.Errorf("name must match file name (%s)", stem)
	}
	desc := strings.TrimSpace(def.Description)
	if desc == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	if strings.TrimSpace(def.Specialization) == "" {
		return errors.New("specialization is required")
	}
	return nil
}

func normalize(def *Definition) {
	def.Name = strings.TrimSpace(def.Name)
	def.Category = strings.TrimSpace(def.Category)
	def.Specialization = strings.TrimSpace(def.Specialization)
	def.Skills = dedupe(def.Skills)
	def.Tools = dedupe(def.Tools)
	def.APIs = dedupe(def.APIs)
	def.Frameworks = dedupe(def.Frameworks)
	def.LearningFocus = dedupe(def.LearningFocus)
	def.Metrics = dedupe(def.Metrics)
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// Registry indexes definitions by name.
type Registry struct {
	byName map[string]Definition
	names  []string
}

// NewRegistry builds a registry from the given definitions.
// Duplicate names are rejected.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{byName: make(map[string]Definition, len(defs))}
	for _, def := range defs {
		if _, ok := r.byName[def.Name]; ok {
			return nil, fmt.Errorf("duplicate agent definition %q", def.Name)
		}
		r.byName[def.Name] = def
		r.names = append(r.names, def.Name)
	}
	return r, nil
}

// Get returns the definition for a name.
func (r *Registry) Get(name string) (Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Names returns all definition names in load order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Len returns the number of definitions.
func (r *Registry) Len() int { return len(r.byName) }
