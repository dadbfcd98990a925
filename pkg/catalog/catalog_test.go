package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const validDefinition = `
name: email-composer
category: communication
specialization: Professional email drafting
description: Drafts outbound email from rough intent.
skills: [copywriting, copywriting, tone adaptation]
learning_focus: [email deliverability, persuasive writing]
metrics: [open_rate]
`

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinition(t, dir, "email-composer.yaml", validDefinition)

	def, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if def.Name != "email-composer" {
		t.Errorf("expected name 'email-composer', got %q", def.Name)
	}
	if len(def.Skills) != 2 {
		t.Errorf("expected duplicate skills deduped to 2, got %v", def.Skills)
	}
	if len(def.LearningFocus) != 2 {
		t.Errorf("expected 2 learning focus topics, got %v", def.LearningFocus)
	}
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			file:    "anon.yaml",
			content: "description: x\nspecialization: y\n",
			wantErr: "name is required",
		},
		{
			name:    "bad name pattern",
			file:    "Bad_Name.yaml",
			content: "name: Bad_Name\ndescription: x\nspecialization: y\n",
			wantErr: "name must match",
		},
		{
			name:    "name file mismatch",
			file:    "other.yaml",
			content: "name: email-composer\ndescription: x\nspecialization: y\n",
			wantErr: "must match file name",
		},
		{
			name:    "missing description",
			file:    "quiet.yaml",
			content: "name: quiet\nspecialization: y\n",
			wantErr: "description is required",
		},
		{
			name:    "missing specialization",
			file:    "vague.yaml",
			content: "name: vague\ndescription: x\n",
			wantErr: "specialization is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeDefinition(t, dir, tt.file, tt.content)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadDirSkipsNonYAML(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "email-composer.yaml", validDefinition)
	writeDefinition(t, dir, "README.md", "# not a definition")

	defs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	if len(defs) != 1 {
		t.Errorf("expected 1 definition, got %d", len(defs))
	}
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(Builtin())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if reg.Len() != 3 {
		t.Errorf("expected 3 builtin definitions, got %d", reg.Len())
	}
	def, ok := reg.Get("email-composer")
	if !ok {
		t.Fatal("expected email-composer to be present")
	}
	if def.Category != "communication" {
		t.Errorf("unexpected category %q", def.Category)
	}
	if _, ok := reg.Get("unknown"); ok {
		t.Error("expected unknown lookup to miss")
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	defs := []Definition{
		{Name: "twin", Description: "a", Specialization: "s"},
		{Name: "twin", Description: "b", Specialization: "s"},
	}
	if _, err := NewRegistry(defs); err == nil {
		t.Fatal("expected duplicate name error")
	}
}
