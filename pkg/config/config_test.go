package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
}

func (s *sample) ApplyEnv() {
	if s.Secret == "" {
		s.Secret = os.Getenv("SAMPLE_SECRET")
	}
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "casi")
	path := writeFile(t, "name: ${SAMPLE_NAME}\nsecret: inline\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "casi" || s.Secret != "inline" {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_EnvFallbackForEmptyField(t *testing.T) {
	t.Setenv("SAMPLE_SECRET", "from-env")
	path := writeFile(t, "name: casi\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Secret != "from-env" {
		t.Errorf("Secret = %q", s.Secret)
	}
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeFile(t, "secret: x\n")
	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional_MissingFileKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_SECRET", "env-only")
	s := sample{Name: "default"}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if s.Name != "default" || s.Secret != "env-only" {
		t.Errorf("got %+v", s)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &s); err == nil {
		t.Fatal("expected error")
	}
}
