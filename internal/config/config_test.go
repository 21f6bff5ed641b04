package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := &Config{
		DefaultSession: "work",
		Backend:        Backend{URL: "https://x.example.co", APIKey: "anon-key"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultSession != "work" {
		t.Errorf("DefaultSession = %q, want %q", loaded.DefaultSession, "work")
	}
	if loaded.Backend.URL != "https://x.example.co" {
		t.Errorf("Backend.URL = %q", loaded.Backend.URL)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, &Config{Backend: Backend{URL: "https://file.example.co", APIKey: "k"}}); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SKILLSWAP_BACKEND_URL", "https://env.example.co")
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Backend.URL != "https://env.example.co" {
		t.Errorf("Backend.URL = %q, want env override", loaded.Backend.URL)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected error for empty backend config")
	}
	cfg.Backend = Backend{URL: "https://x", APIKey: "k"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save(path, &Config{DefaultSession: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
