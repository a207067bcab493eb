package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Missing config file must not be an error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Expected default addr :8080, got %s", cfg.Addr)
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Expected default sqlite3 driver, got %s", cfg.Database.Driver)
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairtalkd.yaml")
	body := []byte("addr: \":9000\"\ndatabase:\n  driver: postgres\n  dsn: \"host=localhost dbname=pairtalk\"\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Expected addr :9000, got %s", cfg.Addr)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected a parse error")
	}
}
