package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileConfigWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := loadFileConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != defaultFileConfig() {
		t.Fatalf("loadFileConfig(\"\") = %+v, want defaults %+v", cfg, defaultFileConfig())
	}
}

func TestLoadFileConfigOverlaysYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quince.yaml")
	yaml := "listen: 127.0.0.1:9000\nlog_level: 4\ninsecure: true\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadFileConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "127.0.0.1:9000" || cfg.LogLevel != 4 || !cfg.Insecure {
		t.Fatalf("loadFileConfig() = %+v, want overlay applied", cfg)
	}
}

func TestLoadFileConfigMissingFileErrors(t *testing.T) {
	if _, err := loadFileConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("loadFileConfig with a nonexistent path should error")
	}
}

func TestNewConfigProducesUsableDefaults(t *testing.T) {
	c := newConfig()
	if c.MinCIDPoolSize == 0 {
		t.Fatal("newConfig() should apply quic.NewConfig defaults")
	}
}
