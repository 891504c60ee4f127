package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/normanjoyner/quic"
)

// fileConfig is the on-disk YAML shape for quince's listener/CLI
// defaults, loaded with gopkg.in/yaml.v3 the way nishisan-dev-n-backup
// decodes its own single-file config into a typed struct.
type fileConfig struct {
	Listen    string `yaml:"listen"`
	LogLevel  int    `yaml:"log_level"`
	CertFile  string `yaml:"cert_file"`
	KeyFile   string `yaml:"key_file"`
	Insecure  bool   `yaml:"insecure"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Listen:   "0.0.0.0:0",
		LogLevel: 2,
	}
}

// loadFileConfig reads path if non-empty, overlaying its values onto the
// defaults; a missing --config flag is not an error, per the CLI's
// flag-first, file-as-defaults precedence.
func loadFileConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newConfig() *quic.Config {
	return quic.NewConfig()
}
