package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Conf holds server configuration, loaded from a YAML file.
type Conf struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Paths
	BoltPath    string `yaml:"bolt_path"`
	HistoryPath string `yaml:"history_path"`
	SeedDir     string `yaml:"seed_dir"`

	// Activity log entries older than this are pruned. Zero or negative
	// keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`

	// Rooms listed here are activated at startup. Empty means: activate
	// every stored room.
	AutoActivate []string `yaml:"auto_activate"`

	// Auth
	JWTSecret string `yaml:"jwt_secret"`
	JWTExpiry int    `yaml:"jwt_expiry_seconds"`

	// HTTP hardening
	CORSOrigins []string `yaml:"cors_origins"`
	RateLimit   int      `yaml:"rate_limit_per_minute"`

	// TLS. Domain enables Let's Encrypt; cert/key files take a provided pair.
	Domain   string `yaml:"domain"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CertDir  string `yaml:"cert_dir"`
}

// DefaultConf returns the configuration used when no file is given.
func DefaultConf() Conf {
	return Conf{
		Host:                 "",
		Port:                 3000,
		BoltPath:             "data/roomctl.db",
		HistoryPath:          "data/history.db",
		HistoryRetentionDays: 30,
		RateLimit:            600,
		JWTExpiry:            12 * 3600,
	}
}

// LoadConf reads a YAML config file, applying defaults for absent fields.
func LoadConf(path string) (Conf, error) {
	c := DefaultConf()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parsing %s: %w", path, err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return c, fmt.Errorf("%s: invalid port %d", path, c.Port)
	}
	return c, nil
}
