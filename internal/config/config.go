// Package config loads the appstore YAML configuration and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/3cpo-dev/appstore/internal/catalog"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Installer InstallerConfig `yaml:"installer"`
	Catalog   catalog.Config  `yaml:"catalog"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Host        string    `yaml:"host"`
	Port        int       `yaml:"port"`
	CORSOrigins []string  `yaml:"cors_origins"`
	Token       string    `yaml:"token"`
	AssetsDir   string    `yaml:"assets_dir"`
	WebDir      string    `yaml:"web_dir"`
	TLS         TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Cert        string `yaml:"cert"`
	Key         string `yaml:"key"`
	ClientCA    string `yaml:"client_ca"`
	RequireMTLS bool   `yaml:"require_mtls"`
}

func (t TLSConfig) Enabled() bool { return t.Cert != "" && t.Key != "" }

type InstallerConfig struct {
	Interpreter       string        `yaml:"interpreter"`
	ScriptsDir        string        `yaml:"scripts_dir"`
	WorkDir           string        `yaml:"work_dir"`
	Frontend          string        `yaml:"frontend"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	DetectTimeout     time.Duration `yaml:"detect_timeout"`
	DetectConcurrency int           `yaml:"detect_concurrency"`
	StartTimeout      time.Duration `yaml:"start_timeout"`
}

type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Addr is host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			CORSOrigins: []string{"*"},
			AssetsDir:   "assets",
			WebDir:      "web",
		},
		Installer: InstallerConfig{
			Interpreter:       "bash",
			ScriptsDir:        "scripts",
			Frontend:          "noninteractive",
			PollInterval:      500 * time.Millisecond,
			DetectTimeout:     5 * time.Second,
			DetectConcurrency: 8,
			StartTimeout:      2 * time.Minute,
		},
		Catalog: catalog.Config{
			Source: "static",
		},
	}
}

// Dir is $XDG_CONFIG_HOME/appstore or ~/.config/appstore.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "appstore")
}

// Load reads YAML configuration from path. With an empty path the default
// location is used and a missing file yields Default(). Environment
// overrides and secrets.env are applied last.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(Dir(), "config.yaml")
	}
	content, err := readFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case !explicit && errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, err
	}

	secrets, _ := LoadSecretsEnv(filepath.Join(filepath.Dir(path), "secrets.env"))
	applyEnv(&cfg, os.Getenv, secrets)
	cfg.normalize()
	return cfg, nil
}

func readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return content, nil
}

func applyEnv(cfg *Config, getenv func(string) string, secrets map[string]string) {
	if v := getenv("INSTALLER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := getenv("INSTALLER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := getenv("INSTALLER_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}
	if v := getenv("DATA_ROOT"); v != "" {
		cfg.Catalog.DataRoot = v
		if cfg.Catalog.Source == "static" && len(cfg.Catalog.Items) == 0 {
			cfg.Catalog.Source = "dir"
		}
	}
	// A resource server always wins over local sources.
	if v := getenv("RESOURCE_SERVER_BASE"); v != "" {
		cfg.Catalog.Source = "remote"
		cfg.Catalog.Remote.BaseURL = strings.TrimRight(v, "/")
	}

	if t, ok := secrets["APPSTORE_TOKEN"]; ok && t != "" {
		cfg.Server.Token = t
	}
	if v := getenv("APPSTORE_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
}

func (c *Config) normalize() {
	if c.Catalog.ScriptsDir == "" {
		c.Catalog.ScriptsDir = c.Installer.ScriptsDir
	}
	if c.Installer.Interpreter == "" {
		c.Installer.Interpreter = "bash"
	}
	if c.Installer.Frontend == "" {
		c.Installer.Frontend = "noninteractive"
	}
	if c.Installer.PollInterval <= 0 {
		c.Installer.PollInterval = 500 * time.Millisecond
	}
	if c.Installer.DetectTimeout <= 0 {
		c.Installer.DetectTimeout = 5 * time.Second
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
}
