// internal/config/config.go
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	UploadDir   string `yaml:"upload_dir"`
	PagesDir    string `yaml:"pages_dir"`
	WorkDir     string `yaml:"work_dir"`
	LibraryFile string `yaml:"library_file"`

	MaxUploadMB int `yaml:"max_upload_mb"`

	Warm struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"warm"`

	TOCCacheMinutes int `yaml:"toc_cache_minutes"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "data/uploads"
	}
	if cfg.PagesDir == "" {
		cfg.PagesDir = "data/pages"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "data/work"
	}
	if cfg.LibraryFile == "" {
		cfg.LibraryFile = "data/library.json"
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 50
	}
	if cfg.Warm.Workers <= 0 {
		cfg.Warm.Workers = 2
	}
	if cfg.Warm.QueueSize <= 0 {
		cfg.Warm.QueueSize = 16
	}
	if cfg.TOCCacheMinutes <= 0 {
		cfg.TOCCacheMinutes = 60
	}
}
