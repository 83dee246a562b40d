package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	DevTools struct {
		URL             string `yaml:"url"`
		AttachTimeoutMS int    `yaml:"attachTimeoutMS"`
	} `yaml:"devtools"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`

	Capture struct {
		RawHeaders bool     `yaml:"rawHeaders"`
		Intercept  bool     `yaml:"intercept"`
		BodyLimit  int64    `yaml:"bodyLimit"`
		Patterns   []string `yaml:"patterns"`
	} `yaml:"capture"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.DevTools.URL = "http://127.0.0.1:9222"
	cfg.DevTools.AttachTimeoutMS = 10000
	cfg.Sqlite.Dsn = "netflow.sqlite3"
	cfg.Sqlite.Prefix = "cdpnetflow_"
	cfg.Log.Level = "debug"
	cfg.Log.Writer = []string{"console", "file"}
	cfg.Capture.RawHeaders = true
	cfg.Capture.Intercept = true
	cfg.Capture.BodyLimit = 1 << 20
	return cfg
}

// Load 读取 YAML 配置文件并覆盖默认值
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
