package main

import (
	"fmt"
	"os"
	"time"

	responsetransformer "github.com/always-cache/autocache/pkg/response-transformer"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file.
// Command line flags and environment variables override it.
type Config struct {
	Origin      string                    `yaml:"origin"`
	Host        string                    `yaml:"host"`
	MaxAgeUnit  string                    `yaml:"maxAgeUnit"`
	CacheStatus bool                      `yaml:"cacheStatus"`
	Invalidate  bool                      `yaml:"invalidate"`
	Store       StoreConfig               `yaml:"store"`
	Rules       responsetransformer.Rules `yaml:"rules"`
}

type StoreConfig struct {
	// memory, sqlite, redis or s3
	Type      string `yaml:"type"`
	DB        string `yaml:"db"`
	RedisAddr string `yaml:"redisAddr"`
	Namespace string `yaml:"namespace"`
	S3Bucket  string `yaml:"s3Bucket"`
	S3Region  string `yaml:"s3Region"`
}

func getConfig(filename string) (Config, error) {
	var config Config
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return config, fmt.Errorf("parse config %s: %w", filename, err)
	}
	return config, nil
}

func parseMaxAgeUnit(unit string) (time.Duration, error) {
	switch unit {
	case "", "ms":
		return time.Millisecond, nil
	case "s":
		return time.Second, nil
	default:
		return 0, fmt.Errorf("unknown max-age unit %q (use ms or s)", unit)
	}
}
