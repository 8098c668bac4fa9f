package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/presscache/presscache"
)

type ConfigFile struct {
	Port          int           `yaml:"port"`
	Origin        string        `yaml:"origin"`
	CacheDir      string        `yaml:"cacheDir"`
	SettingsDB    string        `yaml:"settingsDb"`
	SweepInterval string        `yaml:"sweepInterval"`
	Cache         CacheSettings `yaml:"cache"`
}

type CacheSettings struct {
	Enabled                   *bool    `yaml:"enabled"`
	TTLSeconds                int      `yaml:"ttlSeconds"`
	Gzip                      *bool    `yaml:"gzip"`
	ExcludeURLs               []string `yaml:"excludeUrls"`
	ExcludeCookies            []string `yaml:"excludeCookies"`
	ExcludeUserAgents         []string `yaml:"excludeUserAgents"`
	InvalidateOnContentChange *bool    `yaml:"invalidateOnContentChange"`
	InvalidateOnCommentChange *bool    `yaml:"invalidateOnCommentChange"`
}

func getConfig(filename string) (ConfigFile, error) {
	var config ConfigFile
	configBytes, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = yaml.Unmarshal(configBytes, &config)
	return config, err
}

// cacheConfig lowers the file settings onto the defaults. Unset toggles
// keep their default values.
func (c CacheSettings) cacheConfig() presscache.Config {
	cfg := presscache.DefaultConfig()
	if c.Enabled != nil {
		cfg.Enabled = *c.Enabled
	}
	if c.TTLSeconds > 0 {
		cfg.TTLSeconds = c.TTLSeconds
	}
	if c.Gzip != nil {
		cfg.GzipEnabled = *c.Gzip
	}
	cfg.ExclusionURLPatterns = c.ExcludeURLs
	cfg.ExclusionCookiePrefixes = c.ExcludeCookies
	cfg.ExclusionUserAgentSubstrings = c.ExcludeUserAgents
	if c.InvalidateOnContentChange != nil {
		cfg.InvalidateOnContentChange = *c.InvalidateOnContentChange
	}
	if c.InvalidateOnCommentChange != nil {
		cfg.InvalidateOnCommentChange = *c.InvalidateOnCommentChange
	}
	return cfg
}
