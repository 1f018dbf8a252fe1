package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type config struct {
	Bin           string `yaml:"bin"`
	LogLevel      string `yaml:"log_level"`
	HashCacheSize int    `yaml:"hash_cache_size"`
	HomeAlias     bool   `yaml:"home_alias"`
}

const (
	defaultBinDir   = ".meld"
	defaultConfFile = ".config/meld/meld.yaml"
	defaultLogLevel = "warn"
)

// loadConfig reads the config file at path.
// An empty path means the default location,
// where a missing file is not an error.
func loadConfig(path string) (*config, error) {
	home, _ := os.UserHomeDir()

	explicit := path != ""
	if !explicit {
		if home == "" {
			return defaultConfig(home), nil
		}
		path = filepath.Join(home, defaultConfFile)
	}

	conf := defaultConfig(home)

	data, err := os.ReadFile(os.ExpandEnv(path))
	if os.IsNotExist(err) && !explicit {
		return conf, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}
	if err = yaml.Unmarshal(data, conf); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %s", path)
	}
	if conf.HashCacheSize < 0 {
		return nil, errors.Errorf("config file %s: negative hash_cache_size", path)
	}
	return conf, nil
}

func defaultConfig(home string) *config {
	conf := &config{LogLevel: defaultLogLevel}
	if home != "" {
		conf.Bin = filepath.Join(home, defaultBinDir)
	}
	return conf
}

// override applies command-line and environment settings,
// which take precedence over the config file.
func (c *config) override(binFlag, binEnv, logFlag string) {
	switch {
	case binFlag != "":
		c.Bin = binFlag
	case binEnv != "":
		c.Bin = binEnv
	}
	if logFlag != "" {
		c.LogLevel = logFlag
	}
}
