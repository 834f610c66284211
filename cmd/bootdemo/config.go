package main

import (
	"errors"

	"github.com/GoCodeAlone/bootstrap/host"
)

const (
	envPrefix   = "BOOTDEMO"
	hostSection = "host"
)

var (
	errNoTokens                = errors.New("at least one API token is required")
	errUnsupportedConfigFormat = errors.New("unsupported config file format")
)

// DemoConfig is the configuration of the demo binary.
type DemoConfig struct {
	Host           host.Config `yaml:"host" toml:"host"`
	Tokens         []string    `yaml:"tokens" toml:"tokens" env:"TOKENS" desc:"Accepted bearer tokens"`
	CompactionCron string      `yaml:"compactionCron" toml:"compaction_cron" env:"COMPACTION_CRON" default:"*/5 * * * *"`
	SeedItems      int         `yaml:"seedItems" toml:"seed_items" env:"SEED_ITEMS" default:"3"`
}

func (c *DemoConfig) Validate() error {
	if len(c.Tokens) == 0 {
		return errNoTokens
	}
	return c.Host.Validate()
}
