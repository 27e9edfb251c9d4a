// Package sys reads the configuration of a raffle node.
package sys

import (
	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"go.dedis.ch/onet/v3/log"
	"golang.org/x/xerrors"
)

// ReadConfig decodes the TOML file at path on top of DefaultConfig, applies
// the RAFFLE_* environment overrides and validates the result. An empty path
// skips the file.
func ReadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, xerrors.Errorf("couldn't decode %s: %v", path, err)
		}
		for _, k := range md.Undecoded() {
			log.Warnf("unknown configuration key %s", k)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, xerrors.Errorf("couldn't parse environment: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.EntranceFee == 0 {
		return xerrors.New("entrance fee must be positive")
	}
	if c.Interval <= 0 {
		return xerrors.New("interval must be positive")
	}
	if c.NumWords == 0 {
		return xerrors.New("at least one random word is needed")
	}
	if c.FulfillDelay < 0 || c.KeeperInterval < 0 {
		return xerrors.New("negative delay")
	}
	return nil
}
