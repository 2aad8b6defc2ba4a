// Package config loads the wallet settings from a YAML file and
// NUTSACK_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nutsack/nutsack/cashu"
	"github.com/nutsack/nutsack/keys"
	"github.com/spf13/viper"
)

const EnvPrefix = "NUTSACK"

var (
	ErrNoRelays = errors.New("no relays configured")
	ErrNoKey    = errors.New("no private key or mnemonic configured")
)

type Config struct {
	Relays []string `mapstructure:"relays"`
	// trusted mints, merged with the ones in the wallet event
	Mints []string `mapstructure:"mints"`
	// nsec or hex. Takes precedence over Mnemonic
	PrivateKey   string        `mapstructure:"private_key"`
	Mnemonic     string        `mapstructure:"mnemonic"`
	Unit         string        `mapstructure:"unit"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MintTimeout  time.Duration `mapstructure:"mint_timeout"`
	// directory of the keyset cache
	DataDir string    `mapstructure:"data_dir"`
	Log     LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func DefaultDataDir() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return ".nutsack"
	}
	return filepath.Join(homedir, ".nutsack")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relays", []string{})
	v.SetDefault("mints", []string{})
	v.SetDefault("private_key", "")
	v.SetDefault("mnemonic", "")
	v.SetDefault("unit", cashu.Sat.String())
	v.SetDefault("fetch_timeout", "10s")
	v.SetDefault("mint_timeout", "30s")
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads the config file at path, if it exists, with environment
// variables taking precedence: NUTSACK_RELAYS, NUTSACK_LOG_LEVEL, etc.
// List values in the environment are comma separated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		// a missing file is fine, the environment may be enough
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("relays", c.Relays)
	v.Set("mints", c.Mints)
	v.Set("private_key", c.PrivateKey)
	v.Set("mnemonic", c.Mnemonic)
	v.Set("unit", c.Unit)
	v.Set("fetch_timeout", c.FetchTimeout.String())
	v.Set("mint_timeout", c.MintTimeout.String())
	v.Set("data_dir", c.DataDir)
	v.Set("log.level", c.Log.Level)
	v.Set("log.pretty", c.Log.Pretty)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return os.Chmod(path, 0600)
}

func (c *Config) Validate() error {
	if len(c.Relays) == 0 {
		return ErrNoRelays
	}
	if c.PrivateKey == "" && c.Mnemonic == "" {
		return ErrNoKey
	}
	if _, err := cashu.ParseUnit(c.Unit); err != nil {
		return err
	}
	return nil
}

// Identity returns the nostr identity from the private key, or
// derives it from the mnemonic.
func (c *Config) Identity() (*keys.Identity, error) {
	if c.PrivateKey != "" {
		return keys.Parse(c.PrivateKey)
	}
	if c.Mnemonic != "" {
		return keys.FromMnemonic(c.Mnemonic)
	}
	return nil, ErrNoKey
}
