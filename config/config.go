package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"magna/crypto"
)

// TierConfig overrides one subscription tier. Amounts are whole base units;
// the loader scales them by 10^18.
type TierConfig struct {
	Price                int64 `toml:"Price"`
	DurationDays         int64 `toml:"DurationDays"`
	MaxCumulativeDeposit int64 `toml:"MaxCumulativeDeposit"`
}

// Addresses names the fixed protocol accounts, rendered bech32.
type Addresses struct {
	Owner         string `toml:"Owner"`
	Bootstrap     string `toml:"Bootstrap"`
	Guarantee     string `toml:"Guarantee"`
	Treasury      string `toml:"Treasury"`
	FeeTo         string `toml:"FeeTo"`
	TrustedSigner string `toml:"TrustedSigner"`
}

type Config struct {
	RPCAddress    string       `toml:"RPCAddress"`
	MetricsAddr   string       `toml:"MetricsAddr"`
	DataDir       string       `toml:"DataDir"`
	NetworkName   string       `toml:"NetworkName"`
	InitialSupply int64        `toml:"InitialSupply"`
	Addresses     Addresses    `toml:"Addresses"`
	Tiers         []TierConfig `toml:"Tiers"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddr) == "" {
		cfg.MetricsAddr = ":9090"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./magna-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "magna-local"
	}
	if cfg.InitialSupply <= 0 {
		cfg.InitialSupply = 1_000_000_000
	}
}

// Validate checks that every configured address decodes and that tier
// overrides are well formed.
func (c *Config) Validate() error {
	required := map[string]string{
		"Owner":     c.Addresses.Owner,
		"Bootstrap": c.Addresses.Bootstrap,
		"Guarantee": c.Addresses.Guarantee,
		"Treasury":  c.Addresses.Treasury,
		"FeeTo":     c.Addresses.FeeTo,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config: address %s is required", name)
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("config: address %s: %w", name, err)
		}
	}
	if signer := strings.TrimSpace(c.Addresses.TrustedSigner); signer != "" {
		if _, err := crypto.DecodeAddress(signer); err != nil {
			return fmt.Errorf("config: address TrustedSigner: %w", err)
		}
	}
	for i, tier := range c.Tiers {
		if tier.Price < 0 || tier.DurationDays <= 0 || tier.MaxCumulativeDeposit < 0 {
			return fmt.Errorf("config: tier %d is malformed", i)
		}
	}
	return nil
}

// ScaleUnits converts whole base units to the 18-decimal fixed-point form.
func ScaleUnits(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(n), wei)
}

// InitialSupplyWei returns the configured supply scaled to 18 decimals.
func (c *Config) InitialSupplyWei() *big.Int {
	return ScaleUnits(c.InitialSupply)
}

// createDefault creates and saves a default configuration file. Protocol
// addresses are generated fresh so a dev node boots without editing.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	fields := []*string{
		&cfg.Addresses.Owner,
		&cfg.Addresses.Bootstrap,
		&cfg.Addresses.Guarantee,
		&cfg.Addresses.Treasury,
		&cfg.Addresses.FeeTo,
	}
	for _, field := range fields {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		*field = key.PubKey().Address().String()
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
