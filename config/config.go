package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"paytoreply/crypto"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress      string            `toml:"RPCAddress"`
	DataDir         string            `toml:"DataDir"`
	NetworkName     string            `toml:"NetworkName"`
	DonationAddress string            `toml:"DonationAddress"`
	LogFile         string            `toml:"LogFile"`
	GenesisAlloc    map[string]string `toml:"GenesisAlloc"`
}

// Load loads the configuration from the given path, writing a default
// file when none exists yet.
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
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./paytoreply-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "paytoreply-local"
	}
	if cfg.GenesisAlloc == nil {
		cfg.GenesisAlloc = map[string]string{}
	}
}

// Validate checks the address and allocation fields that cannot be
// defaulted.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.DonationAddress) != "" {
		if _, err := crypto.DecodeAddress(cfg.DonationAddress); err != nil {
			return fmt.Errorf("config: invalid DonationAddress: %w", err)
		}
	}
	for addr, amount := range cfg.GenesisAlloc {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("config: invalid GenesisAlloc address %q: %w", addr, err)
		}
		if _, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10); !ok {
			return fmt.Errorf("config: invalid GenesisAlloc amount %q for %s", amount, addr)
		}
	}
	return nil
}

// DonationAddressBytes returns the decoded fixed-role donation identity,
// or false when the config leaves donations unrestricted.
func (cfg *Config) DonationAddressBytes() ([32]byte, bool, error) {
	var out [32]byte
	if strings.TrimSpace(cfg.DonationAddress) == "" {
		return out, false, nil
	}
	addr, err := crypto.DecodeAddress(cfg.DonationAddress)
	if err != nil {
		return out, false, err
	}
	copy(out[:], addr.Bytes())
	return out, true, nil
}

// GenesisAllocBytes decodes the genesis allocation into raw identities
// and amounts.
func (cfg *Config) GenesisAllocBytes() (map[[32]byte]*big.Int, error) {
	alloc := make(map[[32]byte]*big.Int, len(cfg.GenesisAlloc))
	for addrStr, amountStr := range cfg.GenesisAlloc {
		addr, err := crypto.DecodeAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("config: invalid GenesisAlloc address %q: %w", addrStr, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(amountStr), 10)
		if !ok {
			return nil, fmt.Errorf("config: invalid GenesisAlloc amount %q for %s", amountStr, addrStr)
		}
		var key [32]byte
		copy(key[:], addr.Bytes())
		alloc[key] = amount
	}
	return alloc, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
