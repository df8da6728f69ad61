package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the daemon configuration loaded from TOML.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	GatewayAddress string `toml:"GatewayAddress"`
	DataDir        string `toml:"DataDir"`
	LogFile        string `toml:"LogFile"`
	NetworkName    string `toml:"NetworkName"`
	// VaultAddress is the escrow account contributions settle into, as a
	// 0x-prefixed 20-byte hex address.
	VaultAddress string `toml:"VaultAddress"`
	// RewardRate is the reward units granted per RewardUnit of contribution.
	RewardRate uint64 `toml:"RewardRate"`
	// RewardUnit is the contribution amount, in minor units, that earns one
	// full RewardRate application. Decimal string; defaults to 1e18.
	RewardUnit string `toml:"RewardUnit"`
}

const defaultRewardUnit = "1000000000000000000"

// Load loads the configuration from the given path, writing defaults when the
// file does not exist yet.
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
		cfg.RPCAddress = "127.0.0.1:8546"
	}
	if strings.TrimSpace(cfg.GatewayAddress) == "" {
		cfg.GatewayAddress = "127.0.0.1:8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./fanfund-data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "fanfund-local"
	}
	if strings.TrimSpace(cfg.RewardUnit) == "" {
		cfg.RewardUnit = defaultRewardUnit
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RewardRate:   1000,
		VaultAddress: "0x" + strings.Repeat("0", 38) + "ff",
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
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

// Validate checks the address and rate fields for well-formedness.
func (c *Config) Validate() error {
	if _, err := c.Vault(); err != nil {
		return err
	}
	if _, err := c.RewardUnitAmount(); err != nil {
		return err
	}
	return nil
}

// Vault decodes the configured vault address.
func (c *Config) Vault() ([20]byte, error) {
	var vault [20]byte
	trimmed := strings.TrimSpace(c.VaultAddress)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return vault, fmt.Errorf("config: invalid VaultAddress: %w", err)
	}
	if len(decoded) != 20 {
		return vault, fmt.Errorf("config: VaultAddress must be 20 bytes (got %d)", len(decoded))
	}
	copy(vault[:], decoded)
	return vault, nil
}

// RewardUnitAmount parses the configured reward unit.
func (c *Config) RewardUnitAmount() (*big.Int, error) {
	unit, ok := new(big.Int).SetString(strings.TrimSpace(c.RewardUnit), 10)
	if !ok || unit.Sign() <= 0 {
		return nil, fmt.Errorf("config: RewardUnit must be a positive decimal string")
	}
	return unit, nil
}
