package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8546", cfg.RPCAddress)
	require.Equal(t, "127.0.0.1:8080", cfg.GatewayAddress)
	require.Equal(t, "./fanfund-data", cfg.DataDir)
	require.Equal(t, "fanfund-local", cfg.NetworkName)
	require.Equal(t, uint64(1000), cfg.RewardRate)
	require.Equal(t, "1000000000000000000", cfg.RewardUnit)

	vault, err := cfg.Vault()
	require.NoError(t, err)
	require.Equal(t, byte(0xff), vault[19])

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file must be written")

	// Reloading the written file yields the same configuration.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := strings.Join([]string{
		`RPCAddress = "0.0.0.0:9000"`,
		`DataDir = "/var/lib/fanfund"`,
		`VaultAddress = "0xabababababababababababababababababababab"`,
		`RewardRate = 250`,
		`RewardUnit = "1000"`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, "/var/lib/fanfund", cfg.DataDir)
	require.Equal(t, uint64(250), cfg.RewardRate)

	// Omitted fields fall back to defaults.
	require.Equal(t, "127.0.0.1:8080", cfg.GatewayAddress)
	require.Equal(t, "fanfund-local", cfg.NetworkName)

	unit, err := cfg.RewardUnitAmount()
	require.NoError(t, err)
	require.Equal(t, "1000", unit.String())

	vault, err := cfg.Vault()
	require.NoError(t, err)
	require.Equal(t, byte(0xab), vault[0])
}

func TestLoadRejectsBadVault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`VaultAddress = "0x1234"`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "VaultAddress")
}

func TestLoadRejectsBadRewardUnit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := strings.Join([]string{
		`VaultAddress = "0x00000000000000000000000000000000000000ff"`,
		`RewardUnit = "zero"`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "RewardUnit")
}

func TestVaultAcceptsUnprefixedHex(t *testing.T) {
	cfg := &Config{VaultAddress: strings.Repeat("0", 38) + "ff"}
	vault, err := cfg.Vault()
	require.NoError(t, err)
	require.Equal(t, byte(0xff), vault[19])
}

func TestRewardUnitRejectsNonPositive(t *testing.T) {
	for _, unit := range []string{"0", "-5", ""} {
		cfg := &Config{RewardUnit: unit}
		_, err := cfg.RewardUnitAmount()
		require.Error(t, err, "unit %q", unit)
	}
}
