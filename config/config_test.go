package config

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mnbudget/crypto"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mnbudget.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "main", cfg.Network)
	require.Empty(t, cfg.ValidatorKey, "a freshly generated config must never carry a plaintext validator key")
	require.NotEmpty(t, cfg.ValidatorKeystorePath, "a freshly generated config stores its key in an encrypted keystore")
	require.FileExists(t, cfg.ValidatorKeystorePath)
	require.NoError(t, ValidateConfig(cfg.Global()))

	key, err := LoadValidatorKey(cfg, func() (string, error) { return t.Name(), nil })
	require.Error(t, err, "the keystore must reject an incorrect passphrase")
	require.Nil(t, key)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ValidatorKeystorePath, reloaded.ValidatorKeystorePath, "a second load must reuse the generated keystore, not mint a new one")
}

func TestLoadValidatorKeyDecryptsKeystoreWithCorrectPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validator.keystore")
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	require.NoError(t, crypto.SaveToKeystore(path, key, "correct horse battery staple"))

	cfg := &Config{ValidatorKeystorePath: path}
	resolved, err := LoadValidatorKey(cfg, func() (string, error) { return "correct horse battery staple", nil })
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), resolved.Bytes())
}

func TestLoadValidatorKeyPrefersExplicitHexOverride(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	cfg := &Config{ValidatorKey: hex.EncodeToString(key.Bytes())}

	resolved, err := LoadValidatorKey(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), resolved.Bytes())
}

func TestValidateConfigRejectsNonPositiveCycleLength(t *testing.T) {
	g := Global{Budget: defaultTestBudgetParams()}
	g.Budget.CycleLengthBlocks = 0
	require.Error(t, ValidateConfig(g))
}

func TestValidateConfigRejectsUnknownMode(t *testing.T) {
	g := Global{Budget: defaultTestBudgetParams()}
	g.Budget.Mode = "bogus"
	require.Error(t, ValidateConfig(g))
}

func TestValidateConfigAcceptsWellFormedParams(t *testing.T) {
	g := Global{Budget: defaultTestBudgetParams()}
	require.NoError(t, ValidateConfig(g))
}

func defaultTestBudgetParams() BudgetParams {
	return BudgetParams{
		CycleLengthBlocks:       43_200,
		RequiredConfs:           6,
		ProposalFeeUnits:        50 * 100_000_000,
		FinalizationFeeUnits:    5 * 100_000_000,
		EstablishmentWindowSecs: 48 * 3600,
		MinUpdateIntervalSecs:   3600,
		MinProtocolVersion:      70_000,
		Mode:                    "auto",
		AskThrottleWindowSecs:   24 * 3600,
		MonthlyBlocks:           43_200,
	}
}
