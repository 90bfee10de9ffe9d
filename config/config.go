package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"mnbudget/crypto"
)

// defaultValidatorPassEnv is the environment variable a freshly generated
// config points new deployments at for their keystore passphrase; operators
// are free to override it with ValidatorPassEnv.
const defaultValidatorPassEnv = "MNBUDGET_VALIDATOR_PASS"

// Config is the daemon's top-level configuration: networking, data
// directory, the local masternode's signing key, and the budget network
// parameters validated by ValidateConfig.
type Config struct {
	ListenAddress  string   `toml:"ListenAddress"`
	DataDir        string   `toml:"DataDir"`
	BootstrapPeers []string `toml:"BootstrapPeers"`
	Network        string   `toml:"Network"`
	ChainID        uint64   `toml:"ChainID"`

	// ValidatorKey is a plaintext-hex private key, accepted only as an
	// explicit operator override (e.g. scripted devnets and tests) for a
	// config that predates the keystore fields below. A freshly generated
	// config never populates this field.
	ValidatorKey string `toml:"ValidatorKey,omitempty"`
	// ValidatorKeystorePath points at the encrypted v3 keystore file
	// (crypto.SaveToKeystore/LoadFromKeystore) holding the validator's
	// signing key. This is the default for newly generated configs.
	ValidatorKeystorePath string `toml:"ValidatorKeystorePath,omitempty"`
	// ValidatorPassEnv names the environment variable the keystore
	// passphrase is read from; if unset at runtime, the operator is
	// prompted on the terminal instead.
	ValidatorPassEnv string `toml:"ValidatorPassEnv,omitempty"`

	// DirectoryFile optionally points at a YAML masternode-directory fixture
	// (outpoint -> pubkey entries; the enabled count is the number of
	// entries) for standalone/devnet
	// operation where no external directory collaborator is wired in.
	DirectoryFile string       `toml:"DirectoryFile"`
	Budget        BudgetParams `toml:"Budget"`
}

// PassphraseSource resolves the keystore passphrase, normally
// passphrase.Source.Get from cmd/internal/passphrase.
type PassphraseSource func() (string, error)

// Load reads the configuration from path, creating a default one the first
// time the daemon runs at a given data directory.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createDefault writes and returns a default mainnet-shaped configuration.
// The validator's signing key is generated fresh and stored in an encrypted
// keystore alongside the config, never as plaintext hex: the passphrase
// comes from MNBUDGET_VALIDATOR_PASS if set, otherwise a one-time random
// passphrase is minted and reported to the operator so they can migrate the
// keystore to a passphrase of their choosing.
func createDefault(path string) (*Config, error) {
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	passEnv := defaultValidatorPassEnv
	passphrase, generated, err := resolveOrMintPassphrase(passEnv)
	if err != nil {
		return nil, err
	}

	keystorePath := filepath.Join(configDir, "validator.keystore")
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, fmt.Errorf("write validator keystore: %w", err)
	}
	if generated {
		fmt.Fprintf(os.Stderr, "generated validator keystore %s with a random passphrase: %s\n", keystorePath, passphrase)
		fmt.Fprintf(os.Stderr, "set %s (or re-encrypt the keystore) before deploying this node\n", passEnv)
	}

	cfg := &Config{
		ListenAddress:         ":6001",
		DataDir:               "./mnbudget-data",
		ValidatorKeystorePath: keystorePath,
		ValidatorPassEnv:      passEnv,
		BootstrapPeers:        []string{},
		Network:               "main",
		ChainID:               1,
		Budget: BudgetParams{
			CycleLengthBlocks:       43_200,
			RequiredConfs:           6,
			ProposalFeeUnits:        50 * 100_000_000,
			FinalizationFeeUnits:    5 * 100_000_000,
			EstablishmentWindowSecs: 48 * 3600,
			MinUpdateIntervalSecs:   3600,
			MinProtocolVersion:      70_000,
			Mode:                    "none",
			AskThrottleWindowSecs:   24 * 3600,
			MonthlyBlocks:           43_200,
		},
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

// resolveOrMintPassphrase reads passEnv if set, otherwise mints a random
// passphrase so config generation never blocks on a terminal prompt.
func resolveOrMintPassphrase(passEnv string) (passphrase string, generated bool, err error) {
	if value, ok := os.LookupEnv(passEnv); ok && value != "" {
		return value, false, nil
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return "", false, fmt.Errorf("mint keystore passphrase: %w", err)
	}
	return key.PubKey().Address().String(), true, nil
}

// LoadValidatorKey resolves the validator's signing key from cfg: the
// explicit ValidatorKey hex override if present, otherwise the encrypted
// keystore at ValidatorKeystorePath using resolvePassphrase to obtain its
// passphrase.
func LoadValidatorKey(cfg *Config, resolvePassphrase PassphraseSource) (*crypto.PrivateKey, error) {
	if cfg.ValidatorKey != "" {
		keyBytes, err := hex.DecodeString(cfg.ValidatorKey)
		if err != nil {
			return nil, fmt.Errorf("decode ValidatorKey hex: %w", err)
		}
		return crypto.PrivateKeyFromBytes(keyBytes)
	}
	if cfg.ValidatorKeystorePath == "" {
		return nil, fmt.Errorf("neither ValidatorKey nor ValidatorKeystorePath is configured")
	}
	if resolvePassphrase == nil {
		return nil, fmt.Errorf("validator keystore passphrase required; set %s or run interactively", cfg.ValidatorPassEnv)
	}
	pass, err := resolvePassphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain validator keystore passphrase: %w", err)
	}
	key, err := crypto.LoadFromKeystore(cfg.ValidatorKeystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt keystore %s: %w", cfg.ValidatorKeystorePath, err)
	}
	return key, nil
}

// Global projects the parts of Config that ValidateConfig checks.
func (c *Config) Global() Global {
	return Global{Budget: c.Budget}
}

// ToParamsArgs returns the fields needed to build a budget.Params value;
// kept here (rather than importing native/budget from config) to avoid a
// config <-> budget import cycle, since budget may eventually want its own
// config-shaped defaults too.
func (b BudgetParams) ToParamsArgs() (cycleLength, requiredConfs, proposalFee, finalizationFee int64, establishmentWindowSecs, minUpdateIntervalSecs int64, minProtocolVersion uint32, mode string, askThrottleWindowSecs, monthlyBlocks int64) {
	return b.CycleLengthBlocks, b.RequiredConfs, b.ProposalFeeUnits, b.FinalizationFeeUnits,
		b.EstablishmentWindowSecs, b.MinUpdateIntervalSecs, b.MinProtocolVersion, b.Mode,
		b.AskThrottleWindowSecs, b.MonthlyBlocks
}
