package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"mnbudget/core/types"
)

// directoryFixture is the on-disk shape of a standalone masternode directory:
// a flat list of enabled masternode outpoints and their advertised pubkeys.
// It exists for devnet/standalone operation, where no external directory
// collaborator (spec.md §1 Non-goals) is available to wire in.
type directoryFixture struct {
	MinProtocolVersion uint32                 `yaml:"minProtocolVersion"`
	Masternodes        []directoryFixtureNode `yaml:"masternodes"`
}

type directoryFixtureNode struct {
	Txid   string `yaml:"txid"`
	Index  uint32 `yaml:"index"`
	PubKey string `yaml:"pubKey"`
}

// staticDirectory implements budget.MasternodeDirectory over a fixed set of
// outpoint -> pubkey entries loaded once at startup.
type staticDirectory struct {
	mu      sync.RWMutex
	entries map[types.Outpoint][]byte
	enabled int
}

func newEmptyDirectory() *staticDirectory {
	return &staticDirectory{entries: make(map[types.Outpoint][]byte)}
}

// loadStaticDirectory reads a YAML fixture from path. A missing path is not
// an error: it yields an empty directory suitable for an observer-only node.
func loadStaticDirectory(path string) (*staticDirectory, error) {
	if path == "" {
		return newEmptyDirectory(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newEmptyDirectory(), nil
		}
		return nil, fmt.Errorf("read masternode directory fixture: %w", err)
	}

	var fixture directoryFixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return nil, fmt.Errorf("decode masternode directory fixture: %w", err)
	}

	dir := newEmptyDirectory()
	for _, node := range fixture.Masternodes {
		txidBytes, err := hex.DecodeString(node.Txid)
		if err != nil || len(txidBytes) != 32 {
			return nil, fmt.Errorf("masternode entry %q: invalid txid", node.Txid)
		}
		pubKey, err := hex.DecodeString(node.PubKey)
		if err != nil {
			return nil, fmt.Errorf("masternode entry %q: invalid pubkey", node.Txid)
		}
		var outpoint types.Outpoint
		copy(outpoint.Hash[:], txidBytes)
		outpoint.Index = node.Index
		dir.entries[outpoint] = pubKey
	}
	dir.enabled = len(fixture.Masternodes)
	return dir, nil
}

// Lookup implements budget.MasternodeDirectory.
func (d *staticDirectory) Lookup(outpoint types.Outpoint) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	pub, ok := d.entries[outpoint]
	return pub, ok
}

// EnabledCount implements budget.MasternodeDirectory. It returns the number
// of fixture entries for any minProtocol; the fixture's minProtocolVersion
// is not compared against it.
func (d *staticDirectory) EnabledCount(minProtocol uint32) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}
