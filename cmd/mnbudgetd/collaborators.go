package main

import (
	"fmt"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"mnbudget/core/types"
	"mnbudget/crypto"
	"mnbudget/native/budget"
)

// localChainReader is a minimal, standalone budget.ChainReader. The real
// UTXO base chain is an external collaborator per spec.md §1 Non-goals, so
// this daemon tracks only what it needs to drive the orchestrator's
// per-block tick on its own clock rather than a real chain's; a host
// embedding the engine against a real node would replace this entirely.
type localChainReader struct {
	mu     sync.RWMutex
	height int64

	dustFloor int64
}

func newLocalChainReader(dustFloor int64) *localChainReader {
	return &localChainReader{dustFloor: dustFloor}
}

// advance increments the tracked height by one and returns the new value.
func (c *localChainReader) advance() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height++
	return c.height
}

func (c *localChainReader) BestHeight() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

func (c *localChainReader) AdjustedTime() time.Time {
	return time.Now().UTC()
}

// GetTransaction always reports the collateral transaction as unknown: this
// standalone reader has no UTXO index to consult. CollateralValidator turns
// a lookup error into invalid collateral before it consults any cached
// maturity record (see native/budget/collateral.go), so no proposal or
// finalized budget reaches the active set through this reader.
func (c *localChainReader) GetTransaction(txid [32]byte) (*types.Transaction, *budget.TxLocation, error) {
	return nil, nil, fmt.Errorf("no local chain index: collateral transaction %x not resolvable", txid)
}

func (c *localChainReader) DustFloor() int64 {
	return c.dustFloor
}

// localWallet implements budget.Wallet using the node's own identity key. It
// has no funding source to mint collateral transactions from, so
// CreateCollateralTransaction always fails; this only matters in
// ModeSuggest, which the default config leaves off. Sign and LocalOutpoint
// work unconditionally, so a configured outpoint can still cast auto-votes
// in ModeAuto once its collateral is externally funded and announced.
type localWallet struct {
	priv     *crypto.PrivateKey
	outpoint types.Outpoint
	hasLocal bool
}

func newLocalWallet(priv *crypto.PrivateKey, outpoint types.Outpoint, hasLocal bool) *localWallet {
	return &localWallet{priv: priv, outpoint: outpoint, hasLocal: hasLocal}
}

func (w *localWallet) CreateCollateralTransaction(targetHash [32]byte, fee int64) (*types.Transaction, error) {
	return nil, fmt.Errorf("no funding source configured for collateral transactions")
}

func (w *localWallet) Sign(outpoint types.Outpoint, digest []byte) ([]byte, error) {
	return ethcrypto.Sign(digest, w.priv.PrivateKey)
}

func (w *localWallet) LocalOutpoint() (types.Outpoint, bool) {
	return w.outpoint, w.hasLocal
}
