// Package budget implements the masternode budget governance engine: proposal
// and finalized-budget lifecycle, vote bookkeeping, gossip ingestion, tally
// and selection, block-payee export, and persistence.
package budget

import (
	"time"

	"mnbudget/core/types"
)

// TxLocation describes where a transaction was found on the active chain.
type TxLocation struct {
	BlockTime     time.Time
	Confirmations int64
}

// ChainReader is the engine's read-only view of the base chain. The chain
// itself, block validation, and consensus are external collaborators; the
// engine never mutates chain state.
type ChainReader interface {
	BestHeight() int64
	AdjustedTime() time.Time
	GetTransaction(txid [32]byte) (*types.Transaction, *TxLocation, error)
	DustFloor() int64
}

// MasternodeDirectory resolves masternode identity. Membership, enablement,
// and protocol-version bookkeeping live entirely outside this engine.
type MasternodeDirectory interface {
	Lookup(outpoint types.Outpoint) (pubKey []byte, ok bool)
	EnabledCount(minProtocol uint32) int
}

// Wallet builds and signs the local node's own collateral transactions when
// it is itself a masternode submitting a finalized budget in "suggest" mode.
type Wallet interface {
	CreateCollateralTransaction(targetHash [32]byte, fee int64) (*types.Transaction, error)
	Sign(outpoint types.Outpoint, digest []byte) ([]byte, error)
	LocalOutpoint() (types.Outpoint, bool)
}

// PeerHandle identifies a remote peer to the transport. The engine treats it
// as an opaque token.
type PeerHandle interface {
	ID() string
}

// WireMessage is a single governance protocol message: one of the five
// commands in the wire table (mnvs, mprop, mvote, fbs, fbvote).
type WireMessage struct {
	Command string
	Payload []byte
}

// P2PTransport is the engine's only path to the network. Envelope framing,
// peer ban scoring, and inventory relay primitives belong to the transport,
// not to this package.
type P2PTransport interface {
	Send(peer PeerHandle, msg *WireMessage) error
	Broadcast(msg *WireMessage) error
	Misbehaving(peer PeerHandle, delta int, reason string)
	Ask(peer PeerHandle, targetHash [32]byte)
}

// RandSource supplies the engine's two probabilistic decisions (auto-vote
// sampling and sync-reset sampling) through an injectable seam so tests can
// force either branch deterministically.
type RandSource interface {
	Intn(n int) int
}

// FuncRand adapts a plain function to RandSource. NewManager's default
// source wraps math/rand's Intn.
type FuncRand func(n int) int

func (f FuncRand) Intn(n int) int { return f(n) }
