package budget

import (
	"fmt"
	"sync"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"mnbudget/core/types"
	"mnbudget/crypto"
)

// fakeChain is a minimal in-memory ChainReader for deterministic tests: a
// fixed clock/height the test advances explicitly, and a txid->transaction
// table standing in for the base chain's UTXO index.
type fakeChain struct {
	mu     sync.Mutex
	height int64
	now    time.Time
	txs    map[[32]byte]*types.Transaction
	locs   map[[32]byte]*TxLocation
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:  make(map[[32]byte]*types.Transaction),
		locs: make(map[[32]byte]*TxLocation),
		now:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (c *fakeChain) BestHeight() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *fakeChain) AdjustedTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeChain) GetTransaction(txid [32]byte) (*types.Transaction, *TxLocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.txs[txid]
	if !ok {
		return nil, nil, nil
	}
	return tx, c.locs[txid], nil
}

func (c *fakeChain) DustFloor() int64 { return 546 }

func (c *fakeChain) putTx(txid [32]byte, tx *types.Transaction, loc *TxLocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txs[txid] = tx
	c.locs[txid] = loc
}

func (c *fakeChain) setHeight(h int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = h
}

func (c *fakeChain) setNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeDir is an in-memory MasternodeDirectory keyed by outpoint.
type fakeDir struct {
	mu      sync.Mutex
	keys    map[string][]byte
	enabled int
}

func newFakeDir() *fakeDir {
	return &fakeDir{keys: make(map[string][]byte)}
}

func (d *fakeDir) Lookup(o types.Outpoint) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k, ok := d.keys[string(o.Bytes())]
	return k, ok
}

func (d *fakeDir) EnabledCount(minProtocol uint32) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

func (d *fakeDir) register(o types.Outpoint, pub []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[string(o.Bytes())] = pub
}

func (d *fakeDir) remove(o types.Outpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, string(o.Bytes()))
}

func (d *fakeDir) setEnabled(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enabled = n
}

// fakeWallet is a Wallet backed by a single ECDSA key, standing in for the
// local node's own masternode identity in auto-vote tests.
type fakeWallet struct {
	priv     *crypto.PrivateKey
	outpoint types.Outpoint
	hasLocal bool
}

func (w *fakeWallet) CreateCollateralTransaction(targetHash [32]byte, fee int64) (*types.Transaction, error) {
	return nil, fmt.Errorf("fakeWallet does not build collateral transactions")
}

func (w *fakeWallet) Sign(outpoint types.Outpoint, digest []byte) ([]byte, error) {
	return ethcrypto.Sign(digest, w.priv.PrivateKey)
}

func (w *fakeWallet) LocalOutpoint() (types.Outpoint, bool) {
	return w.outpoint, w.hasLocal
}

// voterKey is one test masternode: its collateral outpoint and signing key.
type voterKey struct {
	outpoint types.Outpoint
	priv     *crypto.PrivateKey
}

func newVoterKey(txidByte byte, index uint32) *voterKey {
	priv, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}
	var hash [32]byte
	hash[0] = txidByte
	return &voterKey{outpoint: types.Outpoint{Hash: hash, Index: index}, priv: priv}
}

func (k *voterKey) pubKeyBytes() []byte {
	return ethcrypto.FromECDSAPub(k.priv.PubKey().PublicKey)
}

// signVote signs v as k would, replicating vote.Sign's digest so tests are
// not forced to route every signer through the Wallet interface.
func signVote(k *voterKey, v *Vote, hasDirection bool) {
	digest := types.DoubleSHA256(SignedMessage(v, hasDirection))
	sig, err := ethcrypto.Sign(digest[:], k.priv.PrivateKey)
	if err != nil {
		panic(err)
	}
	v.Signature = sig
}

// fakePeer is a bare PeerHandle.
type fakePeer string

func (p fakePeer) ID() string { return string(p) }

// fakeTransport records every call a P2PTransport receives, for assertions
// on broadcast/ask/misbehavior behavior without a real network.
type fakeTransport struct {
	mu           sync.Mutex
	broadcasts   []*WireMessage
	sent         map[string][]*WireMessage
	misbehaviors []misbehaviorCall
	asks         []askCall
}

type misbehaviorCall struct {
	peer   string
	delta  int
	reason string
}

type askCall struct {
	peer   string
	target [32]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][]*WireMessage)}
}

func (t *fakeTransport) Send(peer PeerHandle, msg *WireMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := ""
	if peer != nil {
		id = peer.ID()
	}
	t.sent[id] = append(t.sent[id], msg)
	return nil
}

func (t *fakeTransport) Broadcast(msg *WireMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcasts = append(t.broadcasts, msg)
	return nil
}

func (t *fakeTransport) Misbehaving(peer PeerHandle, delta int, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := ""
	if peer != nil {
		id = peer.ID()
	}
	t.misbehaviors = append(t.misbehaviors, misbehaviorCall{peer: id, delta: delta, reason: reason})
}

func (t *fakeTransport) Ask(peer PeerHandle, target [32]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := ""
	if peer != nil {
		id = peer.ID()
	}
	t.asks = append(t.asks, askCall{peer: id, target: target})
}

func (t *fakeTransport) askCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.asks)
}

// fakeConfirmationCache is an in-memory ConfirmationCache for collateral
// tests, mirroring storage.CollateralCache without a KV backend.
type fakeConfirmationCache struct {
	mu      sync.Mutex
	matured map[[32]byte]time.Time
}

func newFakeConfirmationCache() *fakeConfirmationCache {
	return &fakeConfirmationCache{matured: make(map[[32]byte]time.Time)}
}

func (c *fakeConfirmationCache) MarkMatured(txid [32]byte, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matured[txid] = at
	return nil
}

func (c *fakeConfirmationCache) Matured(txid [32]byte) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.matured[txid]
	return t, ok
}

// p2pkhScript builds a deterministic, well-formed P2PKH script for test
// payees, keyed off a single seed byte so distinct payees don't collide.
func p2pkhScript(seed byte) []byte {
	script := make([]byte, 25)
	script[0] = types.OpDup
	script[1] = types.OpHash160
	script[2] = 20
	for i := 0; i < 20; i++ {
		script[3+i] = seed
	}
	script[23] = types.OpEqualVerify
	script[24] = types.OpCheckSig
	return script
}

func collateralTxid(seed byte) [32]byte {
	var h [32]byte
	h[0] = seed
	h[31] = seed
	return h
}
