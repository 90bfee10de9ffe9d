package types

import (
	"encoding/binary"
	"fmt"
)

// Outpoint identifies a spent transaction output: the originating txid and
// its output index. Masternode and proposal collateral are always referenced
// by outpoint rather than by address, matching the underlying UTXO model.
type Outpoint struct {
	Hash  [32]byte `json:"hash"`
	Index uint32   `json:"index"`
}

// String renders the outpoint as "hash:index" using big-endian display order
// (the conventional txid string order, not internal byte order).
func (o Outpoint) String() string {
	reversed := reverseHash(o.Hash)
	return fmt.Sprintf("%x:%d", reversed, o.Index)
}

// Bytes returns the canonical serialization used for hashing and map keys:
// 32-byte hash followed by a 4-byte little-endian index.
func (o Outpoint) Bytes() []byte {
	buf := make([]byte, 36)
	copy(buf[:32], o.Hash[:])
	binary.LittleEndian.PutUint32(buf[32:], o.Index)
	return buf
}

func reverseHash(h [32]byte) [32]byte {
	var out [32]byte
	for i := range h {
		out[i] = h[len(h)-1-i]
	}
	return out
}
