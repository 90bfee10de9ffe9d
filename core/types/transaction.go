package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// TxOut is a single spendable output of a transaction.
type TxOut struct {
	Value    int64  `json:"value"`
	PkScript []byte `json:"pkScript"`
}

// TxIn references the output being consumed by this input.
type TxIn struct {
	PreviousOutpoint Outpoint `json:"previousOutpoint"`
	SignatureScript  []byte   `json:"signatureScript"`
	Sequence         uint32   `json:"sequence"`
}

// Transaction is the minimal UTXO transaction shape the budget engine needs
// to validate collateral and decode OP_RETURN commitments. It is not a full
// chain transaction format; fields irrelevant to collateral/commitment
// validation (e.g. witness data) are intentionally omitted.
type Transaction struct {
	Version  int32    `json:"version"`
	TxIn     []*TxIn  `json:"txIn"`
	TxOut    []*TxOut `json:"txOut"`
	LockTime uint32   `json:"lockTime"`
}

// TxID computes the double-SHA256 hash of the transaction's canonical
// serialization. This is a fixed consensus primitive, not a configurable
// hash choice, so it is implemented directly against crypto/sha256 rather
// than through a pluggable hashing library.
func (tx *Transaction) TxID() [32]byte {
	return DoubleSHA256(tx.serialize())
}

func (tx *Transaction) serialize() []byte {
	var buf bytes.Buffer
	var versionBuf [4]byte
	binary.LittleEndian.PutUint32(versionBuf[:], uint32(tx.Version))
	buf.Write(versionBuf[:])

	writeVarInt(&buf, uint64(len(tx.TxIn)))
	for _, in := range tx.TxIn {
		buf.Write(in.PreviousOutpoint.Bytes())
		writeVarInt(&buf, uint64(len(in.SignatureScript)))
		buf.Write(in.SignatureScript)
		var seqBuf [4]byte
		binary.LittleEndian.PutUint32(seqBuf[:], in.Sequence)
		buf.Write(seqBuf[:])
	}

	writeVarInt(&buf, uint64(len(tx.TxOut)))
	for _, out := range tx.TxOut {
		var valueBuf [8]byte
		binary.LittleEndian.PutUint64(valueBuf[:], uint64(out.Value))
		buf.Write(valueBuf[:])
		writeVarInt(&buf, uint64(len(out.PkScript)))
		buf.Write(out.PkScript)
	}

	var lockBuf [4]byte
	binary.LittleEndian.PutUint32(lockBuf[:], tx.LockTime)
	buf.Write(lockBuf[:])
	return buf.Bytes()
}

func writeVarInt(buf *bytes.Buffer, v uint64) {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	buf.Write(tmp[:n])
}

// DoubleSHA256 applies SHA-256 twice, the canonical hash used throughout the
// governance wire protocol and persistence format.
func DoubleSHA256(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}
