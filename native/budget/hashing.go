package budget

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"mnbudget/core/types"
)

// Canonical serialization mirrors core/types.Transaction.serialize: a fixed
// byte order with length-prefixed variable fields, hashed with double-SHA256
// (crypto/sha256 applied twice). This is a fixed consensus primitive per the
// wire-format table, not a pluggable hash choice.

func writeVarInt(buf *bytes.Buffer, v uint64) {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeVarInt(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeVarInt(buf, uint64(len(b)))
	buf.Write(b)
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

// HashProposal computes the deterministic identity hash of a proposal's
// immutable fields. Votes never affect the hash (testable property 3).
func HashProposal(p *Proposal) [32]byte {
	var buf bytes.Buffer
	writeString(&buf, p.Name)
	writeString(&buf, p.URL)
	writeBytes(&buf, p.PayeeScript)
	writeInt64(&buf, p.Amount)
	writeInt64(&buf, p.StartBlock)
	writeInt64(&buf, p.EndBlock)
	writeUint32(&buf, p.PaymentCount)
	buf.Write(p.CollateralTxid[:])
	writeInt64(&buf, p.CreatedTime.Unix())
	return types.DoubleSHA256(buf.Bytes())
}

// HashFinalizedBudget computes the deterministic identity hash of a
// finalized budget's immutable fields (name, start block, payment
// sequence, collateral, creation time).
func HashFinalizedBudget(fb *FinalizedBudget) [32]byte {
	var buf bytes.Buffer
	writeString(&buf, fb.Name)
	writeInt64(&buf, fb.StartBlock)
	writeVarInt(&buf, uint64(len(fb.Payments)))
	for _, pay := range fb.Payments {
		buf.Write(pay.ProposalHash[:])
		writeBytes(&buf, pay.PayeeScript)
		writeInt64(&buf, pay.Amount)
	}
	buf.Write(fb.CollateralTxid[:])
	writeInt64(&buf, fb.CreatedTime.Unix())
	return types.DoubleSHA256(buf.Bytes())
}

// HashVote computes hash = H(voter_outpoint || target_hash || direction
// (proposals only) || time). hasDirection is false for finalized-budget
// votes, whose wire payload carries no direction field.
func HashVote(v *Vote, hasDirection bool) [32]byte {
	var buf bytes.Buffer
	buf.Write(v.VoterOutpoint.Bytes())
	buf.Write(v.TargetHash[:])
	if hasDirection {
		writeInt64(&buf, int64(v.Direction))
	}
	writeInt64(&buf, v.Time.Unix())
	return types.DoubleSHA256(buf.Bytes())
}

// OutpointKey reduces an outpoint to the fixed-size key used in vote maps.
func OutpointKey(o types.Outpoint) [32]byte {
	return types.DoubleSHA256(o.Bytes())
}

// SignedMessage builds the exact byte sequence a vote's Signature commits
// to: voter_outpoint.short_string || hex(target_hash) || dec(direction) ||
// dec(time).
func SignedMessage(v *Vote, hasDirection bool) []byte {
	var buf bytes.Buffer
	buf.WriteString(v.VoterOutpoint.String())
	buf.WriteString(hex.EncodeToString(v.TargetHash[:]))
	if hasDirection {
		buf.WriteString(strconv.FormatInt(int64(v.Direction), 10))
	}
	buf.WriteString(strconv.FormatInt(v.Time.Unix(), 10))
	return buf.Bytes()
}
