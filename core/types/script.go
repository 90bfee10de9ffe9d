package types

import "bytes"

// Script opcodes relevant to collateral and commitment validation. Only the
// small subset the budget engine needs to recognize is modeled; this is not
// a general script interpreter.
const (
	OpReturn     byte = 0x6a
	OpDup        byte = 0x76
	OpHash160    byte = 0xa9
	OpEqualVerify byte = 0x88
	OpCheckSig   byte = 0xac
	OpPushData1  byte = 0x4c
)

// BuildOpReturnScript encodes data as a standard OP_RETURN output script:
// OP_RETURN followed by a single push of data. Proposal and finalized-budget
// submissions bind their collateral transaction to the submitted item by
// embedding the item's hash this way.
func BuildOpReturnScript(data []byte) []byte {
	script := make([]byte, 0, len(data)+3)
	script = append(script, OpReturn)
	script = appendPushData(script, data)
	return script
}

func appendPushData(script []byte, data []byte) []byte {
	n := len(data)
	switch {
	case n == 0:
		return script
	case n < int(OpPushData1):
		script = append(script, byte(n))
	default:
		script = append(script, OpPushData1, byte(n))
	}
	return append(script, data...)
}

// ParseOpReturnData extracts the pushed payload from an OP_RETURN script.
// ok is false if the script is not a well-formed single-push OP_RETURN.
func ParseOpReturnData(script []byte) (data []byte, ok bool) {
	if len(script) < 2 || script[0] != OpReturn {
		return nil, false
	}
	rest := script[1:]
	switch {
	case rest[0] < OpPushData1:
		n := int(rest[0])
		if len(rest) < 1+n {
			return nil, false
		}
		return rest[1 : 1+n], true
	case rest[0] == OpPushData1:
		if len(rest) < 2 {
			return nil, false
		}
		n := int(rest[1])
		if len(rest) < 2+n {
			return nil, false
		}
		return rest[2 : 2+n], true
	default:
		return nil, false
	}
}

// IsP2PKHScript reports whether script matches the standard
// OP_DUP OP_HASH160 <20-byte hash> OP_EQUALVERIFY OP_CHECKSIG pattern used
// for masternode collateral and payee outputs.
func IsP2PKHScript(script []byte) bool {
	const p2pkhLen = 25
	if len(script) != p2pkhLen {
		return false
	}
	return script[0] == OpDup && script[1] == OpHash160 && script[2] == 20 &&
		script[23] == OpEqualVerify && script[24] == OpCheckSig
}

// P2PKHHash160 extracts the 20-byte hash from a P2PKH script, or nil if the
// script does not match.
func P2PKHHash160(script []byte) []byte {
	if !IsP2PKHScript(script) {
		return nil
	}
	return bytes.Clone(script[3:23])
}
