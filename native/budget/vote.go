package budget

import (
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"mnbudget/core/types"
)

// NewVote constructs an unsigned vote; Sign attaches its signature.
func NewVote(voter types.Outpoint, target [32]byte, direction VoteDirection, when time.Time) *Vote {
	return &Vote{
		VoterOutpoint: voter,
		TargetHash:    target,
		Direction:     direction,
		Time:          when,
	}
}

// Sign computes the vote's signed message (§4.4) and signs it with the
// wallet's per-outpoint key, storing the signature on the vote.
func Sign(v *Vote, hasDirection bool, wallet Wallet) error {
	digest := types.DoubleSHA256(SignedMessage(v, hasDirection))
	sig, err := wallet.Sign(v.VoterOutpoint, digest[:])
	if err != nil {
		return wrapErr(KindBadSignature, "wallet signing failed", err)
	}
	v.Signature = sig
	return nil
}

// Verify checks v.Signature against the masternode directory's advertised
// public key for v.VoterOutpoint. It also marks v.valid to reflect whether
// the voter currently resolves in the directory, per §3's "valid? is
// derived from whether the voter is currently in the masternode directory."
func Verify(v *Vote, hasDirection bool, dir MasternodeDirectory) error {
	pubKey, ok := dir.Lookup(v.VoterOutpoint)
	if !ok {
		v.valid = false
		return newErr(KindUnknownTarget, "voter is not a known masternode")
	}
	digest := types.DoubleSHA256(SignedMessage(v, hasDirection))
	if len(v.Signature) != 65 {
		v.valid = false
		return newErr(KindBadSignature, "signature has unexpected length")
	}
	if !ethcrypto.VerifySignature(pubKey, digest[:], v.Signature[:64]) {
		v.valid = false
		return newErr(KindBadSignature, "signature verification failed")
	}
	v.valid = true
	return nil
}

// RefreshValidity recomputes v.valid against the directory without
// requiring a fresh signature check, used by periodic maintenance when a
// voter may have left the masternode set.
func RefreshValidity(v *Vote, dir MasternodeDirectory) {
	_, ok := dir.Lookup(v.VoterOutpoint)
	v.valid = ok
}
