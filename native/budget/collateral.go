package budget

import (
	"strconv"
	"time"

	"mnbudget/core/types"
)

// ConfirmationCache is the validator's optional seam onto a persistent
// once-matured record (see storage.CollateralCache), so a transaction that
// has already cleared REQUIRED_CONFS once is not re-flagged as immature by a
// lagging or pruned ChainReader on a later revalidation pass.
type ConfirmationCache interface {
	MarkMatured(txid [32]byte, at time.Time) error
	Matured(txid [32]byte) (time.Time, bool)
}

// CollateralValidator checks that a collateral transaction commits, via
// OP_RETURN, to a given item hash, pays at least the applicable fee floor,
// and has matured to the required confirmation depth.
type CollateralValidator struct {
	chain  ChainReader
	params Params
	cache  ConfirmationCache
}

func NewCollateralValidator(chain ChainReader, params Params) *CollateralValidator {
	return &CollateralValidator{chain: chain, params: params}
}

// WithCache attaches a persistent once-matured cache and returns the
// validator for chaining.
func (v *CollateralValidator) WithCache(cache ConfirmationCache) *CollateralValidator {
	v.cache = cache
	return v
}

// CollateralResult carries the outcome of a successful validation: the
// containing block's timestamp (used only to backfill a missing created_time)
// and the confirmation count observed.
type CollateralResult struct {
	BlockTime     time.Time
	Confirmations int64
}

// Validate implements §4.1: fetch the transaction, require locktime == 0,
// require every output be either a normal payment script or OP_RETURN,
// require at least one OP_RETURN output committing to expectedHash with
// value at or above the applicable fee, and require REQUIRED_CONFS depth.
func (v *CollateralValidator) Validate(txid [32]byte, expectedHash [32]byte, isFinalizedBudget bool) (*CollateralResult, error) {
	tx, loc, err := v.chain.GetTransaction(txid)
	if err != nil {
		return nil, wrapErr(KindInvalidCollateral, "collateral transaction lookup failed", err)
	}
	if tx == nil {
		return nil, newErr(KindInvalidCollateral, "collateral transaction not found")
	}
	if len(tx.TxOut) == 0 {
		return nil, newErr(KindInvalidCollateral, "collateral transaction has no outputs")
	}
	if tx.LockTime != 0 {
		return nil, newErr(KindInvalidCollateral, "collateral transaction has nonzero locktime")
	}

	fee := v.params.ProposalFee
	if isFinalizedBudget {
		fee = v.params.FinalizationFee
	}

	var commitmentFound bool
	for _, out := range tx.TxOut {
		data, isReturn := types.ParseOpReturnData(out.PkScript)
		if isReturn {
			if len(data) != 32 {
				continue
			}
			var gotHash [32]byte
			copy(gotHash[:], data)
			if gotHash == expectedHash && out.Value >= fee {
				commitmentFound = true
			}
			continue
		}
		if !types.IsP2PKHScript(out.PkScript) && len(out.PkScript) > 0 {
			return nil, newErr(KindInvalidCollateral, "collateral transaction has a non-standard spendable output")
		}
	}
	if !commitmentFound {
		return nil, newErr(KindInvalidCollateral, "collateral transaction missing qualifying OP_RETURN commitment")
	}
	if loc == nil || loc.Confirmations < v.params.RequiredConfs {
		if v.cache != nil {
			if matchedAt, ok := v.cache.Matured(txid); ok {
				blockTime := matchedAt
				if loc != nil {
					blockTime = loc.BlockTime
				}
				return &CollateralResult{BlockTime: blockTime, Confirmations: v.params.RequiredConfs}, nil
			}
		}
		got := int64(0)
		if loc != nil {
			got = loc.Confirmations
		}
		return nil, newErr(KindInvalidCollateral, insufficientConfsReason(got, v.params.RequiredConfs))
	}

	if v.cache != nil {
		_ = v.cache.MarkMatured(txid, loc.BlockTime)
	}
	return &CollateralResult{BlockTime: loc.BlockTime, Confirmations: loc.Confirmations}, nil
}

func insufficientConfsReason(got, required int64) string {
	return "insufficient confirmations: " + strconv.FormatInt(got, 10) + " < " + strconv.FormatInt(required, 10)
}
