package budget

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mnbudget/core/types"
)

func collateralTxFixture(targetHash [32]byte, fee int64) *types.Transaction {
	return &types.Transaction{
		Version: 1,
		TxOut: []*types.TxOut{
			{Value: fee, PkScript: types.BuildOpReturnScript(targetHash[:])},
		},
		LockTime: 0,
	}
}

func TestCollateralValidateSuccess(t *testing.T) {
	chain := newFakeChain()
	params := DefaultParams()
	txid := collateralTxid(0x40)
	target := [32]byte{7}
	tx := collateralTxFixture(target, params.ProposalFee)
	chain.putTx(txid, tx, &TxLocation{BlockTime: chain.AdjustedTime(), Confirmations: params.RequiredConfs})

	v := NewCollateralValidator(chain, params)
	result, err := v.Validate(txid, target, false)
	require.NoError(t, err)
	require.Equal(t, params.RequiredConfs, result.Confirmations)
}

func TestCollateralValidateRejectsInsufficientFee(t *testing.T) {
	chain := newFakeChain()
	params := DefaultParams()
	txid := collateralTxid(0x41)
	target := [32]byte{8}
	tx := collateralTxFixture(target, params.ProposalFee-1)
	chain.putTx(txid, tx, &TxLocation{BlockTime: chain.AdjustedTime(), Confirmations: params.RequiredConfs})

	v := NewCollateralValidator(chain, params)
	_, err := v.Validate(txid, target, false)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidCollateral))
}

func TestCollateralValidateRejectsWrongCommitment(t *testing.T) {
	chain := newFakeChain()
	params := DefaultParams()
	txid := collateralTxid(0x42)
	target := [32]byte{9}
	other := [32]byte{10}
	tx := collateralTxFixture(other, params.ProposalFee)
	chain.putTx(txid, tx, &TxLocation{BlockTime: chain.AdjustedTime(), Confirmations: params.RequiredConfs})

	v := NewCollateralValidator(chain, params)
	_, err := v.Validate(txid, target, false)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidCollateral))
}

func TestCollateralValidateRejectsNonzeroLocktime(t *testing.T) {
	chain := newFakeChain()
	params := DefaultParams()
	txid := collateralTxid(0x43)
	target := [32]byte{11}
	tx := collateralTxFixture(target, params.ProposalFee)
	tx.LockTime = 1
	chain.putTx(txid, tx, &TxLocation{BlockTime: chain.AdjustedTime(), Confirmations: params.RequiredConfs})

	v := NewCollateralValidator(chain, params)
	_, err := v.Validate(txid, target, false)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidCollateral))
}

func TestCollateralValidateUsesFinalizationFeeWhenRequested(t *testing.T) {
	chain := newFakeChain()
	params := DefaultParams()
	txid := collateralTxid(0x44)
	target := [32]byte{12}
	// Pays enough for a finalized-budget submission but not a proposal.
	tx := collateralTxFixture(target, params.FinalizationFee)
	chain.putTx(txid, tx, &TxLocation{BlockTime: chain.AdjustedTime(), Confirmations: params.RequiredConfs})

	v := NewCollateralValidator(chain, params)
	_, err := v.Validate(txid, target, true)
	require.NoError(t, err)

	_, err = v.Validate(txid, target, false)
	require.Error(t, err, "finalization fee should not satisfy the (higher) proposal fee floor")
}

// A fresh validation that reaches RequiredConfs marks the cache; a later
// revalidation where the chain under-reports depth (simulating a lagging or
// pruned ChainReader) still succeeds from the cache (testable property 2:
// collateral maturity is idempotent once recorded).
func TestCollateralValidateCacheSurvivesLaggingChainReader(t *testing.T) {
	chain := newFakeChain()
	params := DefaultParams()
	txid := collateralTxid(0x45)
	target := [32]byte{13}
	tx := collateralTxFixture(target, params.ProposalFee)
	loc := &TxLocation{BlockTime: chain.AdjustedTime(), Confirmations: params.RequiredConfs}
	chain.putTx(txid, tx, loc)

	cache := newFakeConfirmationCache()
	v := NewCollateralValidator(chain, params).WithCache(cache)

	_, err := v.Validate(txid, target, false)
	require.NoError(t, err)
	_, ok := cache.Matured(txid)
	require.True(t, ok, "a successful validation past RequiredConfs should mark the cache")

	// Simulate the chain reader regressing (e.g. a resync) to below the
	// required depth.
	loc.Confirmations = 1
	result, err := v.Validate(txid, target, false)
	require.NoError(t, err, "a previously matured txid should not be re-flagged as immature")
	require.Equal(t, params.RequiredConfs, result.Confirmations)
}

func TestCollateralValidateWithoutCacheFailsOnInsufficientConfs(t *testing.T) {
	chain := newFakeChain()
	params := DefaultParams()
	txid := collateralTxid(0x46)
	target := [32]byte{14}
	tx := collateralTxFixture(target, params.ProposalFee)
	chain.putTx(txid, tx, &TxLocation{BlockTime: chain.AdjustedTime(), Confirmations: 0})

	v := NewCollateralValidator(chain, params)
	_, err := v.Validate(txid, target, false)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidCollateral))
}

func TestCollateralValidateMissingTransaction(t *testing.T) {
	chain := newFakeChain()
	params := DefaultParams()
	v := NewCollateralValidator(chain, params)
	_, err := v.Validate(collateralTxid(0x47), [32]byte{15}, false)
	require.Error(t, err)
	require.True(t, IsKind(err, KindInvalidCollateral))
}
