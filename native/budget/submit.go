package budget

// SubmitFinalBudget implements §4.8: within the finalization window before
// the next cycle start, construct a finalized budget from the current
// selection; if it has at least one payment, build a collateral
// transaction via the wallet embedding the budget hash, and ingest the
// budget, which relays it to peers. The collateral transaction itself is
// not broadcast here.
func (m *Manager) SubmitFinalBudget(height int64, transport P2PTransport) error {
	cycleStart, _ := m.params.CycleBounds(height)
	window := m.FinalizationWindow()
	if cycleStart-height > window {
		return newErr(KindStaleItem, "not yet within the finalization window")
	}

	m.muBudgets.Lock()
	if m.submittedCycles == nil {
		m.submittedCycles = make(map[int64]bool)
	}
	if m.submittedCycles[cycleStart] {
		m.muBudgets.Unlock()
		return newErr(KindDuplicateSeen, "already submitted a finalized budget for this cycle")
	}
	m.muBudgets.Unlock()

	payments := m.selectionPayments(cycleStart)
	if len(payments) == 0 {
		return newErr(KindMalformedItem, "no proposals selected for this cycle")
	}

	draft := NewFinalizedBudget(cycleStart, payments, [32]byte{}, m.chain.AdjustedTime())

	tx, err := m.wallet.CreateCollateralTransaction(draft.Hash, m.params.FinalizationFee)
	if err != nil {
		return wrapErr(KindPersistenceError, "wallet could not build collateral transaction", err)
	}
	txid := tx.TxID()
	draft.CollateralTxid = txid
	draft.Hash = HashFinalizedBudget(draft)

	if err := m.IngestFinalizedBudget(draft, transport, nil); err != nil {
		return err
	}

	m.muBudgets.Lock()
	m.submittedCycles[cycleStart] = true
	m.muBudgets.Unlock()
	return nil
}
