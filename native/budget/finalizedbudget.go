package budget

import (
	"bytes"
	"sort"
	"time"
)

const maxPaymentsPerBudget = 100

// Validate implements §4.3's validation rules: non-empty name, start block
// aligned to the cycle length, payment count within bounds, total payout
// within the cycle budget, collateral valid, and not obsolete.
func (fb *FinalizedBudget) Validate(cycleLength int64, cycleBudget int64, currentCycleStart int64, revalidateCollateral func() error) error {
	if fb.Name == "" {
		return newErr(KindMalformedItem, "finalized budget name is empty")
	}
	if cycleLength <= 0 || fb.StartBlock%cycleLength != 0 {
		return newErr(KindMalformedItem, "start block is not aligned to the cycle length")
	}
	if len(fb.Payments) > maxPaymentsPerBudget {
		return newErr(KindMalformedItem, "too many payments")
	}
	var total int64
	for _, pay := range fb.Payments {
		total += pay.Amount
	}
	if total > cycleBudget {
		return newErr(KindMalformedItem, "total payout exceeds cycle budget")
	}
	if revalidateCollateral != nil {
		if err := revalidateCollateral(); err != nil {
			return err
		}
	}
	blockEnd := fb.StartBlock + int64(len(fb.Payments)) - 1
	if blockEnd < currentCycleStart-2*cycleLength {
		return newErr(KindStaleItem, "finalized budget is obsolete")
	}
	return nil
}

// VoteCount returns the number of currently-valid votes on this budget.
func (fb *FinalizedBudget) VoteCount() int {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	count := 0
	for _, v := range fb.votes {
		if v.valid {
			count++
		}
	}
	return count
}

// AddOrUpdateVote mirrors Proposal.AddOrUpdateVote for finalized-budget
// votes, which carry no direction (every accepted vote is a "yes").
func (fb *FinalizedBudget) AddOrUpdateVote(v *Vote, now time.Time, minUpdateInterval time.Duration) error {
	if v.Time.After(now.Add(time.Hour)) {
		return newErr(KindRateLimited, "vote timestamp too far in the future")
	}
	key := OutpointKey(v.VoterOutpoint)

	fb.mu.Lock()
	defer fb.mu.Unlock()

	existing, ok := fb.votes[key]
	if ok {
		if !v.Time.After(existing.Time) {
			return newErr(KindRateLimited, "vote time does not advance prior vote")
		}
		if v.Time.Sub(existing.Time) < minUpdateInterval {
			return newErr(KindRateLimited, "vote arrived before minimum update interval")
		}
	}
	fb.votes[key] = v
	return nil
}

// RefreshAllVotes recomputes validity for every stored vote against the
// current masternode directory.
func (fb *FinalizedBudget) RefreshAllVotes(dir MasternodeDirectory) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, v := range fb.votes {
		RefreshValidity(v, dir)
	}
}

// Covers reports whether height h falls within this budget's cycle.
func (fb *FinalizedBudget) Covers(h int64, cycleLength int64) bool {
	end := fb.StartBlock + cycleLength - 1
	return fb.StartBlock <= h && h <= end
}

// CheckBlockTransaction implements §4.3's check_block_transaction: resolves
// the payment index for height h, enforces at-most-once payment per cycle
// via payment_history, then scans outputs tail-to-head for an exact
// (script, amount) match against the i-th payment.
func (fb *FinalizedBudget) CheckBlockTransaction(outputs []TxOutLike, height int64) BlockTxResult {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	i := height - fb.StartBlock
	if i < 0 || int(i) >= len(fb.Payments) {
		return TxInvalid
	}

	payment := fb.Payments[i]
	if _, paid := fb.paymentHistory[payment.ProposalHash]; paid {
		return TxDoublePayment
	}

	for j := len(outputs) - 1; j >= 0; j-- {
		out := outputs[j]
		if out.Value() == payment.Amount && bytes.Equal(out.Script(), payment.PayeeScript) {
			fb.paymentHistory[payment.ProposalHash] = height
			return TxValid
		}
	}
	return TxInvalid
}

// TxOutLike abstracts the minimal output shape CheckBlockTransaction needs,
// letting callers pass either *types.TxOut directly or a view over it.
type TxOutLike interface {
	Value() int64
	Script() []byte
}

// AutoCheckAndVote implements §4.3's probabilistic, latched auto-vote: fires
// on ~1/4 invocations (via rnd), recomputes the current proposal selection,
// resorts both sequences by descending hash, and votes yes only on an
// element-wise match of (proposal_hash, payee_script, amount).
func (fb *FinalizedBudget) AutoCheckAndVote(rnd RandSource, selection []Payment, castVote func() error) error {
	fb.mu.Lock()
	if fb.autoChecked {
		fb.mu.Unlock()
		return nil
	}
	if rnd.Intn(4) != 0 {
		fb.mu.Unlock()
		return nil
	}
	fb.autoChecked = true
	local := make([]Payment, len(fb.Payments))
	copy(local, fb.Payments)
	fb.mu.Unlock()

	sortPaymentsByHash(local)
	remote := make([]Payment, len(selection))
	copy(remote, selection)
	sortPaymentsByHash(remote)

	if len(local) != len(remote) {
		return nil
	}
	for i := range local {
		if local[i].ProposalHash != remote[i].ProposalHash {
			return nil
		}
		if !bytes.Equal(local[i].PayeeScript, remote[i].PayeeScript) {
			return nil
		}
		if local[i].Amount != remote[i].Amount {
			return nil
		}
	}
	return castVote()
}

func sortPaymentsByHash(payments []Payment) {
	sort.Slice(payments, func(i, j int) bool {
		return bytes.Compare(payments[i].ProposalHash[:], payments[j].ProposalHash[:]) > 0
	})
}

// snapshotVotes returns the current vote set for serialization.
func (fb *FinalizedBudget) snapshotVotes() []*Vote {
	fb.mu.RLock()
	defer fb.mu.RUnlock()
	out := make([]*Vote, 0, len(fb.votes))
	for _, v := range fb.votes {
		out = append(out, v)
	}
	return out
}

// restoreVotes installs an empty vote map on a finalized budget being
// decoded from a snapshot, before putVote populates it.
func (fb *FinalizedBudget) restoreVotes(votes map[[32]byte]*Vote) {
	fb.mu.Lock()
	fb.votes = votes
	fb.mu.Unlock()
}

// votesForSync mirrors Proposal.votesForSync for finalized-budget votes.
func (fb *FinalizedBudget) votesForSync(partial bool) []*Vote {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := make([]*Vote, 0, len(fb.votes))
	for _, v := range fb.votes {
		if partial && v.synced {
			continue
		}
		v.synced = true
		out = append(out, v)
	}
	return out
}

// resetVoteSyncFlags mirrors Proposal.resetVoteSyncFlags.
func (fb *FinalizedBudget) resetVoteSyncFlags() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, v := range fb.votes {
		v.synced = false
	}
}

// putVote inserts a decoded vote directly, bypassing add_or_update_vote's
// rate checks since a snapshot's votes were already accepted once.
func (fb *FinalizedBudget) putVote(v *Vote) {
	fb.mu.Lock()
	fb.votes[OutpointKey(v.VoterOutpoint)] = v
	fb.mu.Unlock()
}
