package budget

import (
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"mnbudget/observability/logging"
)

// misbehaviorBanDelta is the ban-score increment applied for collateral and
// signature failures that originate from a peer, per §7's error policy.
const misbehaviorBanDelta = 20

// synced tracks whether this node considers itself fully synced, gating
// ban-score increments for signature failures (so bootstrapping peers are
// not punished) per §7.
func (m *Manager) SetSynced(v bool) { atomic.StoreInt32(&m.syncedFlag, boolToInt32(v)) }
func (m *Manager) Synced() bool     { return atomic.LoadInt32(&m.syncedFlag) != 0 }

func boolToInt32(v bool) int32 {
	if v {
		return 1
	}
	return 0
}

// IngestProposal runs the proposal ingestion pipeline from §4.5: dedup
// against the seen-set, validate collateral (parking immature items),
// insert into the seen-set, validate well-formedness/height, insert into
// the active set, relay, and reconcile orphan votes.
func (m *Manager) IngestProposal(p *Proposal, transport P2PTransport, peer PeerHandle) error {
	m.muProposals.Lock()
	if m.seenProposals[p.Hash] {
		m.muProposals.Unlock()
		return newErr(KindDuplicateSeen, "proposal already seen")
	}
	m.muProposals.Unlock()

	result, err := m.collateral.Validate(p.CollateralTxid, p.Hash, false)
	if err != nil {
		if IsKind(err, KindInvalidCollateral) {
			m.parkImmatureProposal(p)
		}
		if transport != nil && peer != nil {
			transport.Misbehaving(peer, misbehaviorBanDelta, err.Error())
		}
		return err
	}
	if p.CreatedTime.IsZero() {
		p.CreatedTime = result.BlockTime
	}

	m.muProposals.Lock()
	m.seenProposals[p.Hash] = true
	m.muProposals.Unlock()

	enabled := m.dir.EnabledCount(m.params.MinProtocolVersion)
	if !p.UpdateValid(m.BestHeight(), enabled, m.revalidateProposalCollateral(p)) {
		return newErr(KindMalformedItem, "proposal failed validation")
	}

	m.muProposals.Lock()
	m.proposals[p.Hash] = p
	m.muProposals.Unlock()

	if transport != nil {
		_ = transport.Broadcast(&WireMessage{Command: CmdProposal, Payload: EncodeProposalWire(p)})
	}
	m.emit.Emit(proposalSubmittedEvent(p))
	m.reconcileOrphanProposalVotes(p)
	return nil
}

// IngestFinalizedBudget mirrors IngestProposal for finalized-budget
// ballots.
func (m *Manager) IngestFinalizedBudget(fb *FinalizedBudget, transport P2PTransport, peer PeerHandle) error {
	m.muBudgets.Lock()
	if m.seenFinalized[fb.Hash] {
		m.muBudgets.Unlock()
		return newErr(KindDuplicateSeen, "finalized budget already seen")
	}
	m.muBudgets.Unlock()

	result, err := m.collateral.Validate(fb.CollateralTxid, fb.Hash, true)
	if err != nil {
		if IsKind(err, KindInvalidCollateral) {
			m.parkImmatureFinalized(fb)
		}
		if transport != nil && peer != nil {
			transport.Misbehaving(peer, misbehaviorBanDelta, err.Error())
		}
		return err
	}
	if fb.CreatedTime.IsZero() {
		fb.CreatedTime = result.BlockTime
	}

	m.muBudgets.Lock()
	m.seenFinalized[fb.Hash] = true
	m.muBudgets.Unlock()

	cycleStart, _ := m.params.CycleBounds(m.BestHeight())
	cycleBudget := m.params.CycleBudget(fb.StartBlock)
	if err := fb.Validate(m.params.CycleLength, cycleBudget, cycleStart, m.revalidateFinalizedCollateral(fb)); err != nil {
		return err
	}

	m.muBudgets.Lock()
	m.finalizedBudgets[fb.Hash] = fb
	m.muBudgets.Unlock()

	if transport != nil {
		_ = transport.Broadcast(&WireMessage{Command: CmdFinalizedBudget, Payload: EncodeFinalizedBudgetWire(fb)})
	}
	m.reconcileOrphanFinalizedVotes(fb)
	return nil
}

// IngestProposalVote implements the vote branch of §4.5's pipeline: unknown
// voter is dropped (masternode directory membership sync is out of scope),
// signature failure after sync bans the peer, and a vote for an unknown
// target is parked as an orphan with a throttled ask.
func (m *Manager) IngestProposalVote(v *Vote, transport P2PTransport, peer PeerHandle) error {
	m.muVotes.Lock()
	voteHash := HashVote(v, true)
	if m.seenProposalVotes[voteHash] {
		m.muVotes.Unlock()
		return newErr(KindDuplicateSeen, "vote already seen")
	}
	m.muVotes.Unlock()

	if err := Verify(v, true, m.dir); err != nil {
		if IsKind(err, KindBadSignature) {
			m.logger.Warn("proposal vote signature rejected",
				logging.MaskField("signature", hex.EncodeToString(v.Signature)),
				slog.String("error", err.Error()))
			if m.Synced() && transport != nil && peer != nil {
				transport.Misbehaving(peer, misbehaviorBanDelta, err.Error())
			}
		}
		return err
	}

	m.muVotes.Lock()
	m.seenProposalVotes[voteHash] = true
	m.muVotes.Unlock()

	target, ok := m.GetProposal(v.TargetHash)
	if !ok {
		m.parkOrphanProposalVote(v, transport, peer)
		return newErr(KindUnknownTarget, "vote target is not in the active proposal set")
	}
	if err := target.AddOrUpdateVote(v, m.chain.AdjustedTime(), m.params.MinUpdateInterval); err != nil {
		return err
	}
	if transport != nil {
		_ = transport.Broadcast(&WireMessage{Command: CmdProposalVote, Payload: EncodeVoteWire(v)})
	}
	m.emit.Emit(proposalVoteCastEvent(v))
	return nil
}

// IngestFinalizedBudgetVote mirrors IngestProposalVote for finalized-budget
// ballots, whose votes carry no direction.
func (m *Manager) IngestFinalizedBudgetVote(v *Vote, transport P2PTransport, peer PeerHandle) error {
	m.muFinalizedVotes.Lock()
	voteHash := HashVote(v, false)
	if m.seenFinalizedVotes[voteHash] {
		m.muFinalizedVotes.Unlock()
		return newErr(KindDuplicateSeen, "vote already seen")
	}
	m.muFinalizedVotes.Unlock()

	if err := Verify(v, false, m.dir); err != nil {
		if IsKind(err, KindBadSignature) {
			m.logger.Warn("finalized budget vote signature rejected",
				logging.MaskField("signature", hex.EncodeToString(v.Signature)),
				slog.String("error", err.Error()))
			if m.Synced() && transport != nil && peer != nil {
				transport.Misbehaving(peer, misbehaviorBanDelta, err.Error())
			}
		}
		return err
	}

	m.muFinalizedVotes.Lock()
	m.seenFinalizedVotes[voteHash] = true
	m.muFinalizedVotes.Unlock()

	target, ok := m.GetFinalizedBudget(v.TargetHash)
	if !ok {
		m.parkOrphanFinalizedVote(v, transport, peer)
		return newErr(KindUnknownTarget, "vote target is not in the active finalized-budget set")
	}
	if err := target.AddOrUpdateVote(v, m.chain.AdjustedTime(), m.params.MinUpdateInterval); err != nil {
		return err
	}
	if transport != nil {
		_ = transport.Broadcast(&WireMessage{Command: CmdFinalizedBudgetVote, Payload: EncodeVoteWire(v)})
	}
	return nil
}

func (m *Manager) parkImmatureProposal(p *Proposal) {
	m.muProposals.Lock()
	defer m.muProposals.Unlock()
	if _, exists := m.immatureProposals[p.Hash]; !exists {
		m.immatureProposals[p.Hash] = &pendingProposal{proposal: p, firstSeen: m.chain.AdjustedTime()}
	}
}

func (m *Manager) parkImmatureFinalized(fb *FinalizedBudget) {
	m.muBudgets.Lock()
	defer m.muBudgets.Unlock()
	if _, exists := m.immatureFinalized[fb.Hash]; !exists {
		m.immatureFinalized[fb.Hash] = &pendingFinalized{budget: fb, firstSeen: m.chain.AdjustedTime()}
	}
}

func (m *Manager) parkOrphanProposalVote(v *Vote, transport P2PTransport, peer PeerHandle) {
	m.muVotes.Lock()
	m.orphanProposalVotes[v.TargetHash] = append(m.orphanProposalVotes[v.TargetHash], v)
	m.muVotes.Unlock()
	m.askIfDue(v.TargetHash, transport, peer)
}

func (m *Manager) parkOrphanFinalizedVote(v *Vote, transport P2PTransport, peer PeerHandle) {
	m.muFinalizedVotes.Lock()
	m.orphanFinalizedVotes[v.TargetHash] = append(m.orphanFinalizedVotes[v.TargetHash], v)
	m.muFinalizedVotes.Unlock()
	m.askIfDue(v.TargetHash, transport, peer)
}

// askIfDue implements testable property 9: at most one outbound mnvs per
// target hash within the ask-throttle window.
func (m *Manager) askIfDue(target [32]byte, transport P2PTransport, peer PeerHandle) {
	now := m.chain.AdjustedTime()

	m.muAsk.Lock()
	last, asked := m.askThrottle[target]
	due := !asked || now.Sub(last) >= m.params.AskThrottleWindow
	if due {
		m.askThrottle[target] = now
	}
	m.muAsk.Unlock()

	if due && transport != nil && peer != nil {
		transport.Ask(peer, target)
	}
}

// AgeOutAskThrottle drops ask-throttle entries older than the configured
// window, letting a fresh ask fire on the next orphan vote for that target.
func (m *Manager) AgeOutAskThrottle() {
	now := m.chain.AdjustedTime()
	m.muAsk.Lock()
	defer m.muAsk.Unlock()
	for hash, last := range m.askThrottle {
		if now.Sub(last) >= m.params.AskThrottleWindow {
			delete(m.askThrottle, hash)
		}
	}
}

// reconcileOrphanProposalVotes promotes any votes parked for p's hash now
// that p itself has entered the active set ("CheckOrphanVotes").
func (m *Manager) reconcileOrphanProposalVotes(p *Proposal) {
	m.muVotes.Lock()
	pending := m.orphanProposalVotes[p.Hash]
	delete(m.orphanProposalVotes, p.Hash)
	m.muVotes.Unlock()

	now := m.chain.AdjustedTime()
	for _, v := range pending {
		_ = p.AddOrUpdateVote(v, now, m.params.MinUpdateInterval)
	}
}

func (m *Manager) reconcileOrphanFinalizedVotes(fb *FinalizedBudget) {
	m.muFinalizedVotes.Lock()
	pending := m.orphanFinalizedVotes[fb.Hash]
	delete(m.orphanFinalizedVotes, fb.Hash)
	m.muFinalizedVotes.Unlock()

	now := m.chain.AdjustedTime()
	for _, v := range pending {
		_ = fb.AddOrUpdateVote(v, now, m.params.MinUpdateInterval)
	}
}

// PromoteMatured scans the immature queues and promotes any item whose
// collateral has now reached REQUIRED_CONFS, per the orchestrator's step 7.
func (m *Manager) PromoteMatured(transport P2PTransport) {
	m.muProposals.Lock()
	var readyProposals []*Proposal
	for hash, pending := range m.immatureProposals {
		if _, err := m.collateral.Validate(pending.proposal.CollateralTxid, pending.proposal.Hash, false); err == nil {
			readyProposals = append(readyProposals, pending.proposal)
			delete(m.immatureProposals, hash)
		}
	}
	m.muProposals.Unlock()
	for _, p := range readyProposals {
		_ = m.IngestProposal(p, transport, nil)
	}

	m.muBudgets.Lock()
	var readyBudgets []*FinalizedBudget
	for hash, pending := range m.immatureFinalized {
		if _, err := m.collateral.Validate(pending.budget.CollateralTxid, pending.budget.Hash, true); err == nil {
			readyBudgets = append(readyBudgets, pending.budget)
			delete(m.immatureFinalized, hash)
		}
	}
	m.muBudgets.Unlock()
	for _, fb := range readyBudgets {
		_ = m.IngestFinalizedBudget(fb, transport, nil)
	}
}
