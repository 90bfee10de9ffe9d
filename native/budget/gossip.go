package budget

import (
	budgetevents "mnbudget/core/events"
)

// Wire command strings, per §6's protocol table.
const (
	CmdVoteSync          = "mnvs"
	CmdProposal          = "mprop"
	CmdProposalVote      = "mvote"
	CmdFinalizedBudget   = "fbs"
	CmdFinalizedBudgetVote = "fbvote"
)

// Inventory kinds distinguish the four gossipable item categories for
// SYNCSTATUSCOUNT framing.
type InvKind int

const (
	InvProposal InvKind = iota
	InvFinalizedBudget
	InvProposalVote
	InvFinalizedBudgetVote
)

// SyncStatusCount is sent once per category at the end of a sync response.
type SyncStatusCount struct {
	Kind  InvKind
	Count int
}

func proposalSubmittedEvent(p *Proposal) budgetevents.Event {
	return budgetevents.ProposalSubmitted{
		ProposalHash: p.Hash,
		Name:         p.Name,
		PaymentCount: p.PaymentCount,
		Amount:       p.Amount,
	}
}

func proposalVoteCastEvent(v *Vote) budgetevents.Event {
	return budgetevents.ProposalVoteCast{
		ProposalHash: v.TargetHash,
		Voter:        v.VoterOutpoint,
		Signal:       int8(v.Direction),
	}
}

// Sync implements §4.6: iterate seen items (or only a matching target),
// push an inventory entry for each valid one, stream its votes (filtered by
// !synced when partial), and finish each category with a SYNCSTATUSCOUNT.
// full (target == zero hash) is served at most once per peer, on every
// network alike; callers track that via fullSyncServed.
func (m *Manager) Sync(peer PeerHandle, transport P2PTransport, target [32]byte, partial bool) {
	var zero [32]byte
	full := target == zero

	proposalCount := 0
	proposalVoteCount := 0
	for _, p := range m.activeProposalsSnapshot() {
		if !full && p.Hash != target {
			continue
		}
		if valid, _ := p.Valid(); !valid {
			continue
		}
		_ = transport.Send(peer, &WireMessage{Command: CmdProposal, Payload: EncodeProposalWire(p)})
		proposalCount++
		for _, v := range p.votesForSync(partial) {
			_ = transport.Send(peer, &WireMessage{Command: CmdProposalVote, Payload: EncodeVoteWire(v)})
			proposalVoteCount++
		}
	}
	_ = transport.Send(peer, &WireMessage{Command: CmdVoteSync, Payload: encodeSyncStatusCount(SyncStatusCount{InvProposal, proposalCount})})
	_ = transport.Send(peer, &WireMessage{Command: CmdVoteSync, Payload: encodeSyncStatusCount(SyncStatusCount{InvProposalVote, proposalVoteCount})})

	budgetCount := 0
	budgetVoteCount := 0
	for _, fb := range m.activeFinalizedSnapshot() {
		if !full && fb.Hash != target {
			continue
		}
		_ = transport.Send(peer, &WireMessage{Command: CmdFinalizedBudget, Payload: EncodeFinalizedBudgetWire(fb)})
		budgetCount++
		for _, v := range fb.votesForSync(partial) {
			_ = transport.Send(peer, &WireMessage{Command: CmdFinalizedBudgetVote, Payload: EncodeVoteWire(v)})
			budgetVoteCount++
		}
	}
	_ = transport.Send(peer, &WireMessage{Command: CmdVoteSync, Payload: encodeSyncStatusCount(SyncStatusCount{InvFinalizedBudget, budgetCount})})
	_ = transport.Send(peer, &WireMessage{Command: CmdVoteSync, Payload: encodeSyncStatusCount(SyncStatusCount{InvFinalizedBudgetVote, budgetVoteCount})})
}

// encodeSyncStatusCount is a minimal wire encoding: kind byte + count as a
// 4-byte little-endian integer, sufficient for the inventory-count framing
// the sync protocol needs (the engine does not otherwise parse this
// payload; the transport is responsible for the rest of message framing).
func encodeSyncStatusCount(s SyncStatusCount) []byte {
	buf := make([]byte, 5)
	buf[0] = byte(s.Kind)
	buf[1] = byte(s.Count)
	buf[2] = byte(s.Count >> 8)
	buf[3] = byte(s.Count >> 16)
	buf[4] = byte(s.Count >> 24)
	return buf
}

// HandleVoteSyncRequest processes an inbound mnvs request: a zero target
// means a full sync, which is served at most once per peer on every network
// alike; subsequent full requests raise the requester's ban score.
func (m *Manager) HandleVoteSyncRequest(peer PeerHandle, transport P2PTransport, target [32]byte, fullSyncServed func(PeerHandle) bool, markFullSyncServed func(PeerHandle)) {
	var zero [32]byte
	if target == zero {
		if fullSyncServed(peer) {
			transport.Misbehaving(peer, misbehaviorBanDelta, "repeated full sync request")
			return
		}
		markFullSyncServed(peer)
		m.Sync(peer, transport, target, false)
		return
	}
	m.Sync(peer, transport, target, true)
}
