package budget

import "log/slog"

// heavyWorkInterval is how often (in blocks) the orchestrator performs
// check_and_remove and the other non-trivial maintenance, per §4.7 step 3.
const heavyWorkInterval = 14

// syncResetDivisor is the ~1/1440 sampling rate for forcing a full
// re-broadcast round once the node considers itself synced.
const syncResetDivisor = 1440

// finalizationWindowFloor is the minimum width, in blocks, of the window
// before a cycle's start in which the local node may submit its own
// finalized budget.
const finalizationWindowFloor = 64

// LivePeerLister exposes the connected peer set the orchestrator pushes
// partial syncs to on every heavy-work tick.
type LivePeerLister interface {
	LivePeers() []PeerHandle
}

// OnNewBlock implements the per-block tick of §4.7.
func (m *Manager) OnNewBlock(height int64, transport P2PTransport, peers LivePeerLister) {
	m.setBestHeight(height)

	if m.params.Mode == ModeSuggest {
		if err := m.SubmitFinalBudget(height, transport); err != nil {
			m.logger.Debug("submit final budget skipped", slog.Any("error", err))
		}
	}

	m.ticks++
	if m.ticks%heavyWorkInterval != 0 {
		return
	}

	if m.Synced() && peers != nil {
		if m.rand.Intn(syncResetDivisor) == 0 {
			m.resetSeenSets()
		}
		for _, peer := range peers.LivePeers() {
			var zero [32]byte
			m.Sync(peer, transport, zero, true)
		}
	}

	m.CheckAndRemove(height)
	m.AgeOutAskThrottle()
	m.PromoteMatured(transport)
}

// resetSeenSets clears the dedup seen-sets and their synced tracking to
// force a fresh re-broadcast round, per §4.7 step 4.
func (m *Manager) resetSeenSets() {
	m.muProposals.Lock()
	m.seenProposals = make(map[[32]byte]bool)
	m.muProposals.Unlock()

	m.muBudgets.Lock()
	m.seenFinalized = make(map[[32]byte]bool)
	m.muBudgets.Unlock()

	m.muVotes.Lock()
	m.seenProposalVotes = make(map[[32]byte]bool)
	m.muVotes.Unlock()

	m.muFinalizedVotes.Lock()
	m.seenFinalizedVotes = make(map[[32]byte]bool)
	m.muFinalizedVotes.Unlock()

	for _, p := range m.activeProposalsSnapshot() {
		p.resetVoteSyncFlags()
	}
	for _, fb := range m.activeFinalizedSnapshot() {
		fb.resetVoteSyncFlags()
	}
}

// FinalizationWindow returns max(2*C/30, 64), the width (in blocks) of the
// window before the next cycle start during which submit_final_budget may
// fire.
func (m *Manager) FinalizationWindow() int64 {
	w := (2 * m.params.CycleLength) / 30
	if w < finalizationWindowFloor {
		return finalizationWindowFloor
	}
	return w
}
