package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func countCommand(msgs []*WireMessage, command string) int {
	n := 0
	for _, msg := range msgs {
		if msg.Command == command {
			n++
		}
	}
	return n
}

// A full sync streams every active proposal and finalized budget alongside
// all of their current votes (§4.6).
func TestSyncFullStreamsItemsAndAllVotes(t *testing.T) {
	chain := newFakeChain()
	dir := newFakeDir()
	dir.setEnabled(10)
	m := newTestManager(chain, dir, nil)
	transport := newFakeTransport()
	peer := fakePeer("peer-1")

	p := submitProposal(t, m, chain, "full-sync", 10*Coin, 0xE0)
	voteProposal(t, m, dir, p, VoteYes, 0xE1, chain.AdjustedTime())
	voteProposal(t, m, dir, p, VoteYes, 0xE2, chain.AdjustedTime().Add(time.Hour))

	var zero [32]byte
	m.Sync(peer, transport, zero, false)

	sent := transport.sent[peer.ID()]
	require.Equal(t, 1, countCommand(sent, CmdProposal))
	require.Equal(t, 2, countCommand(sent, CmdProposalVote))
	require.Equal(t, 0, countCommand(sent, CmdFinalizedBudget))
	require.Equal(t, 0, countCommand(sent, CmdFinalizedBudgetVote))
}

// A partial sync only streams votes not already marked synced, and a second
// partial round resends nothing until the sync flags are reset.
func TestSyncPartialFiltersAlreadySyncedVotes(t *testing.T) {
	chain := newFakeChain()
	dir := newFakeDir()
	dir.setEnabled(10)
	m := newTestManager(chain, dir, nil)
	transport := newFakeTransport()
	peer := fakePeer("peer-1")

	p := submitProposal(t, m, chain, "partial-sync", 10*Coin, 0xF0)
	voteProposal(t, m, dir, p, VoteYes, 0xF1, chain.AdjustedTime())

	var zero [32]byte
	m.Sync(peer, transport, zero, true)
	require.Equal(t, 1, countCommand(transport.sent[peer.ID()], CmdProposalVote))

	// A fresh vote arrives after the first partial round; only it streams.
	voteProposal(t, m, dir, p, VoteYes, 0xF2, chain.AdjustedTime().Add(time.Hour))
	transport2 := newFakeTransport()
	m.Sync(peer, transport2, zero, true)
	require.Equal(t, 1, countCommand(transport2.sent[peer.ID()], CmdProposalVote))

	// Resetting the sync flags forces the next partial round to resend both.
	p.resetVoteSyncFlags()
	transport3 := newFakeTransport()
	m.Sync(peer, transport3, zero, true)
	require.Equal(t, 2, countCommand(transport3.sent[peer.ID()], CmdProposalVote))
}
