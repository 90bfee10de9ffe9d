package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// AddOrUpdateVote replaces a prior vote from the same voter only when the new
// vote strictly advances time past both the existing vote and the configured
// minimum update interval (testable property 1).
func TestProposalAddOrUpdateVoteMonotonicity(t *testing.T) {
	p := testProposal(t)
	voter := newVoterKey(0x10, 0)
	base := p.CreatedTime.Add(time.Hour)

	first := NewVote(voter.outpoint, p.Hash, VoteYes, base)
	require.NoError(t, p.AddOrUpdateVote(first, base.Add(time.Minute), time.Hour))
	markValid(first)
	require.Equal(t, 1, p.Yeas())

	// Same or earlier timestamp is rejected outright.
	stale := NewVote(voter.outpoint, p.Hash, VoteNo, base)
	err := p.AddOrUpdateVote(stale, base.Add(time.Minute), time.Hour)
	require.Error(t, err)
	require.True(t, IsKind(err, KindRateLimited))
	require.Equal(t, 1, p.Yeas())

	// A later timestamp that is still inside the minimum update interval is
	// also rejected.
	tooSoon := NewVote(voter.outpoint, p.Hash, VoteNo, base.Add(time.Minute))
	err = p.AddOrUpdateVote(tooSoon, base.Add(2*time.Minute), time.Hour)
	require.Error(t, err)
	require.True(t, IsKind(err, KindRateLimited))

	// Past both the prior vote and the interval, the update replaces it.
	update := NewVote(voter.outpoint, p.Hash, VoteNo, base.Add(2*time.Hour))
	require.NoError(t, p.AddOrUpdateVote(update, base.Add(2*time.Hour).Add(time.Minute), time.Hour))
	markValid(update)
	require.Equal(t, 0, p.Yeas())
	require.Equal(t, 1, p.Nays())
}

func TestProposalAddOrUpdateVoteRejectsFarFutureTimestamp(t *testing.T) {
	p := testProposal(t)
	voter := newVoterKey(0x11, 0)
	now := p.CreatedTime
	v := NewVote(voter.outpoint, p.Hash, VoteYes, now.Add(2*time.Hour))
	err := p.AddOrUpdateVote(v, now, time.Hour)
	require.Error(t, err)
	require.True(t, IsKind(err, KindRateLimited))
}

func markValid(v *Vote) { v.valid = true }

func TestProposalIsHeavilyDownvoted(t *testing.T) {
	p := testProposal(t)
	now := p.CreatedTime

	for i := 0; i < 3; i++ {
		voter := newVoterKey(byte(0x20+i), 0)
		v := NewVote(voter.outpoint, p.Hash, VoteNo, now.Add(time.Duration(i+1)*time.Hour))
		require.NoError(t, p.AddOrUpdateVote(v, now.Add(time.Duration(i+1)*time.Hour).Add(time.Minute), 0))
		markValid(v)
	}

	// enabledCount=10 -> PassMargin=1; net no-yes=3 exceeds the margin.
	require.True(t, p.IsHeavilyDownvoted(10))
	require.False(t, p.IsHeavilyDownvoted(1000))
}

func TestProposalIsPassingRequiresEstablishmentAndMargin(t *testing.T) {
	p := testProposal(t)
	p.valid = true
	now := p.CreatedTime

	for i := 0; i < 4; i++ {
		voter := newVoterKey(byte(0x30+i), 0)
		v := NewVote(voter.outpoint, p.Hash, VoteYes, now.Add(time.Duration(i+1)*time.Hour))
		require.NoError(t, p.AddOrUpdateVote(v, now.Add(time.Duration(i+1)*time.Hour).Add(time.Minute), 0))
		markValid(v)
	}

	cycleStart, cycleEnd := p.StartBlock, p.StartBlock+1
	window := 48 * time.Hour

	// Not yet established.
	require.False(t, p.IsPassing(cycleStart, cycleEnd, 10, now, window))

	// Established, margin cleared.
	established := now.Add(window + time.Minute)
	require.True(t, p.IsPassing(cycleStart, cycleEnd, 10, established, window))

	// Margin too high for this enabled count.
	require.False(t, p.IsPassing(cycleStart, cycleEnd, 1000, established, window))
}

// SortProposalsForSelection orders by descending net-yes, breaking ties by
// the greater collateral txid, matching the recorded Open Question decision.
func TestSortProposalsForSelectionOrdering(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	low := NewProposal("low", "", p2pkhScript(1), 10*Coin, 0, 1, 43_200, collateralTxid(0x01), now)
	highA := NewProposal("highA", "", p2pkhScript(2), 10*Coin, 0, 1, 43_200, collateralTxid(0x02), now)
	highB := NewProposal("highB", "", p2pkhScript(3), 10*Coin, 0, 1, 43_200, collateralTxid(0xff), now)

	for _, p := range []*Proposal{highA, highB} {
		voter := newVoterKey(p.PayeeScript[3], 0)
		v := NewVote(voter.outpoint, p.Hash, VoteYes, now.Add(time.Hour))
		require.NoError(t, p.AddOrUpdateVote(v, now.Add(time.Hour).Add(time.Minute), 0))
		markValid(v)
	}

	proposals := []*Proposal{low, highA, highB}
	SortProposalsForSelection(proposals)

	require.Equal(t, highB.Hash, proposals[0].Hash, "highB has the greater collateral txid and ties highA on net-yes")
	require.Equal(t, highA.Hash, proposals[1].Hash)
	require.Equal(t, low.Hash, proposals[2].Hash)
}
