package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mnbudget/core/types"
)

func testProposal(t *testing.T) *Proposal {
	t.Helper()
	return NewProposal(
		"road-to-mainnet",
		"https://example.org/proposal/1",
		p2pkhScript(0x11),
		500*Coin,
		43_200,
		3,
		43_200,
		collateralTxid(0x01),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	)
}

// HashProposal is deterministic over immutable fields and independent of
// votes (testable property 3).
func TestHashProposalDeterministicAndVoteIndependent(t *testing.T) {
	p := testProposal(t)
	h1 := HashProposal(p)
	h2 := HashProposal(p)
	require.Equal(t, h1, h2)

	voter := newVoterKey(0x02, 0)
	v := NewVote(voter.outpoint, p.Hash, VoteYes, p.CreatedTime)
	require.NoError(t, p.AddOrUpdateVote(v, p.CreatedTime.Add(time.Minute), 0))

	require.Equal(t, h1, HashProposal(p), "adding a vote must not change the proposal's identity hash")
}

func TestHashProposalChangesWithImmutableFields(t *testing.T) {
	p1 := testProposal(t)
	p2 := testProposal(t)
	p2.Amount = p1.Amount + 1
	p2.Hash = HashProposal(p2)
	require.NotEqual(t, p1.Hash, p2.Hash)
}

func TestHashFinalizedBudgetDeterministic(t *testing.T) {
	fb1 := NewFinalizedBudget(43_200, []Payment{{ProposalHash: [32]byte{1}, PayeeScript: p2pkhScript(0x22), Amount: 10 * Coin}}, collateralTxid(0x03), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	fb2 := NewFinalizedBudget(43_200, []Payment{{ProposalHash: [32]byte{1}, PayeeScript: p2pkhScript(0x22), Amount: 10 * Coin}}, collateralTxid(0x03), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, fb1.Hash, fb2.Hash)
}

func TestHashVoteDependsOnDirectionOnlyWhenPresent(t *testing.T) {
	voter := newVoterKey(0x04, 1)
	target := [32]byte{9}
	when := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	yes := NewVote(voter.outpoint, target, VoteYes, when)
	no := NewVote(voter.outpoint, target, VoteNo, when)

	require.NotEqual(t, HashVote(yes, true), HashVote(no, true), "proposal vote hash must reflect direction")
	require.Equal(t, HashVote(yes, false), HashVote(no, false), "finalized-budget vote hash ignores direction")
}

func TestOutpointKeyStable(t *testing.T) {
	o := types.Outpoint{Hash: [32]byte{5, 6, 7}, Index: 2}
	require.Equal(t, OutpointKey(o), OutpointKey(o))
}
