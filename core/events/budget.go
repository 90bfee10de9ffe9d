package events

import (
	"encoding/hex"
	"strconv"

	"mnbudget/core/types"
)

func hashAttr(h [32]byte) string { return hex.EncodeToString(h[:]) }

// ProposalSubmitted is emitted when a new budget proposal is accepted into
// the active proposal set.
type ProposalSubmitted struct {
	ProposalHash [32]byte
	Name         string
	PaymentCount uint32
	Amount       int64
}

func (ProposalSubmitted) EventType() string { return "proposal.submitted" }

func (e ProposalSubmitted) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"proposal_hash": hashAttr(e.ProposalHash),
			"name":          e.Name,
			"payment_count": strconv.FormatUint(uint64(e.PaymentCount), 10),
			"amount":        strconv.FormatInt(e.Amount, 10),
		},
	}
}

// ProposalVoteCast is emitted whenever a masternode vote on a proposal is
// recorded, whether freshly cast or received via gossip.
type ProposalVoteCast struct {
	ProposalHash [32]byte
	Voter        types.Outpoint
	Signal       int8
}

func (ProposalVoteCast) EventType() string { return "proposal.vote_cast" }

func (e ProposalVoteCast) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"proposal_hash": hashAttr(e.ProposalHash),
			"voter":         e.Voter.String(),
			"signal":        strconv.FormatInt(int64(e.Signal), 10),
		},
	}
}

// FinalizedBudgetSubmitted is emitted when a finalized-budget ballot enters
// the active set.
type FinalizedBudgetSubmitted struct {
	BudgetHash   [32]byte
	BlockStart   int64
	PaymentCount uint32
}

func (FinalizedBudgetSubmitted) EventType() string { return "finalizedbudget.submitted" }

func (e FinalizedBudgetSubmitted) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"budget_hash":   hashAttr(e.BudgetHash),
			"block_start":   strconv.FormatInt(e.BlockStart, 10),
			"payment_count": strconv.FormatUint(uint64(e.PaymentCount), 10),
		},
	}
}

// FinalizedBudgetVoteCast is emitted whenever a masternode vote on a
// finalized-budget ballot is recorded.
type FinalizedBudgetVoteCast struct {
	BudgetHash [32]byte
	Voter      types.Outpoint
}

func (FinalizedBudgetVoteCast) EventType() string { return "finalizedbudget.vote_cast" }

func (e FinalizedBudgetVoteCast) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"budget_hash": hashAttr(e.BudgetHash),
			"voter":       e.Voter.String(),
		},
	}
}

// FinalizedBudgetActivated is emitted when a finalized budget crosses the
// vote threshold and becomes the winning budget for its cycle.
type FinalizedBudgetActivated struct {
	BudgetHash [32]byte
	BlockStart int64
	NetYes     int
}

func (FinalizedBudgetActivated) EventType() string { return "finalizedbudget.activated" }

func (e FinalizedBudgetActivated) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"budget_hash": hashAttr(e.BudgetHash),
			"block_start": strconv.FormatInt(e.BlockStart, 10),
			"net_yes":     strconv.Itoa(e.NetYes),
		},
	}
}

// BlockPayeeEnforced is emitted when the coinbase of a new block is checked
// against the active finalized budget's payment schedule.
type BlockPayeeEnforced struct {
	Height  int64
	Matched bool
}

func (BlockPayeeEnforced) EventType() string { return "blockpayee.enforced" }

func (e BlockPayeeEnforced) Event() *types.Event {
	matched := "false"
	if e.Matched {
		matched = "true"
	}
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"height":  strconv.FormatInt(e.Height, 10),
			"matched": matched,
		},
	}
}

// PeerMisbehavior is emitted whenever the gossip layer penalizes a peer for
// a protocol violation.
type PeerMisbehavior struct {
	PeerID string
	Delta  int
	Reason string
}

func (PeerMisbehavior) EventType() string { return "peer.misbehavior" }

func (e PeerMisbehavior) Event() *types.Event {
	return &types.Event{
		Type: e.EventType(),
		Attributes: map[string]string{
			"peer_id": e.PeerID,
			"delta":   strconv.Itoa(e.Delta),
			"reason":  e.Reason,
		},
	}
}
