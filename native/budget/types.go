package budget

import (
	"sync"
	"time"

	"mnbudget/core/types"
)

// VoteDirection is a masternode's signal on a proposal. Finalized-budget
// votes carry no direction; submitting one is itself a "yes".
type VoteDirection int32

const (
	VoteAbstain VoteDirection = iota
	VoteYes
	VoteNo
)

func (d VoteDirection) Valid() bool {
	return d == VoteAbstain || d == VoteYes || d == VoteNo
}

// Vote is a signed endorsement from a masternode of a proposal or a
// finalized budget. For finalized-budget votes, Direction is always VoteYes
// and ignored by callers.
type Vote struct {
	VoterOutpoint types.Outpoint
	TargetHash    [32]byte
	Direction     VoteDirection
	Time          time.Time
	Signature     []byte

	// valid reflects whether VoterOutpoint currently resolves in the
	// masternode directory; it is recomputed, not persisted.
	valid bool

	// synced marks whether this vote has already been streamed to every peer
	// during the current seen-set epoch; it is runtime gossip bookkeeping,
	// not persisted, and is cleared whenever the epoch resets (§4.7 step 4).
	synced bool
}

// Payment is one (proposal, payee, amount) triple within a finalized
// budget's payment schedule, covering one superblock of its cycle.
type Payment struct {
	ProposalHash [32]byte
	PayeeScript  []byte
	Amount       int64
}

// Proposal is an immutable spending proposal plus its mutable vote set and
// derived validity.
type Proposal struct {
	Hash           [32]byte
	Name           string
	URL            string
	PayeeScript    []byte
	Amount         int64
	StartBlock     int64
	EndBlock       int64
	PaymentCount   uint32
	CollateralTxid [32]byte
	CreatedTime    time.Time

	mu        sync.RWMutex
	votes     map[[32]byte]*Vote // keyed by voter outpoint hash (double-SHA256 of outpoint bytes)
	valid     bool
	invalidReason string
	allotted  int64
}

// FinalizedBudget is a complete per-block payout plan for one cycle, plus
// its own collateral and vote bookkeeping.
type FinalizedBudget struct {
	Hash           [32]byte
	Name           string // always "main"
	StartBlock     int64
	Payments       []Payment
	CollateralTxid [32]byte
	CreatedTime    time.Time

	mu             sync.RWMutex
	votes          map[[32]byte]*Vote
	autoChecked    bool
	paymentHistory map[[32]byte]int64 // proposalHash -> height paid, within current cycle
}

// NewProposal constructs a Proposal with empty vote bookkeeping and computes
// its hash from the canonical immutable fields.
func NewProposal(name, url string, payeeScript []byte, amount, startBlock int64, paymentCount uint32, cycleLength int64, collateralTxid [32]byte, created time.Time) *Proposal {
	p := &Proposal{
		Name:           name,
		URL:            url,
		PayeeScript:    payeeScript,
		Amount:         amount,
		StartBlock:     startBlock,
		PaymentCount:   paymentCount,
		CollateralTxid: collateralTxid,
		CreatedTime:    created,
		votes:          make(map[[32]byte]*Vote),
	}
	p.EndBlock = endBlockFor(startBlock, cycleLength, paymentCount)
	p.Hash = HashProposal(p)
	return p
}

// endBlockFor implements the invariant end_block = floor(start/C)*C +
// (C+1)*payment_count.
func endBlockFor(startBlock, cycleLength int64, paymentCount uint32) int64 {
	if cycleLength <= 0 {
		cycleLength = 1
	}
	return (startBlock/cycleLength)*cycleLength + (cycleLength+1)*int64(paymentCount)
}

// NewFinalizedBudget constructs a FinalizedBudget and computes its hash.
func NewFinalizedBudget(startBlock int64, payments []Payment, collateralTxid [32]byte, created time.Time) *FinalizedBudget {
	fb := &FinalizedBudget{
		Name:           "main",
		StartBlock:     startBlock,
		Payments:       payments,
		CollateralTxid: collateralTxid,
		CreatedTime:    created,
		votes:          make(map[[32]byte]*Vote),
		paymentHistory: make(map[[32]byte]int64),
	}
	fb.Hash = HashFinalizedBudget(fb)
	return fb
}
