package budget

import (
	"encoding/hex"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"mnbudget/core/events"
	"mnbudget/core/types"
)

// pendingProposal and pendingFinalized park a proposal or finalized budget
// whose collateral has not yet reached REQUIRED_CONFS.
type pendingProposal struct {
	proposal *Proposal
	firstSeen time.Time
}

type pendingFinalized struct {
	budget    *FinalizedBudget
	firstSeen time.Time
}

// Manager is the engine's registry: seen-set, active sets, orphan vote
// queues, immature queues, and ask-throttle table, plus the tally,
// selection, block-payee, and block-validation entry points. State is
// partitioned across four named mutexes per §5; no operation holds two of
// them concurrently.
type Manager struct {
	params Params
	chain  ChainReader
	dir    MasternodeDirectory
	wallet Wallet
	rand   RandSource
	logger *slog.Logger
	emit   events.Emitter

	collateral *CollateralValidator

	// cs_proposals
	muProposals       sync.Mutex
	proposals         map[[32]byte]*Proposal
	seenProposals     map[[32]byte]bool
	immatureProposals map[[32]byte]*pendingProposal

	// cs_budgets
	muBudgets         sync.Mutex
	finalizedBudgets  map[[32]byte]*FinalizedBudget
	seenFinalized     map[[32]byte]bool
	immatureFinalized map[[32]byte]*pendingFinalized
	submittedCycles   map[int64]bool

	// cs_votes
	muVotes             sync.Mutex
	orphanProposalVotes map[[32]byte][]*Vote
	seenProposalVotes   map[[32]byte]bool

	// cs_finalizedvotes
	muFinalizedVotes     sync.Mutex
	orphanFinalizedVotes map[[32]byte][]*Vote
	seenFinalizedVotes   map[[32]byte]bool

	// ask-throttle: its own narrow lock, not one of the four partitioned
	// maps, since it is consulted from both vote pipelines alike.
	muAsk       sync.Mutex
	askThrottle map[[32]byte]time.Time

	muHeight   sync.Mutex
	bestHeight int64

	ticks      int64
	syncedFlag int32
}

// NewManager constructs an empty Manager wired to its four collaborators.
func NewManager(params Params, chain ChainReader, dir MasternodeDirectory, wallet Wallet, logger *slog.Logger, emit events.Emitter) *Manager {
	if emit == nil {
		emit = events.NoopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		params:               params,
		chain:                chain,
		dir:                  dir,
		wallet:               wallet,
		rand:                 FuncRand(defaultRandIntn),
		logger:               logger,
		emit:                 emit,
		collateral:           NewCollateralValidator(chain, params),
		proposals:            make(map[[32]byte]*Proposal),
		seenProposals:        make(map[[32]byte]bool),
		immatureProposals:    make(map[[32]byte]*pendingProposal),
		finalizedBudgets:     make(map[[32]byte]*FinalizedBudget),
		seenFinalized:        make(map[[32]byte]bool),
		immatureFinalized:    make(map[[32]byte]*pendingFinalized),
		orphanProposalVotes:  make(map[[32]byte][]*Vote),
		seenProposalVotes:    make(map[[32]byte]bool),
		orphanFinalizedVotes: make(map[[32]byte][]*Vote),
		seenFinalizedVotes:   make(map[[32]byte]bool),
		askThrottle:          make(map[[32]byte]time.Time),
		submittedCycles:      make(map[int64]bool),
	}
}

func defaultRandIntn(n int) int { return rand.Intn(n) }

// WithCollateralCache attaches a persistent once-matured record to the
// manager's collateral validator and returns the manager for chaining.
func (m *Manager) WithCollateralCache(cache ConfirmationCache) *Manager {
	m.collateral.WithCache(cache)
	return m
}

// SetRandSource overrides the manager's probabilistic work seam, used by
// tests to force either branch of the auto-vote and sync-reset sampling.
func (m *Manager) SetRandSource(r RandSource) {
	if r != nil {
		m.rand = r
	}
}

// BestHeight returns the last height the orchestrator observed.
func (m *Manager) BestHeight() int64 {
	m.muHeight.Lock()
	defer m.muHeight.Unlock()
	return m.bestHeight
}

func (m *Manager) setBestHeight(h int64) {
	m.muHeight.Lock()
	m.bestHeight = h
	m.muHeight.Unlock()
}

// GetProposal returns the active proposal for hash, if any, matching the
// open-question decision to return an optional rather than panic on an
// absent key.
func (m *Manager) GetProposal(hash [32]byte) (*Proposal, bool) {
	m.muProposals.Lock()
	defer m.muProposals.Unlock()
	p, ok := m.proposals[hash]
	return p, ok
}

// GetFinalizedBudget returns the active finalized budget for hash, if any.
func (m *Manager) GetFinalizedBudget(hash [32]byte) (*FinalizedBudget, bool) {
	m.muBudgets.Lock()
	defer m.muBudgets.Unlock()
	fb, ok := m.finalizedBudgets[hash]
	return fb, ok
}

func (m *Manager) activeProposalsSnapshot() []*Proposal {
	m.muProposals.Lock()
	defer m.muProposals.Unlock()
	out := make([]*Proposal, 0, len(m.proposals))
	for _, p := range m.proposals {
		out = append(out, p)
	}
	return out
}

func (m *Manager) activeFinalizedSnapshot() []*FinalizedBudget {
	m.muBudgets.Lock()
	defer m.muBudgets.Unlock()
	out := make([]*FinalizedBudget, 0, len(m.finalizedBudgets))
	for _, fb := range m.finalizedBudgets {
		out = append(out, fb)
	}
	return out
}

// GetBudget implements §4.5's tally/selection ("get_budget"): derive the
// next cycle [S,E], sort active proposals by descending net-yes (with the
// collateral-txid tiebreak), and greedily accept proposals that are passing
// and fit within the remaining cycle budget.
func (m *Manager) GetBudget(height int64) []*Proposal {
	start, end := m.params.CycleBounds(height)
	cycleBudget := m.params.CycleBudget(start)
	enabled := m.dir.EnabledCount(m.params.MinProtocolVersion)
	now := m.chain.AdjustedTime()

	candidates := m.activeProposalsSnapshot()
	SortProposalsForSelection(candidates)

	var selected []*Proposal
	var spent int64
	for _, p := range candidates {
		if !p.IsPassing(start, end, enabled, now, m.params.EstablishmentWindow) {
			p.SetAllotted(0)
			continue
		}
		if spent+p.Amount > cycleBudget {
			p.SetAllotted(0)
			continue
		}
		spent += p.Amount
		p.SetAllotted(p.Amount)
		selected = append(selected, p)
	}
	return selected
}

// selectionPayments converts GetBudget's proposal selection into the
// Payment triples a finalized budget would carry for the given cycle.
func (m *Manager) selectionPayments(height int64) []Payment {
	selected := m.GetBudget(height)
	payments := make([]Payment, 0, len(selected))
	for _, p := range selected {
		payments = append(payments, Payment{
			ProposalHash: p.Hash,
			PayeeScript:  p.PayeeScript,
			Amount:       p.Amount,
		})
	}
	return payments
}

// bestFinalizedBudget implements "Choosing the finalized budget": among
// active budgets covering height h, the one with the greatest vote count.
// Returns nil, 0 if none cover h.
func (m *Manager) bestFinalizedBudget(h int64) (*FinalizedBudget, int) {
	var best *FinalizedBudget
	var bestVotes int
	for _, fb := range m.activeFinalizedSnapshot() {
		if !fb.Covers(h, m.params.CycleLength) {
			continue
		}
		votes := fb.VoteCount()
		if best == nil || votes > bestVotes {
			best = fb
			bestVotes = votes
		}
	}
	return best, bestVotes
}

// IsBudgetPaymentBlock implements the V* > enabled/20 threshold test.
func (m *Manager) IsBudgetPaymentBlock(h int64) bool {
	_, bestVotes := m.bestFinalizedBudget(h)
	enabled := m.dir.EnabledCount(m.params.MinProtocolVersion)
	return bestVotes > FivePercent(enabled)
}

// FillBlockPayee implements §4.5's fill_block_payee: if h is not a payment
// block, do nothing; else append (PoS) or replace the last output (PoW)
// with the selected finalized budget's i-th payment.
func (m *Manager) FillBlockPayee(tx *types.Transaction, h int64, isPoS bool) bool {
	if !m.IsBudgetPaymentBlock(h) {
		return false
	}
	best, _ := m.bestFinalizedBudget(h)
	if best == nil {
		return false
	}
	i := h - best.StartBlock
	if i < 0 || int(i) >= len(best.Payments) {
		return false
	}
	payment := best.Payments[i]
	out := &types.TxOut{Value: payment.Amount, PkScript: payment.PayeeScript}
	if isPoS {
		tx.TxOut = append(tx.TxOut, out)
	} else if len(tx.TxOut) > 0 {
		tx.TxOut[len(tx.TxOut)-1] = out
	} else {
		tx.TxOut = append(tx.TxOut, out)
	}
	return true
}

// txOutView adapts *types.TxOut to TxOutLike.
type txOutView struct{ out *types.TxOut }

func (v txOutView) Value() int64  { return v.out.Value }
func (v txOutView) Script() []byte { return v.out.PkScript }

// ValidateBlockTransaction implements §4.5's block-transaction validation:
// if h is not a payment block, VoteThreshold; else scan active budgets within
// the ±10% acceptance band around the leader and accept if any matches.
func (m *Manager) ValidateBlockTransaction(tx *types.Transaction, h int64) BlockTxResult {
	_, bestVotes := m.bestFinalizedBudget(h)
	enabled := m.dir.EnabledCount(m.params.MinProtocolVersion)
	band := FivePercent(enabled)
	if bestVotes <= band {
		return TxVoteThreshold
	}
	threshold := bestVotes - 2*band

	outputs := make([]TxOutLike, len(tx.TxOut))
	for i, out := range tx.TxOut {
		outputs[i] = txOutView{out: out}
	}

	var sawCandidate bool
	for _, fb := range m.activeFinalizedSnapshot() {
		if !fb.Covers(h, m.params.CycleLength) {
			continue
		}
		if fb.VoteCount() <= threshold {
			continue
		}
		sawCandidate = true
		switch fb.CheckBlockTransaction(outputs, h) {
		case TxValid:
			return TxValid
		case TxDoublePayment:
			return TxDoublePayment
		}
	}
	if !sawCandidate {
		return TxVoteThreshold
	}
	return TxInvalid
}

// CheckAndRemove implements §4.5's periodic maintenance: revalidate each
// active item at height, drop those that fail, and run auto-check on
// finalized budgets.
func (m *Manager) CheckAndRemove(height int64) {
	enabled := m.dir.EnabledCount(m.params.MinProtocolVersion)

	m.muProposals.Lock()
	for hash, p := range m.proposals {
		p.RefreshAllVotes(m.dir)
		if !p.UpdateValid(height, enabled, m.revalidateProposalCollateral(p)) {
			delete(m.proposals, hash)
			m.logger.Info("dropped proposal on periodic check", slog.String("hash", hexHash(hash)))
		}
	}
	m.muProposals.Unlock()

	cycleStart, _ := m.params.CycleBounds(height)
	var autoVote []*FinalizedBudget
	m.muBudgets.Lock()
	for hash, fb := range m.finalizedBudgets {
		fb.RefreshAllVotes(m.dir)
		cycleBudget := m.params.CycleBudget(fb.StartBlock)
		err := fb.Validate(m.params.CycleLength, cycleBudget, cycleStart, m.revalidateFinalizedCollateral(fb))
		if err != nil {
			delete(m.finalizedBudgets, hash)
			m.logger.Info("dropped finalized budget on periodic check", slog.String("hash", hexHash(hash)), slog.String("reason", err.Error()))
			continue
		}
		if m.params.Mode == ModeAuto {
			autoVote = append(autoVote, fb)
		}
	}
	m.muBudgets.Unlock()

	// Auto-vote recomputes the proposal selection under muProposals, so it
	// runs only after muBudgets is released.
	for _, fb := range autoVote {
		m.runAutoVote(fb, height)
	}
}

func (m *Manager) revalidateProposalCollateral(p *Proposal) func() error {
	return func() error {
		_, err := m.collateral.Validate(p.CollateralTxid, p.Hash, false)
		return err
	}
}

func (m *Manager) revalidateFinalizedCollateral(fb *FinalizedBudget) func() error {
	return func() error {
		_, err := m.collateral.Validate(fb.CollateralTxid, fb.Hash, true)
		return err
	}
}

func (m *Manager) runAutoVote(fb *FinalizedBudget, height int64) {
	local, ok := m.wallet.LocalOutpoint()
	if !ok {
		return
	}
	selection := m.selectionPayments(height)
	err := fb.AutoCheckAndVote(m.rand, selection, func() error {
		v := NewVote(local, fb.Hash, VoteYes, m.chain.AdjustedTime())
		if err := Sign(v, false, m.wallet); err != nil {
			return err
		}
		return fb.AddOrUpdateVote(v, m.chain.AdjustedTime(), m.params.MinUpdateInterval)
	})
	if err != nil {
		m.logger.Warn("auto-vote failed", slog.String("budget", hexHash(fb.Hash)), slog.Any("error", err))
	}
}

func hexHash(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
