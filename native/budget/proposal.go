package budget

import (
	"bytes"
	"sort"
	"time"

	"mnbudget/core/types"
)

// AddOrUpdateVote implements §4.2's add_or_update_vote: rejects if v.Time is
// not strictly after the existing vote, if the update interval is under the
// configured floor, or if v.Time is more than an hour ahead of now. Accepted
// votes replace any prior vote from the same voter (testable property 1).
func (p *Proposal) AddOrUpdateVote(v *Vote, now time.Time, minUpdateInterval time.Duration) error {
	if v.Time.After(now.Add(time.Hour)) {
		return newErr(KindRateLimited, "vote timestamp too far in the future")
	}
	key := OutpointKey(v.VoterOutpoint)

	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.votes[key]
	if ok {
		if !v.Time.After(existing.Time) {
			return newErr(KindRateLimited, "vote time does not advance prior vote")
		}
		if v.Time.Sub(existing.Time) < minUpdateInterval {
			return newErr(KindRateLimited, "vote arrived before minimum update interval")
		}
	}
	p.votes[key] = v
	return nil
}

// UpdateValid implements update_valid(height): sets and returns validity
// based on heavy-downvote status, well-formedness, expiry, and collateral
// (collateral is assumed already checked by the caller at insertion time and
// is re-verified only when revalidate is non-nil).
func (p *Proposal) UpdateValid(height int64, enabledCount int, revalidateCollateral func() error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isHeavilyDownvotedLocked(enabledCount) {
		p.valid = false
		p.invalidReason = "heavily downvoted"
		return false
	}
	if !p.wellFormedLocked() {
		p.valid = false
		p.invalidReason = "malformed"
		return false
	}
	if p.EndBlock < height {
		p.valid = false
		p.invalidReason = "expired"
		return false
	}
	if revalidateCollateral != nil {
		if err := revalidateCollateral(); err != nil {
			p.valid = false
			p.invalidReason = err.Error()
			return false
		}
	}
	p.valid = true
	p.invalidReason = ""
	return true
}

func (p *Proposal) wellFormedLocked() bool {
	if p.Amount < 10 || p.Name == "" {
		return false
	}
	if p.EndBlock < p.StartBlock {
		return false
	}
	if !types.IsP2PKHScript(p.PayeeScript) {
		return false
	}
	return true
}

// Valid reports the most recently computed validity flag and reason.
func (p *Proposal) Valid() (bool, string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.valid, p.invalidReason
}

// Established reports whether the proposal has cleared the anti-spam
// establishment window as of now.
func (p *Proposal) Established(now time.Time, window time.Duration) bool {
	return !p.CreatedTime.Add(window).After(now)
}

func (p *Proposal) tallyLocked() (yes, no, abstain int) {
	for _, v := range p.votes {
		if !v.valid {
			continue
		}
		switch v.Direction {
		case VoteYes:
			yes++
		case VoteNo:
			no++
		default:
			abstain++
		}
	}
	return
}

// Yeas, Nays, and Abstains count currently-valid votes by direction.
func (p *Proposal) Yeas() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	yes, _, _ := p.tallyLocked()
	return yes
}

func (p *Proposal) Nays() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, no, _ := p.tallyLocked()
	return no
}

func (p *Proposal) Abstains() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, _, abstain := p.tallyLocked()
	return abstain
}

func (p *Proposal) isHeavilyDownvotedLocked(enabledCount int) bool {
	yes, no, _ := p.tallyLocked()
	return no-yes > PassMargin(enabledCount)
}

// IsHeavilyDownvoted implements invariant 6.
func (p *Proposal) IsHeavilyDownvoted(enabledCount int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isHeavilyDownvotedLocked(enabledCount)
}

// IsPassing implements invariant 5 / §4.2 is_passing: valid, covers the
// cycle, net-yes exceeds the pass margin, and established.
func (p *Proposal) IsPassing(cycleStart, cycleEnd int64, enabledCount int, now time.Time, window time.Duration) bool {
	p.mu.RLock()
	valid := p.valid
	p.mu.RUnlock()
	if !valid {
		return false
	}
	if p.StartBlock > cycleStart || p.EndBlock < cycleEnd {
		return false
	}
	yes, no, _ := func() (int, int, int) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.tallyLocked()
	}()
	if yes-no <= PassMargin(enabledCount) {
		return false
	}
	return p.Established(now, window)
}

// RefreshAllVotes recomputes validity for every stored vote against the
// current masternode directory, used by periodic maintenance.
func (p *Proposal) RefreshAllVotes(dir MasternodeDirectory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.votes {
		RefreshValidity(v, dir)
	}
}

// SetAllotted records this tally's selected amount (recomputed, not
// persisted).
func (p *Proposal) SetAllotted(amount int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allotted = amount
}

func (p *Proposal) Allotted() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.allotted
}

func (p *Proposal) netYes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	yes, no, _ := p.tallyLocked()
	return yes - no
}

// snapshotVotes returns the current vote set for serialization.
func (p *Proposal) snapshotVotes() []*Vote {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Vote, 0, len(p.votes))
	for _, v := range p.votes {
		out = append(out, v)
	}
	return out
}

// restoreVotes installs an empty vote map on a proposal being decoded from a
// snapshot, before putVote populates it.
func (p *Proposal) restoreVotes(votes map[[32]byte]*Vote) {
	p.mu.Lock()
	p.votes = votes
	p.mu.Unlock()
}

// votesForSync returns the votes to stream during a gossip sync round: every
// vote on a full sync, or only those not yet marked synced on a partial one,
// per §4.6. Each returned vote is marked synced before being handed back so
// a later partial round does not resend it.
func (p *Proposal) votesForSync(partial bool) []*Vote {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Vote, 0, len(p.votes))
	for _, v := range p.votes {
		if partial && v.synced {
			continue
		}
		v.synced = true
		out = append(out, v)
	}
	return out
}

// resetVoteSyncFlags clears every vote's synced flag, forcing the next
// partial sync round to resend all of them (§4.7 step 4).
func (p *Proposal) resetVoteSyncFlags() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.votes {
		v.synced = false
	}
}

// putVote inserts a decoded vote directly, bypassing add_or_update_vote's
// rate checks since a snapshot's votes were already accepted once.
func (p *Proposal) putVote(v *Vote) {
	p.mu.Lock()
	p.votes[OutpointKey(v.VoterOutpoint)] = v
	p.mu.Unlock()
}

// SortProposalsForSelection orders proposals by descending net-yes votes,
// breaking ties by the greater collateral txid (total order), matching
// §4.2's sort order and the open-question decision to preserve this exact
// tiebreak.
func SortProposalsForSelection(proposals []*Proposal) {
	sort.SliceStable(proposals, func(i, j int) bool {
		ni, nj := proposals[i].netYes(), proposals[j].netYes()
		if ni != nj {
			return ni > nj
		}
		return bytes.Compare(proposals[i].CollateralTxid[:], proposals[j].CollateralTxid[:]) > 0
	})
}
