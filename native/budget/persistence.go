package budget

import (
	"bytes"
	"encoding/binary"
	"os"
	"time"

	"mnbudget/core/types"
)

// persistMagic is the fixed header every snapshot file begins with, per §6.
const persistMagic = "MasternodeBudget"

// NetworkTag distinguishes mainnet/testnet/regtest snapshots so a file from
// one network is never mistakenly loaded into another.
type NetworkTag [4]byte

var (
	NetworkMainnet = NetworkTag{'m', 'a', 'i', 'n'}
	NetworkTestnet = NetworkTag{'t', 'e', 's', 't'}
	NetworkRegtest = NetworkTag{'r', 'e', 'g', 't'}
)

// Save writes a full snapshot of the manager's persisted state to path:
// magic (length-prefixed), network tag, serialized state, trailing 32-byte
// content hash of everything preceding it.
func (m *Manager) Save(path string, network NetworkTag) error {
	var body bytes.Buffer
	writeBytes(&body, []byte(persistMagic))
	body.Write(network[:])

	if err := m.encodeState(&body); err != nil {
		return wrapErr(KindPersistenceError, "encode state", err)
	}

	sum := types.DoubleSHA256(body.Bytes())

	f, err := os.Create(path)
	if err != nil {
		return wrapErr(KindPersistenceError, "open file for write", err)
	}
	defer f.Close()

	if _, err := f.Write(body.Bytes()); err != nil {
		return wrapErr(KindPersistenceError, "write body", err)
	}
	if _, err := f.Write(sum[:]); err != nil {
		return wrapErr(KindPersistenceError, "write content hash", err)
	}
	return nil
}

// Load reads a snapshot previously written by Save, validating the content
// hash, magic string, and network tag before replacing the manager's
// persisted state. A hash mismatch, magic mismatch, or network mismatch
// refuses the load entirely; a field-decode failure clears in-memory state
// and reports KindPersistenceError.
func (m *Manager) Load(path string, network NetworkTag) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return wrapErr(KindPersistenceError, "read file", err)
	}
	if len(raw) < 32 {
		return newErr(KindPersistenceError, "file too short to contain a content hash")
	}

	body := raw[:len(raw)-32]
	wantSum := raw[len(raw)-32:]
	gotSum := types.DoubleSHA256(body)
	if !bytes.Equal(gotSum[:], wantSum) {
		return newErr(KindPersistenceError, "content hash mismatch")
	}

	r := bytes.NewReader(body)
	magic, err := readBytes(r)
	if err != nil || string(magic) != persistMagic {
		return newErr(KindPersistenceError, "magic header mismatch")
	}

	var tag NetworkTag
	if _, err := readFull(r, tag[:]); err != nil {
		return wrapErr(KindPersistenceError, "read network tag", err)
	}
	if tag != network {
		return newErr(KindPersistenceError, "network tag mismatch")
	}

	if err := m.decodeState(r); err != nil {
		m.clearState()
		return wrapErr(KindPersistenceError, "decode state", err)
	}
	return nil
}

// encodeState serializes the persisted fields of the manager per §6: the
// active proposal and finalized-budget sets and their votes. Transient maps (the
// seen-sets, orphan queues, ask-throttle, and payment_history) are
// deliberately NOT persisted; §6 documents them as resetting on reload.
func (m *Manager) encodeState(w *bytes.Buffer) error {
	m.muProposals.Lock()
	proposals := make([]*Proposal, 0, len(m.proposals))
	for _, p := range m.proposals {
		proposals = append(proposals, p)
	}
	m.muProposals.Unlock()

	m.muBudgets.Lock()
	budgets := make([]*FinalizedBudget, 0, len(m.finalizedBudgets))
	for _, fb := range m.finalizedBudgets {
		budgets = append(budgets, fb)
	}
	m.muBudgets.Unlock()

	writeUint32(w, uint32(len(proposals)))
	for _, p := range proposals {
		encodeProposal(w, p)
	}

	writeUint32(w, uint32(len(budgets)))
	for _, fb := range budgets {
		encodeFinalizedBudget(w, fb)
	}
	return nil
}

// EncodeProposalWire serializes a single proposal (including its current
// votes) using the same canonical encoding Save uses, for relay over the
// wire as a WireMessage payload.
func EncodeProposalWire(p *Proposal) []byte {
	var buf bytes.Buffer
	encodeProposal(&buf, p)
	return buf.Bytes()
}

// DecodeProposalWire parses a payload produced by EncodeProposalWire.
func DecodeProposalWire(payload []byte) (*Proposal, error) {
	return decodeProposal(bytes.NewReader(payload))
}

// EncodeFinalizedBudgetWire mirrors EncodeProposalWire for finalized budgets.
func EncodeFinalizedBudgetWire(fb *FinalizedBudget) []byte {
	var buf bytes.Buffer
	encodeFinalizedBudget(&buf, fb)
	return buf.Bytes()
}

// DecodeFinalizedBudgetWire parses a payload produced by
// EncodeFinalizedBudgetWire.
func DecodeFinalizedBudgetWire(payload []byte) (*FinalizedBudget, error) {
	return decodeFinalizedBudget(bytes.NewReader(payload))
}

// EncodeVoteWire serializes a single vote for relay.
func EncodeVoteWire(v *Vote) []byte {
	var buf bytes.Buffer
	encodeVote(&buf, v)
	return buf.Bytes()
}

// DecodeVoteWire parses a payload produced by EncodeVoteWire.
func DecodeVoteWire(payload []byte) (*Vote, error) {
	return decodeVote(bytes.NewReader(payload))
}

func encodeProposal(w *bytes.Buffer, p *Proposal) {
	w.Write(p.Hash[:])
	writeString(w, p.Name)
	writeString(w, p.URL)
	writeBytes(w, p.PayeeScript)
	writeInt64(w, p.Amount)
	writeInt64(w, p.StartBlock)
	writeInt64(w, p.EndBlock)
	writeUint32(w, p.PaymentCount)
	w.Write(p.CollateralTxid[:])
	writeInt64(w, p.CreatedTime.Unix())

	votes := p.snapshotVotes()
	writeUint32(w, uint32(len(votes)))
	for _, v := range votes {
		encodeVote(w, v)
	}
}

func encodeFinalizedBudget(w *bytes.Buffer, fb *FinalizedBudget) {
	w.Write(fb.Hash[:])
	writeString(w, fb.Name)
	writeInt64(w, fb.StartBlock)
	w.Write(fb.CollateralTxid[:])
	writeInt64(w, fb.CreatedTime.Unix())

	writeUint32(w, uint32(len(fb.Payments)))
	for _, pay := range fb.Payments {
		w.Write(pay.ProposalHash[:])
		writeBytes(w, pay.PayeeScript)
		writeInt64(w, pay.Amount)
	}

	votes := fb.snapshotVotes()
	writeUint32(w, uint32(len(votes)))
	for _, v := range votes {
		encodeVote(w, v)
	}
}

func encodeVote(w *bytes.Buffer, v *Vote) {
	w.Write(v.VoterOutpoint.Hash[:])
	writeUint32(w, v.VoterOutpoint.Index)
	w.Write(v.TargetHash[:])
	w.WriteByte(byte(v.Direction))
	writeInt64(w, v.Time.Unix())
	writeBytes(w, v.Signature)
}

// decodeState replaces the manager's active sets from a snapshot body.
// Transient maps are reinitialized empty, matching the documented reset.
func (m *Manager) decodeState(r *bytes.Reader) error {
	proposalCount, err := readUint32(r)
	if err != nil {
		return err
	}
	proposals := make(map[[32]byte]*Proposal, proposalCount)
	for i := uint32(0); i < proposalCount; i++ {
		p, err := decodeProposal(r)
		if err != nil {
			return err
		}
		proposals[p.Hash] = p
	}

	budgetCount, err := readUint32(r)
	if err != nil {
		return err
	}
	budgets := make(map[[32]byte]*FinalizedBudget, budgetCount)
	for i := uint32(0); i < budgetCount; i++ {
		fb, err := decodeFinalizedBudget(r)
		if err != nil {
			return err
		}
		budgets[fb.Hash] = fb
	}

	m.muProposals.Lock()
	m.proposals = proposals
	m.seenProposals = make(map[[32]byte]bool, len(proposals))
	for h := range proposals {
		m.seenProposals[h] = true
	}
	m.immatureProposals = make(map[[32]byte]*pendingProposal)
	m.muProposals.Unlock()

	m.muBudgets.Lock()
	m.finalizedBudgets = budgets
	m.seenFinalized = make(map[[32]byte]bool, len(budgets))
	for h := range budgets {
		m.seenFinalized[h] = true
	}
	m.immatureFinalized = make(map[[32]byte]*pendingFinalized)
	m.submittedCycles = make(map[int64]bool)
	m.muBudgets.Unlock()

	m.muVotes.Lock()
	m.orphanProposalVotes = make(map[[32]byte][]*Vote)
	m.seenProposalVotes = make(map[[32]byte]bool)
	m.muVotes.Unlock()

	m.muFinalizedVotes.Lock()
	m.orphanFinalizedVotes = make(map[[32]byte][]*Vote)
	m.seenFinalizedVotes = make(map[[32]byte]bool)
	m.muFinalizedVotes.Unlock()

	m.muAsk.Lock()
	m.askThrottle = make(map[[32]byte]time.Time)
	m.muAsk.Unlock()

	return nil
}

func decodeProposal(r *bytes.Reader) (*Proposal, error) {
	p := &Proposal{}
	if _, err := readFull(r, p.Hash[:]); err != nil {
		return nil, err
	}
	var err error
	if p.Name, err = readString(r); err != nil {
		return nil, err
	}
	if p.URL, err = readString(r); err != nil {
		return nil, err
	}
	if p.PayeeScript, err = readBytes(r); err != nil {
		return nil, err
	}
	if p.Amount, err = readInt64(r); err != nil {
		return nil, err
	}
	if p.StartBlock, err = readInt64(r); err != nil {
		return nil, err
	}
	if p.EndBlock, err = readInt64(r); err != nil {
		return nil, err
	}
	if p.PaymentCount, err = readUint32(r); err != nil {
		return nil, err
	}
	if _, err := readFull(r, p.CollateralTxid[:]); err != nil {
		return nil, err
	}
	created, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	p.CreatedTime = unixTime(created)

	voteCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	p.restoreVotes(make(map[[32]byte]*Vote, voteCount))
	for i := uint32(0); i < voteCount; i++ {
		v, err := decodeVote(r)
		if err != nil {
			return nil, err
		}
		p.putVote(v)
	}
	return p, nil
}

func decodeFinalizedBudget(r *bytes.Reader) (*FinalizedBudget, error) {
	fb := &FinalizedBudget{paymentHistory: make(map[[32]byte]int64)}
	if _, err := readFull(r, fb.Hash[:]); err != nil {
		return nil, err
	}
	var err error
	if fb.Name, err = readString(r); err != nil {
		return nil, err
	}
	if fb.StartBlock, err = readInt64(r); err != nil {
		return nil, err
	}
	if _, err := readFull(r, fb.CollateralTxid[:]); err != nil {
		return nil, err
	}
	created, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	fb.CreatedTime = unixTime(created)

	paymentCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fb.Payments = make([]Payment, paymentCount)
	for i := uint32(0); i < paymentCount; i++ {
		if _, err := readFull(r, fb.Payments[i].ProposalHash[:]); err != nil {
			return nil, err
		}
		if fb.Payments[i].PayeeScript, err = readBytes(r); err != nil {
			return nil, err
		}
		if fb.Payments[i].Amount, err = readInt64(r); err != nil {
			return nil, err
		}
	}

	voteCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fb.restoreVotes(make(map[[32]byte]*Vote, voteCount))
	for i := uint32(0); i < voteCount; i++ {
		v, err := decodeVote(r)
		if err != nil {
			return nil, err
		}
		fb.putVote(v)
	}
	return fb, nil
}

func decodeVote(r *bytes.Reader) (*Vote, error) {
	v := &Vote{}
	if _, err := readFull(r, v.VoterOutpoint.Hash[:]); err != nil {
		return nil, err
	}
	idx, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	v.VoterOutpoint.Index = idx

	if _, err := readFull(r, v.TargetHash[:]); err != nil {
		return nil, err
	}
	dirByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	v.Direction = VoteDirection(dirByte)

	when, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	v.Time = unixTime(when)

	if v.Signature, err = readBytes(r); err != nil {
		return nil, err
	}
	return v, nil
}

// clearState drops all in-memory registries, per §6's field-decode-failure
// policy: the engine must not be left holding a half-applied snapshot.
func (m *Manager) clearState() {
	m.muProposals.Lock()
	m.proposals = make(map[[32]byte]*Proposal)
	m.seenProposals = make(map[[32]byte]bool)
	m.immatureProposals = make(map[[32]byte]*pendingProposal)
	m.muProposals.Unlock()

	m.muBudgets.Lock()
	m.finalizedBudgets = make(map[[32]byte]*FinalizedBudget)
	m.seenFinalized = make(map[[32]byte]bool)
	m.immatureFinalized = make(map[[32]byte]*pendingFinalized)
	m.submittedCycles = make(map[int64]bool)
	m.muBudgets.Unlock()
}

// --- small binary-codec helpers shared with hashing.go's canonical writers ---

func readUint32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var buf [8]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// readBytes/readString mirror writeBytes/writeString's varint-length framing.
func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		read, err := r.Read(buf[n:])
		n += read
		if err != nil {
			return n, err
		}
		if read == 0 {
			return n, os.ErrClosed
		}
	}
	return n, nil
}
