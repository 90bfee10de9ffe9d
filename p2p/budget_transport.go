package p2p

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mnbudget/native/budget"
)

// askBurst and askRatePerSec bound the outbound mnvs ask rate across all
// peers, independent of the engine's own per-target ask-throttle window —
// this is a transport-level guard against a misbehaving or over-eager local
// engine flooding the wire, not a substitute for the per-target throttle.
const (
	askBurst      = 8
	askRatePerSec = 4
)

// BudgetTransport adapts *Server to budget.P2PTransport/LivePeerLister. The
// engine never frames, addresses, or bans directly; it only calls this
// adapter, which speaks the JSON envelope defined in protocol.go and scores
// peers through the server's ReputationManager.
type BudgetTransport struct {
	server     *Server
	logger     *slog.Logger
	askLimiter *rate.Limiter
}

// NewBudgetTransport wraps a running server for use by a budget.Manager.
// logger may be nil, in which case transport events are not logged.
func NewBudgetTransport(s *Server, logger *slog.Logger) *BudgetTransport {
	return &BudgetTransport{
		server:     s,
		logger:     logger,
		askLimiter: rate.NewLimiter(rate.Limit(askRatePerSec), askBurst),
	}
}

// byPeerID is a bare PeerHandle constructed from a node ID string, for
// inbound messages where the only identity the read loop gives us is the
// connection's node ID rather than a live *Peer value.
type byPeerID string

func (p byPeerID) ID() string { return string(p) }

func (t *BudgetTransport) Send(peer budget.PeerHandle, msg *budget.WireMessage) error {
	if peer == nil {
		return fmt.Errorf("nil peer handle")
	}
	p, ok := t.server.peerByID(peer.ID())
	if !ok {
		return fmt.Errorf("peer %s not connected", peer.ID())
	}
	envelope, err := encodeBudgetMessage(msg.Command, msg.Payload)
	if err != nil {
		return err
	}
	t.server.metrics.recordGossip(msg.Command)
	return p.Enqueue(envelope)
}

func (t *BudgetTransport) Broadcast(msg *budget.WireMessage) error {
	envelope, err := encodeBudgetMessage(msg.Command, msg.Payload)
	if err != nil {
		return err
	}
	t.server.metrics.recordGossip(msg.Command)
	return t.server.Broadcast(envelope)
}

// Misbehaving applies delta as a reputation penalty to the offending peer and
// disconnects it, with a ban, only when the resulting score crosses the ban
// threshold.
func (t *BudgetTransport) Misbehaving(peer budget.PeerHandle, delta int, reason string) {
	if peer == nil {
		return
	}
	status := t.server.adjustReputation(peer.ID(), -delta)
	if t.logger != nil {
		t.logger.Warn("peer misbehavior", "peer", peer.ID(), "delta", delta, "reason", reason, "score", status.Score, "banned", status.Banned)
	}
	p, ok := t.server.peerByID(peer.ID())
	if !ok {
		return
	}
	if status.Banned {
		p.terminate(true, fmt.Errorf("%s", reason))
	}
}

// Ask requests the target item from peer via an mnvs sync request carrying
// the target hash as its payload. A transport-wide token bucket bounds the
// outbound ask rate; requests beyond it are dropped rather than queued. The
// engine records its per-target ask-throttle entry before calling Ask, so a
// dropped ask is not repeated until that target's throttle window lapses.
func (t *BudgetTransport) Ask(peer budget.PeerHandle, targetHash [32]byte) {
	if !t.askLimiter.Allow() {
		return
	}
	requestID := uuid.NewString()
	if t.logger != nil && peer != nil {
		t.logger.Debug("asking peer for target", "peer", peer.ID(), "target", fmt.Sprintf("%x", targetHash), "request_id", requestID)
	}
	_ = t.Send(peer, &budget.WireMessage{Command: budget.CmdVoteSync, Payload: targetHash[:]})
}

// LivePeers implements budget.LivePeerLister.
func (t *BudgetTransport) LivePeers() []budget.PeerHandle {
	peers := t.server.connectedPeers()
	out := make([]budget.PeerHandle, 0, len(peers))
	for _, p := range peers {
		out = append(out, p)
	}
	return out
}

// BudgetHandler dispatches inbound MsgTypeBudget envelopes to a
// budget.Manager. It implements p2p.MessageHandler and p2p.PeerAwareHandler.
type BudgetHandler struct {
	manager   *budget.Manager
	transport *BudgetTransport

	mu             sync.Mutex
	fullSyncServed map[string]bool
}

// NewBudgetHandler builds a dispatcher bound to manager and transport.
func NewBudgetHandler(manager *budget.Manager, transport *BudgetTransport) *BudgetHandler {
	return &BudgetHandler{
		manager:        manager,
		transport:      transport,
		fullSyncServed: make(map[string]bool),
	}
}

// HandleMessage satisfies p2p.MessageHandler for callers that don't know the
// sending peer; HandleMessageFrom is preferred whenever the transport can
// supply one (see Peer.readLoop).
func (h *BudgetHandler) HandleMessage(msg *Message) error {
	return h.handle("", msg)
}

// HandleMessageFrom satisfies p2p.PeerAwareHandler.
func (h *BudgetHandler) HandleMessageFrom(peerID string, msg *Message) error {
	return h.handle(peerID, msg)
}

func (h *BudgetHandler) handle(peerID string, msg *Message) error {
	if msg.Type != MsgTypeBudget {
		return nil
	}
	command, payload, err := decodeBudgetMessage(msg)
	if err != nil {
		return fmt.Errorf("decode budget message: %w", err)
	}

	var peer budget.PeerHandle
	if peerID != "" {
		peer = byPeerID(peerID)
	}

	switch command {
	case budget.CmdProposal:
		p, err := budget.DecodeProposalWire(payload)
		if err != nil {
			return err
		}
		return h.manager.IngestProposal(p, h.transport, peer)
	case budget.CmdFinalizedBudget:
		fb, err := budget.DecodeFinalizedBudgetWire(payload)
		if err != nil {
			return err
		}
		return h.manager.IngestFinalizedBudget(fb, h.transport, peer)
	case budget.CmdProposalVote:
		v, err := budget.DecodeVoteWire(payload)
		if err != nil {
			return err
		}
		return h.manager.IngestProposalVote(v, h.transport, peer)
	case budget.CmdFinalizedBudgetVote:
		v, err := budget.DecodeVoteWire(payload)
		if err != nil {
			return err
		}
		return h.manager.IngestFinalizedBudgetVote(v, h.transport, peer)
	case budget.CmdVoteSync:
		var target [32]byte
		copy(target[:], payload)
		h.manager.HandleVoteSyncRequest(peer, h.transport, target, h.wasFullSyncServed, h.markFullSyncServed)
		return nil
	default:
		return fmt.Errorf("unknown budget command %q", command)
	}
}

func (h *BudgetHandler) wasFullSyncServed(peer budget.PeerHandle) bool {
	if peer == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fullSyncServed[peer.ID()]
}

func (h *BudgetHandler) markFullSyncServed(peer budget.PeerHandle) {
	if peer == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fullSyncServed[peer.ID()] = true
}
