package main

import (
	"sync"

	"mnbudget/p2p"
)

// handlerSlot lets the daemon build the P2P server before the budget
// manager and transport exist yet (the handler and the transport each need
// the other's counterpart: the handler dispatches through the transport,
// and the transport is built from the already-running server). The server
// is constructed against this indirection and the real handler is swapped
// in once available, mirroring the teacher's practice of wiring
// interface-typed collaborators after their concrete values are ready.
type handlerSlot struct {
	mu sync.RWMutex
	h  p2p.MessageHandler
}

func (s *handlerSlot) set(h p2p.MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h = h
}

func (s *handlerSlot) HandleMessage(msg *p2p.Message) error {
	s.mu.RLock()
	h := s.h
	s.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h.HandleMessage(msg)
}

func (s *handlerSlot) HandleMessageFrom(peerID string, msg *p2p.Message) error {
	s.mu.RLock()
	h := s.h
	s.mu.RUnlock()
	if h == nil {
		return nil
	}
	if pah, ok := h.(p2p.PeerAwareHandler); ok {
		return pah.HandleMessageFrom(peerID, msg)
	}
	return h.HandleMessage(msg)
}
