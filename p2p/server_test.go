package p2p

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mnbudget/crypto"
)

type noopHandler struct{}

func (noopHandler) HandleMessage(msg *Message) error { return nil }

func newTestServer(t *testing.T, listenAddr string, chainID uint64) *Server {
	t.Helper()
	priv, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return NewServer(listenAddr, noopHandler{}, priv, chainID)
}

func TestBudgetEnvelopeRoundTrip(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	msg, err := encodeBudgetMessage("mprop", payload)
	require.NoError(t, err)
	require.Equal(t, MsgTypeBudget, msg.Type)

	command, decoded, err := decodeBudgetMessage(msg)
	require.NoError(t, err)
	require.Equal(t, "mprop", command)
	require.Equal(t, payload, decoded)
}

func TestHandshakeRoundTripEstablishesPeers(t *testing.T) {
	// A real TCP socket pair is used (rather than net.Pipe) because the
	// handshake writes before reading on both sides; net.Pipe's unbuffered,
	// fully synchronous Write would deadlock two simultaneous initiators.
	s1 := newTestServer(t, ":0", 7)
	s2 := newTestServer(t, ":0", 7)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	errs := make(chan error, 2)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errs <- err
			return
		}
		errs <- s1.initPeer(conn)
	}()
	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			errs <- err
			return
		}
		errs <- s2.initPeer(conn)
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("handshake did not complete in time")
		}
	}

	_, ok := s1.peerByID(s2.nodeID)
	require.True(t, ok, "server 1 should have registered server 2 as a peer")
	_, ok = s2.peerByID(s1.nodeID)
	require.True(t, ok, "server 2 should have registered server 1 as a peer")
}

func TestVerifyHandshakeRejectsChainMismatch(t *testing.T) {
	s1 := newTestServer(t, ":0", 1)
	s2 := newTestServer(t, ":0", 2)

	msg, err := s1.buildHandshake()
	require.NoError(t, err)

	_, err = s2.verifyHandshake(msg)
	require.Error(t, err)
}

func TestVerifyHandshakeRejectsTamperedSignature(t *testing.T) {
	s1 := newTestServer(t, ":0", 5)
	s2 := newTestServer(t, ":0", 5)

	msg, err := s1.buildHandshake()
	require.NoError(t, err)
	msg.Signature[0] ^= 0xFF

	_, err = s2.verifyHandshake(msg)
	require.Error(t, err)
}

func TestRegisterPeerRejectsDuplicateAndBanned(t *testing.T) {
	server := newTestServer(t, ":0", 1)
	connA, _ := net.Pipe()
	peer := newPeer("peer-a", connA, bufio.NewReader(connA), server)

	require.NoError(t, server.registerPeer(peer))
	require.Error(t, server.registerPeer(peer), "registering the same peer id twice must fail")

	server.banPeer("peer-b")
	connB, _ := net.Pipe()
	bannedPeer := newPeer("peer-b", connB, bufio.NewReader(connB), server)
	err := server.registerPeer(bannedPeer)
	require.Error(t, err, "a banned peer id must be rejected at registration")
}

func TestAdjustReputationCrossesBanThreshold(t *testing.T) {
	server := newTestServer(t, ":0", 1)
	const id = "peer-c"

	for i := 0; i < 2; i++ {
		server.adjustReputation(id, -malformedPenalty)
	}
	require.False(t, server.isBanned(id), "score should not yet have crossed the ban threshold")

	server.adjustReputation(id, -malformedPenalty)
	require.True(t, server.isBanned(id), "three malformed penalties should cross reputationBanScore")
}

func TestPeerEnqueueReturnsErrQueueFullWhenSaturated(t *testing.T) {
	server := newTestServer(t, ":0", 1)
	conn, _ := net.Pipe()
	peer := newPeer("peer-d", conn, bufio.NewReader(conn), server)

	for i := 0; i < outboundQueueSize; i++ {
		require.NoError(t, peer.Enqueue(&Message{Type: MsgTypeBudget}))
	}
	err := peer.Enqueue(&Message{Type: MsgTypeBudget})
	require.ErrorIs(t, err, errQueueFull)
}
