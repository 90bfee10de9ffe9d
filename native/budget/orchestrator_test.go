package budget

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedPeerLister struct {
	peers []PeerHandle
}

func (l fixedPeerLister) LivePeers() []PeerHandle { return l.peers }

// OnNewBlock must push a partial sync to every live peer on every heavy-work
// tick once the node is synced, independent of the rare probabilistic
// seen-set reset (§4.7 step 4).
func TestOnNewBlockAlwaysPushesPartialSyncToLivePeers(t *testing.T) {
	chain := newFakeChain()
	dir := newFakeDir()
	dir.setEnabled(10)
	m := newTestManager(chain, dir, nil)
	m.SetSynced(true)

	transport := newFakeTransport()
	peers := fixedPeerLister{peers: []PeerHandle{fakePeer("peer-1")}}

	for i := int64(1); i <= heavyWorkInterval; i++ {
		m.OnNewBlock(i, transport, peers)
	}

	sent := transport.sent["peer-1"]
	require.NotEmpty(t, sent, "a live peer must receive a partial sync on every heavy-work tick, not just on the rare reset tick")
	require.Equal(t, CmdVoteSync, sent[0].Command)
}
