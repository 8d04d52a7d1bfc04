package server

import (
	"slices"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/raorosz/Distributed-UserStore/message"
)

// tokenCoordinator owns the write token bookkeeping of one node.
// All fields are guarded by mx, cond is signalled whenever hasToken or inUse changes.
// Messages to other nodes are sent after mx is released.
type tokenCoordinator struct {
	mx   sync.Mutex
	cond *sync.Cond

	peers  *peerRegistry
	client PeerClient
	logger hclog.Logger

	// hasToken - this node may commit writes
	hasToken bool

	// holderID - who this node believes holds the token, unknownHolder if never told
	holderID int

	// requested - a TokenRequest was sent and no grant arrived yet
	requested bool

	// inUse - a local write holds the token between acquire and release
	inUse bool

	// pending - node IDs waiting for the token, first seen first served, no duplicates
	pending []int
}

func newTokenCoordinator(peers *peerRegistry, client PeerClient, logger hclog.Logger) *tokenCoordinator {
	var t = &tokenCoordinator{
		peers:    peers,
		client:   client,
		logger:   logger,
		holderID: unknownHolder,
	}
	t.cond = sync.NewCond(&t.mx)

	// the primary starts with the token
	if peers.self.Role == Primary {
		t.hasToken = true
		t.holderID = peers.self.ID
	}

	return t
}

func (t *tokenCoordinator) selfID() int {
	return t.peers.self.ID
}

// acquire blocks until this node holds the token and no other local write uses it.
// There is no timeout: a lost TokenGrant keeps the caller waiting forever.
func (t *tokenCoordinator) acquire() {
	t.mx.Lock()

	for !t.hasToken || t.inUse {
		if t.hasToken || t.requested {
			// either another local write has it or a grant is on its way
			t.cond.Wait()
			continue
		}

		t.requested = true

		if t.holderID != unknownHolder && t.holderID != t.selfID() {
			var holderID = t.holderID
			t.mx.Unlock()

			t.logger.Debug("requesting token", "holder", holderID)
			t.sendTo(holderID, message.TokenRequest{RequesterID: t.selfID()})

			t.mx.Lock()
			continue
		}

		// nobody is known to hold the token, take it over.
		// If the real holder is only slow this leaves two holders.
		t.logger.Warn("token holder unknown, assuming token", "holder", t.holderID)

		t.hasToken = true
		t.requested = false
		t.holderID = t.selfID()
		t.cond.Broadcast()

		t.mx.Unlock()
		t.broadcastHolder(t.selfID())
		t.mx.Lock()
	}

	t.inUse = true
	t.mx.Unlock()
}

// release ends a local write. The token goes to the earliest pending requester,
// with no one waiting it stays here and nothing is broadcast.
func (t *tokenCoordinator) release() {
	t.mx.Lock()

	t.inUse = false

	if !t.hasToken || len(t.pending) == 0 {
		if t.hasToken {
			t.holderID = t.selfID()
		}

		t.cond.Broadcast()
		t.mx.Unlock()
		return
	}

	var next = t.pending[0]
	t.pending = t.pending[1:]

	t.hasToken = false
	t.holderID = next
	t.cond.Broadcast()
	t.mx.Unlock()

	t.logger.Info("passing token to next requester", "to", next)
	t.grant(next)
}

// onTokenRequest hands the token over right away when it is idle here,
// otherwise the requester waits in the pending queue
func (t *tokenCoordinator) onTokenRequest(requesterID int) {
	if requesterID == t.selfID() {
		t.logger.Warn("ignoring token request from self")
		return
	}

	if _, ok := t.peers.lookup(requesterID); !ok {
		t.logger.Warn("ignoring token request from unknown node", "requester", requesterID)
		return
	}

	t.mx.Lock()

	// inUse: a local write between acquire and release keeps the token, release passes it on
	if t.hasToken && !t.requested && !t.inUse {
		t.hasToken = false
		t.holderID = requesterID
		t.mx.Unlock()

		t.logger.Info("granting token", "to", requesterID)
		t.grant(requesterID)
		return
	}

	if !slices.Contains(t.pending, requesterID) {
		t.pending = append(t.pending, requesterID)
	}

	t.logger.Debug("token request queued", "requester", requesterID, "pending", len(t.pending))
	t.mx.Unlock()
}

func (t *tokenCoordinator) onTokenGrant() {
	t.mx.Lock()
	defer t.mx.Unlock()

	t.hasToken = true
	t.requested = false
	t.holderID = t.selfID()
	t.cond.Broadcast()

	t.logger.Info("token received")
}

// onTokenHolderUpdate records the new holder, hasToken is never touched here
func (t *tokenCoordinator) onTokenHolderUpdate(newHolderID int) {
	t.mx.Lock()
	defer t.mx.Unlock()

	t.holderID = newHolderID
	t.logger.Debug("token holder updated", "holder", newHolderID)
}

func (t *tokenCoordinator) state() TokenState {
	t.mx.Lock()
	defer t.mx.Unlock()

	var st = TokenState{
		HasToken:  t.hasToken,
		HolderID:  t.holderID,
		Requested: t.requested,
		InUse:     t.inUse,
	}

	if len(t.pending) > 0 {
		st.Pending = slices.Clone(t.pending)
	}

	return st
}

// grant sends the token to id and tells everybody else about the new holder
func (t *tokenCoordinator) grant(id int) {
	t.sendTo(id, message.TokenGrant{})
	t.broadcastHolder(id)
}

func (t *tokenCoordinator) broadcastHolder(holderID int) {
	var update = message.TokenHolderUpdate{NewHolderID: holderID}

	for _, peer := range t.peers.others {
		t.send(peer.ID, peer.Addr(), update)
	}
}

func (t *tokenCoordinator) sendTo(id int, msg message.Message) {
	addr, err := t.peers.addrOf(id)
	if err != nil {
		t.logger.Error("cannot send token message", "kind", msg.Kind(), "error", err)
		return
	}

	t.send(id, addr, msg)
}

func (t *tokenCoordinator) send(id int, addr string, msg message.Message) {
	if err := t.client.Send(addr, msg); err != nil {
		t.logger.Warn("token message not delivered", "kind", msg.Kind(), "peer", id, "error", err)
	}
}
