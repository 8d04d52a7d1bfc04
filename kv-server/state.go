package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

type Role int

const (
	// Backup - never commits a client write locally,
	// forwards writes to the primary and applies replication messages
	Backup Role = iota

	// Primary - commits client writes and replicates them to every other node
	// Only 1 primary in the cluster, it starts as the token holder
	Primary
)

func (r Role) String() string {
	switch r {
	case Primary:
		return "primary"
	case Backup:
		return "backup"
	}

	return fmt.Sprintf("Role(%d)", int(r))
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary":
		return Primary, nil
	case "backup":
		return Backup, nil
	}

	return Backup, fmt.Errorf("unknown role: %q", s)
}

// NodeInfo identifies one node of the cluster
type NodeInfo struct {
	ID   int
	Host string
	Port int
	Role Role
}

func (n NodeInfo) Addr() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

// unknownHolder marks a node that has not learned who holds the token
const unknownHolder = -1

// TokenState is a point-in-time copy of a node's token bookkeeping
type TokenState struct {
	HasToken  bool
	HolderID  int  // unknownHolder (-1) until learned
	Requested bool // a TokenRequest is outstanding
	InUse     bool // a local write is between acquire and release
	Pending   []int
}

// ErrUnknownPeer is returned when a node id is not part of the cluster
var ErrUnknownPeer = errors.New("unknown peer")

// peerRegistry is the static view of the cluster handed to a node at startup
type peerRegistry struct {
	self NodeInfo

	// others holds every node except self, in configuration order
	others []NodeInfo
	byID   map[int]NodeInfo
}

func newPeerRegistry(self NodeInfo, peers []NodeInfo) *peerRegistry {
	var r = &peerRegistry{
		self: self,
		byID: make(map[int]NodeInfo, len(peers)+1),
	}

	r.byID[self.ID] = self

	for _, peer := range peers {
		if peer.ID == self.ID {
			continue
		}

		if _, dup := r.byID[peer.ID]; dup {
			continue
		}

		r.others = append(r.others, peer)
		r.byID[peer.ID] = peer
	}

	return r
}

func (r *peerRegistry) lookup(id int) (NodeInfo, bool) {
	node, ok := r.byID[id]
	return node, ok
}

func (r *peerRegistry) addrOf(id int) (string, error) {
	node, ok := r.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownPeer, id)
	}

	return node.Addr(), nil
}

// primary returns the configured primary, or self when no peer is marked primary
func (r *peerRegistry) primary() NodeInfo {
	if r.self.Role == Primary {
		return r.self
	}

	for _, peer := range r.others {
		if peer.Role == Primary {
			return peer
		}
	}

	return r.self
}
