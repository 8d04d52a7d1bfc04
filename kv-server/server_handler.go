package server

import (
	"github.com/hashicorp/go-hclog"
	"github.com/raorosz/Distributed-UserStore/message"
)

const (
	WriteSuccessText  = "Write operation successful."
	ForwardFailedText = "Failed to forward write request to primary."
)

// handleRead answers from local state only, a backup may return stale data
func (s *Server) handleRead(logger hclog.Logger, req message.ReadRequest) (message.Message, error) {
	ssn, found := s.store.Get(req.Username)

	logger.Debug("read", "username", req.Username, "found", found)

	return message.ReadResponse{
		Username: req.Username,
		SSN:      ssn,
		Found:    found,
	}, nil
}

// handleWrite commits on the primary under the token, backups forward to the primary
func (s *Server) handleWrite(logger hclog.Logger, req message.WriteRequest) (message.Message, error) {
	if s.self.Role != Primary {
		return s.forwardWrite(logger, req), nil
	}

	s.token.acquire()

	s.store.Upsert(req.Username, req.SSN)
	s.replicate(logger, req.Username, req.SSN)

	s.token.release()

	logger.Info("write committed", "username", req.Username)

	return message.Acknowledgment{Text: WriteSuccessText}, nil
}

// forwardWrite relays req to the primary unchanged and returns its answer verbatim.
// The local store is not touched, it catches up through replication.
func (s *Server) forwardWrite(logger hclog.Logger, req message.WriteRequest) message.Message {
	var primary = s.peers.primary()
	if primary.ID == s.self.ID {
		logger.Error("no primary configured, cannot forward write", "username", req.Username)
		return message.ErrorMessage{Text: ForwardFailedText}
	}

	logger.Debug("forwarding write to primary", "primary", primary.ID, "username", req.Username)

	resp, err := s.client.SendAndAwait(primary.Addr(), req)
	if err != nil {
		logger.Error("cannot forward write to primary", "primary", primary.ID, "error", err)
		return message.ErrorMessage{Text: ForwardFailedText}
	}

	return resp
}

// replicate sends the committed write to every other node one by one.
// Failures are logged and skipped, the write stays acknowledged.
func (s *Server) replicate(logger hclog.Logger, username, ssn string) {
	var msg = message.ReplicationMessage{Username: username, SSN: ssn}

	for _, peer := range s.peers.others {
		if err := s.client.Send(peer.Addr(), msg); err != nil {
			logger.Warn("replication not delivered", "peer", peer.ID, "username", username, "error", err)
		}
	}
}

func (s *Server) handleReplication(logger hclog.Logger, msg message.ReplicationMessage) (message.Message, error) {
	s.store.Upsert(msg.Username, msg.SSN)

	logger.Debug("replicated", "username", msg.Username)

	return nil, nil
}

func (s *Server) handleTokenRequest(_ hclog.Logger, msg message.TokenRequest) (message.Message, error) {
	s.token.onTokenRequest(msg.RequesterID)
	return nil, nil
}

func (s *Server) handleTokenGrant(_ hclog.Logger, _ message.TokenGrant) (message.Message, error) {
	s.token.onTokenGrant()
	return nil, nil
}

func (s *Server) handleTokenHolderUpdate(_ hclog.Logger, msg message.TokenHolderUpdate) (message.Message, error) {
	s.token.onTokenHolderUpdate(msg.NewHolderID)
	return nil, nil
}
