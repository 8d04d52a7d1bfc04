package message

import "fmt"

// Kind is the wire tag of a message variant
type Kind uint8

const (
	KindReadRequest Kind = iota + 1
	KindReadResponse
	KindWriteRequest
	KindAcknowledgment
	KindErrorMessage
	KindReplication
	KindTokenRequest
	KindTokenGrant
	KindTokenHolderUpdate
)

func (k Kind) String() string {
	switch k {
	case KindReadRequest:
		return "ReadRequest"
	case KindReadResponse:
		return "ReadResponse"
	case KindWriteRequest:
		return "WriteRequest"
	case KindAcknowledgment:
		return "Acknowledgment"
	case KindErrorMessage:
		return "ErrorMessage"
	case KindReplication:
		return "ReplicationMessage"
	case KindTokenRequest:
		return "TokenRequest"
	case KindTokenGrant:
		return "TokenGrant"
	case KindTokenHolderUpdate:
		return "TokenHolderUpdate"
	}

	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Message is one of the variants declared in this package,
// the set is closed: only types here implement it
type Message interface {
	Kind() Kind

	sealed()
}

type ReadRequest struct {
	Username string
}

type ReadResponse struct {
	Username string
	SSN      string // empty when Found is false
	Found    bool
}

type WriteRequest struct {
	Username string
	SSN      string
}

type Acknowledgment struct {
	Text string
}

type ErrorMessage struct {
	Text string
}

// ReplicationMessage carries a committed write from the primary to a peer
type ReplicationMessage struct {
	Username string
	SSN      string
}

type TokenRequest struct {
	RequesterID int
}

type TokenGrant struct{}

type TokenHolderUpdate struct {
	NewHolderID int
}

func (ReadRequest) Kind() Kind        { return KindReadRequest }
func (ReadResponse) Kind() Kind       { return KindReadResponse }
func (WriteRequest) Kind() Kind       { return KindWriteRequest }
func (Acknowledgment) Kind() Kind     { return KindAcknowledgment }
func (ErrorMessage) Kind() Kind       { return KindErrorMessage }
func (ReplicationMessage) Kind() Kind { return KindReplication }
func (TokenRequest) Kind() Kind       { return KindTokenRequest }
func (TokenGrant) Kind() Kind         { return KindTokenGrant }
func (TokenHolderUpdate) Kind() Kind  { return KindTokenHolderUpdate }

func (ReadRequest) sealed()        {}
func (ReadResponse) sealed()       {}
func (WriteRequest) sealed()       {}
func (Acknowledgment) sealed()     {}
func (ErrorMessage) sealed()       {}
func (ReplicationMessage) sealed() {}
func (TokenRequest) sealed()       {}
func (TokenGrant) sealed()         {}
func (TokenHolderUpdate) sealed()  {}
