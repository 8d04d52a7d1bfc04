package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/raorosz/Distributed-UserStore/message"
)

// ErrTransport wraps every failure to deliver a message or to read its response:
// refused connections, dial timeouts, broken writes, missing or undecodable responses
var ErrTransport = errors.New("transport error")

// PeerClient delivers messages to other nodes, one connection per message
type PeerClient interface {
	// Send writes msg and closes the connection without waiting for an answer
	Send(addr string, msg message.Message) error

	// SendAndAwait writes msg and reads exactly one response before closing
	SendAndAwait(addr string, msg message.Message) (message.Message, error)
}

// TCPClient is the PeerClient used between real nodes and by the client shell.
// Nothing is retried, a failed send is only reported to the caller.
type TCPClient struct {
	// dialTimeout bounds connection setup only, 0 means no limit.
	// Reads of a response are never bounded.
	dialTimeout time.Duration
}

func NewTCPClient(dialTimeout time.Duration) *TCPClient {
	return &TCPClient{dialTimeout: dialTimeout}
}

func (c *TCPClient) Send(addr string, msg message.Message) error {
	conn, err := c.dial(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err = message.WriteFrame(conn, msg); err != nil {
		return fmt.Errorf("%w: send to %s: %w", ErrTransport, addr, err)
	}

	return nil
}

func (c *TCPClient) SendAndAwait(addr string, msg message.Message) (message.Message, error) {
	conn, err := c.dial(addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err = message.WriteFrame(conn, msg); err != nil {
		return nil, fmt.Errorf("%w: send to %s: %w", ErrTransport, addr, err)
	}

	resp, err := message.ReadFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: no response from %s: %w", ErrTransport, addr, err)
	}

	return resp, nil
}

func (c *TCPClient) dial(addr string) (net.Conn, error) {
	var dialer = net.Dialer{Timeout: c.dialTimeout}

	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot connect to %s: %w", ErrTransport, addr, err)
	}

	return conn, nil
}
