package server

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/raorosz/Distributed-UserStore/message"
	"github.com/raorosz/Distributed-UserStore/store"
)

var (
	// ErrRouting is returned for decoded messages no handler accepts,
	// e.g. a ReadResponse sent to a node
	ErrRouting = errors.New("no handler for message")

	ErrServerClosed = errors.New("server closed")
)

type Options struct {
	// PoolSize is the number of connections handled at the same time,
	// zero or less means DefaultPoolSize
	PoolSize int

	// QueueSize is the number of accepted connections waiting for a free worker.
	// Zero or less means DefaultQueueSize.
	QueueSize int

	Logger hclog.Logger
}

// handlerFunc handles one decoded message, a nil response means nothing is written back
type handlerFunc func(logger hclog.Logger, msg message.Message) (message.Message, error)

type Server struct {
	ID   int
	self NodeInfo

	peers  *peerRegistry
	store  *store.Store
	token  *tokenCoordinator
	client PeerClient

	handlers map[message.Kind]handlerFunc

	poolSize  int
	queueSize int

	logger hclog.Logger

	mx       sync.Mutex
	listener net.Listener

	// signal to stop accepting connections
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewServer builds the node described by self, peers is the rest of the cluster
// (an entry for self is ignored)
func NewServer(self NodeInfo, peers []NodeInfo, client PeerClient, opts Options) (*Server, error) {
	if self.ID <= 0 {
		return nil, fmt.Errorf("invalid node id: %d", self.ID)
	}

	if client == nil {
		return nil, errors.New("peer client is required")
	}

	var logger = opts.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{Name: "userstore"})
	}
	logger = logger.Named(fmt.Sprintf("node-%d", self.ID))

	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	var registry = newPeerRegistry(self, peers)

	s := &Server{
		ID:         self.ID,
		self:       self,
		peers:      registry,
		store:      store.New(),
		token:      newTokenCoordinator(registry, client, logger.Named("token")),
		client:     client,
		poolSize:   opts.PoolSize,
		queueSize:  opts.QueueSize,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}

	s.handlers = map[message.Kind]handlerFunc{
		message.KindReadRequest:       handle(s.handleRead),
		message.KindWriteRequest:      handle(s.handleWrite),
		message.KindReplication:       handle(s.handleReplication),
		message.KindTokenRequest:      handle(s.handleTokenRequest),
		message.KindTokenGrant:        handle(s.handleTokenGrant),
		message.KindTokenHolderUpdate: handle(s.handleTokenHolderUpdate),
	}

	logger.Info("node initialized",
		"role", self.Role,
		"has_token", s.token.state().HasToken,
		"peers", len(registry.others))

	return s, nil
}

// Start binds the node port and serves connections in the background.
// A bind failure is the only fatal startup error.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", s.self.Port))
	if err != nil {
		return fmt.Errorf("node %d cannot listen on port %d: %w", s.ID, s.self.Port, err)
	}

	go func() {
		if err := s.Serve(l); err != nil && !errors.Is(err, ErrServerClosed) {
			s.logger.Error("serve stopped", "error", err)
		}
	}()

	return nil
}

// Serve accepts connections on l until Shutdown is called.
// Each connection is handled by the worker pool, Serve returns once queued connections are done.
func (s *Server) Serve(l net.Listener) error {
	s.mx.Lock()
	select {
	case <-s.shutdownCh:
		s.mx.Unlock()
		_ = l.Close()
		return ErrServerClosed
	default:
	}

	if s.listener != nil {
		s.mx.Unlock()
		return errors.New("server is already serving")
	}
	s.listener = l
	s.mx.Unlock()

	var pool = newWorkerPool(s.poolSize, s.queueSize)
	defer func() {
		pool.stop()
		pool.wait()
	}()

	s.logger.Info("listening", "addr", l.Addr().String(), "pool_size", s.poolSize)

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return nil
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			s.logger.Error("accept failed", "error", err)
			continue
		}

		if !pool.submit(func() { s.handleConnection(conn) }, s.shutdownCh) {
			_ = conn.Close()
			return nil
		}
	}
}

// Shutdown stops accepting connections. Handlers already running are not interrupted.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mx.Lock()
		defer s.mx.Unlock()

		close(s.shutdownCh)

		if s.listener != nil {
			_ = s.listener.Close()
		}

		s.logger.Info("shutdown")
	})
}

func (s *Server) Info() NodeInfo {
	return s.self
}

func (s *Server) TokenState() TokenState {
	return s.token.state()
}

func (s *Server) Store() store.Reader {
	return s.store
}

// handleConnection serves exactly one message, the connection is always closed
func (s *Server) handleConnection(conn net.Conn) {
	var logger = s.logger.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "panic", r)
		}

		_ = conn.Close()
	}()

	msg, err := message.ReadFrame(conn)
	if err != nil {
		if errors.Is(err, message.ErrDecode) {
			logger.Warn("dropping undecodable message", "error", err)
		} else {
			logger.Warn("cannot read message", "error", err)
		}
		return
	}

	logger.Debug("received message", "kind", msg.Kind())

	resp, err := s.dispatch(logger, msg)
	if err != nil {
		if errors.Is(err, ErrRouting) {
			logger.Warn("dropping message", "kind", msg.Kind(), "error", err)
		} else {
			logger.Error("handler failed", "kind", msg.Kind(), "error", err)
		}
		return
	}

	if resp == nil {
		return
	}

	if err = message.WriteFrame(conn, resp); err != nil {
		logger.Warn("cannot write response", "kind", resp.Kind(), "error", err)
	}
}

func (s *Server) dispatch(logger hclog.Logger, msg message.Message) (message.Message, error) {
	h, ok := s.handlers[msg.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouting, msg.Kind())
	}

	return h(logger, msg)
}

// handle adapts a handler for one concrete message type to handlerFunc
func handle[T message.Message](fn func(hclog.Logger, T) (message.Message, error)) handlerFunc {
	return func(logger hclog.Logger, msg message.Message) (message.Message, error) {
		m, ok := msg.(T)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected %T for %s", ErrRouting, msg, msg.Kind())
		}

		return fn(logger, m)
	}
}
