// Package wsserver implements the WebSocket-facing dispatcher: it
// upgrades inbound connections, enforces a path allow-list, and owns the
// registry of live message.Connection instances built over them.
package wsserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/phnq-org/message/message"
	"github.com/phnq-org/message/wstransport"
)

// Config configures a Server.
type Config struct {
	// Paths is the allow-listed set of upgrade paths this server
	// accepts; connections to any other path are rejected with close
	// status 1008. Defaults to ["/"].
	Paths []string

	// Addr is the address ListenAndServe binds, e.g. ":8080".
	Addr string

	// OnReceive handles every request arriving on an accepted
	// connection.
	OnReceive message.Handler

	// OnConnect, if set, fires once a connection's message.Connection is
	// registered. Requests on the socket are dispatched as soon as that
	// Connection exists, so one may be handled before OnConnect runs.
	OnConnect func(id string, conn *message.Connection)

	// OnDisconnect, if set, fires once a connection is deregistered.
	OnDisconnect func(id string)

	Logger *slog.Logger

	// ConnectionOptions are passed through to message.NewConnection for
	// every accepted connection, e.g. message.WithSignSalt.
	ConnectionOptions []message.Option
}

// Server accepts WebSocket upgrades on a configured path set, wrapping
// each accepted socket in a message.Connection and tracking it in a
// registry keyed by a generated connection id.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	paths    map[string]bool
	httpSrv  *http.Server

	mu    sync.Mutex
	conns map[string]*message.Connection
}

// New builds a Server from cfg, defaulting Paths to ["/"] and Logger to
// slog.Default().
func New(cfg Config) *Server {
	paths := cfg.Paths
	if len(paths) == 0 {
		paths = []string{"/"}
	}
	pathSet := make(map[string]bool, len(paths))
	for _, p := range paths {
		pathSet[p] = true
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		paths:  pathSet,
		conns:  make(map[string]*message.Connection),
	}
}

// ServeHTTP implements http.Handler: it rejects upgrades on
// non-allow-listed paths with close status 1008 and otherwise registers
// a new message.Connection over the upgraded socket.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.paths[r.URL.Path] {
		s.rejectPath(w, r)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	s.accept(ws)
}

func (s *Server) rejectPath(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "unsupported path", http.StatusBadRequest)
		return
	}
	reason := "unsupported path: " + r.URL.Path
	closeMsg := websocket.FormatCloseMessage(1008, reason)
	_ = ws.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(writeDeadline))
	_ = ws.Close()
}

func (s *Server) accept(ws *websocket.Conn) {
	id := uuid.NewString()
	t := wstransport.Wrap(ws)
	opts := append([]message.Option{message.WithLogger(s.logger)}, s.cfg.ConnectionOptions...)
	conn := message.NewConnection(t, opts...)
	conn.OnReceive(s.cfg.OnReceive)

	s.mu.Lock()
	s.conns[id] = conn
	s.mu.Unlock()

	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(id, conn)
	}
}

// Remove deregisters and fires OnDisconnect for connection id. The
// server itself calls this from Shutdown; application code that detects
// a dead peer on its own (a failed send) may call it directly rather
// than waiting for the next Shutdown to prune the registry.
func (s *Server) Remove(id string) {
	s.mu.Lock()
	_, ok := s.conns[id]
	delete(s.conns, id)
	s.mu.Unlock()

	if ok && s.cfg.OnDisconnect != nil {
		s.cfg.OnDisconnect(id)
	}
}

// Connection returns the registered connection for id, if any.
func (s *Server) Connection(id string) (*message.Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[id]
	return conn, ok
}

// ListenAndServe starts the HTTP server bound to cfg.Addr, upgrading
// matching requests until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{Addr: s.cfg.Addr, Handler: s}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown closes every registered connection, firing OnDisconnect for
// each, then shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.conns))
	conns := make([]*message.Connection, 0, len(s.conns))
	for id, conn := range s.conns {
		ids = append(ids, id)
		conns = append(conns, conn)
	}
	s.conns = make(map[string]*message.Connection)
	s.mu.Unlock()

	var g errgroup.Group
	for i := range conns {
		conn := conns[i]
		id := ids[i]
		g.Go(func() error {
			err := conn.Close()
			if s.cfg.OnDisconnect != nil {
				s.cfg.OnDisconnect(id)
			}
			return err
		})
	}
	closeErr := g.Wait()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return err
		}
	}
	return closeErr
}

const writeDeadline = 5 * time.Second
