package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/armin976/noema-gateway/internal/config"
	"github.com/armin976/noema-gateway/internal/core/domain"
	"github.com/armin976/noema-gateway/internal/core/ports"
	"github.com/armin976/noema-gateway/internal/logger"
)

// Server owns the listening socket and its accepted connections. All mutable
// state is guarded by mu and mutated only by the Server's own methods.
type Server struct {
	mu      sync.Mutex
	cfg     config.ServerConfig
	engine  ports.InferenceEngine
	logger  *logger.StyledLogger
	ln      net.Listener
	conns   *xsync.Map[string, net.Conn]
	bonjour bonjourHandle
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// bonjourHandle lets tests run without touching mDNS.
type bonjourHandle interface {
	Shutdown()
}

func New(cfg config.ServerConfig, engine ports.InferenceEngine, lg *logger.StyledLogger) *Server {
	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: lg,
		conns:  xsync.NewMap[string, net.Conn](),
	}
}

// Start binds the listener and begins accepting connections. A bind failure
// is fatal to Start and surfaced to the caller. Port 0 binds an ephemeral
// port; the resolved port is visible through CurrentState.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.GetAddress())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.GetAddress(), err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s.ln = ln
	s.cancel = cancel
	s.running = true

	port := boundPort(ln)
	lanAddress := resolveLANAddress(s.cfg.Host, port)

	s.logger.Info("Started gateway server", "bind", ln.Addr().String(), "lan_address", lanAddress)

	if s.cfg.ServeOnLocalNetwork && s.cfg.AdvertiseBonjour {
		s.advertise(s.cfg.ServiceName, port, lanAddress)
	}

	s.wg.Add(1)
	go s.acceptLoop(serverCtx, ln)

	return nil
}

// Stop cancels the listener, cancels all open connections and clears
// advertised state.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	ln := s.ln
	s.ln = nil
	s.cancel = nil
	s.stopAdvertising()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ln != nil {
		_ = ln.Close()
	}

	s.conns.Range(func(id string, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})

	s.wg.Wait()
	s.logger.Info("Gateway server stopped")
}

// UpdateConfiguration swaps the server configuration, optionally restarting
// the listener so the new bind address takes effect.
func (s *Server) UpdateConfiguration(ctx context.Context, cfg config.ServerConfig, restart bool) error {
	s.mu.Lock()
	s.cfg = cfg
	wasRunning := s.running
	s.mu.Unlock()

	if restart && wasRunning {
		s.Stop()
		return s.Start(ctx)
	}
	return nil
}

// CurrentState snapshots the externally visible server state. The resolved
// port falls back through: bound listener port, then configured port; the
// reachable LAN address is recomputed on every call.
func (s *Server) CurrentState() domain.ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := domain.ServerState{
		Running:  s.running,
		BindHost: s.cfg.Host,
	}

	if !s.running {
		return state
	}

	port := 0
	if s.ln != nil {
		port = boundPort(s.ln)
	}
	if port == 0 {
		port = s.cfg.Port
	}

	state.Port = port
	state.ReachableLANAddress = resolveLANAddress(s.cfg.Host, port)
	return state
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			// A failed listener releases everything; it is not retried
			s.logger.Error("Listener failed, stopping server", "error", err)
			go s.Stop()
			return
		}

		id := uuid.NewString()
		s.conns.Store(id, conn)
		s.wg.Add(1)
		go s.handleConnection(ctx, id, conn)
	}
}

func (s *Server) configSnapshot() config.ServerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func boundPort(ln net.Listener) int {
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
