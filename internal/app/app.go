package app

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/armin976/noema-gateway/internal/adapter/engine"
	"github.com/armin976/noema-gateway/internal/adapter/remote"
	"github.com/armin976/noema-gateway/internal/adapter/transport"
	"github.com/armin976/noema-gateway/internal/config"
	"github.com/armin976/noema-gateway/internal/core/domain"
	"github.com/armin976/noema-gateway/internal/core/ports"
	"github.com/armin976/noema-gateway/internal/logger"
	"github.com/armin976/noema-gateway/internal/server"
	"github.com/armin976/noema-gateway/pkg/eventbus"
)

// TransportEvent is published whenever a relay backend's transport decision
// changes.
type TransportEvent struct {
	Backend  string
	Decision domain.TransportDecision
	Initial  bool
}

// Application wires the gateway together: the embedded server in front, the
// engine router behind it, and the transport machinery for relay backends.
type Application struct {
	startTime time.Time
	logger    *logger.StyledLogger

	cfgMu    sync.Mutex
	cfg      *config.Config
	server   *server.Server
	selector *transport.Selector
	netid    *transport.NetworkID
	routes   []*backendRoute
	bus      *eventbus.Bus[TransportEvent]

	reloadCh chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(startTime time.Time, styled *logger.StyledLogger) (*Application, error) {
	a := &Application{
		startTime: startTime,
		logger:    styled,
		bus:       eventbus.New[TransportEvent](eventbus.DefaultBufferSize),
		reloadCh:  make(chan struct{}, 1),
	}

	cfg, err := config.Load(a.requestReload)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	prober := transport.NewProber(cfg.Transport.ProbeTimeout)
	a.netid = transport.NewNetworkID(cfg.Transport, prober)

	var metadata ports.BackendMetadataSource
	var relay ports.RelayChannel
	if cfg.Transport.RelayServiceURL != "" {
		metadata = remote.NewRelayMetadataSource(cfg.Transport.RelayServiceURL, cfg.Transport.RelayServiceToken, cfg.Transport.RequestTimeout)
		relay = remote.NewHTTPRelayChannel(cfg.Transport.RelayServiceURL, cfg.Transport.RelayServiceToken, cfg.Transport.RequestTimeout)
	}

	a.selector = transport.NewSelector(cfg.Transport, a.netid, metadata, styled)

	identity := remote.Identity{
		ID:       uuid.NewString(),
		Name:     cfg.Server.ServiceName,
		Platform: runtime.GOOS,
		SSID:     cfg.Transport.LocalNetworkName,
	}

	for _, bc := range cfg.Backends {
		backend := domainBackend(bc)
		client := remote.NewClient(remote.Options{
			Backend:  backend,
			Identity: identity,
			Decider:  a.selector,
			Relay:    relay,
			Timeout:  cfg.Transport.RequestTimeout,
			Logger:   styled.With("backend", backend.Name),
		})
		a.routes = append(a.routes, &backendRoute{backend: backend, client: client})
	}

	local := engine.NewRemote(cfg.Engine, styled)
	a.server = server.New(cfg.Server, newEngineRouter(local, a.routes), styled)

	return a, nil
}

// Start brings up the server and the per-backend transport monitors.
func (a *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.server.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go a.logTransportEvents(runCtx)

	for _, route := range a.routes {
		route := route
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.selector.Monitor(runCtx, route.backend,
				func(decision domain.TransportDecision, initial bool) {
					a.bus.Publish(TransportEvent{Backend: route.backend.Name, Decision: decision, Initial: initial})
				},
				route.client.UpdateBackend,
			)
		}()
	}

	a.wg.Add(1)
	go a.handleReloads(runCtx)

	a.logger.InfoWithCount("Gateway running with remote backends", len(a.routes), "pid", os.Getpid())
	return nil
}

// Stop shuts the gateway down: server first so no new streams start, then
// the remote clients, then the bus.
func (a *Application) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	a.server.Stop()
	for _, route := range a.routes {
		route.client.Close()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	a.cfgMu.Lock()
	shutdownTimeout := a.cfg.Server.ShutdownTimeout
	a.cfgMu.Unlock()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		a.logger.Warn("Shutdown timed out waiting for background workers")
	case <-ctx.Done():
	}

	a.bus.Shutdown()
	return nil
}

func (a *Application) logTransportEvents(ctx context.Context) {
	defer a.wg.Done()

	events, unsubscribe := a.bus.Subscribe(ctx)
	defer unsubscribe()

	for event := range events {
		if event.Initial {
			a.logger.InfoTransport("Transport established for "+event.Backend, event.Decision)
		} else {
			a.logger.InfoTransport("Transport changed for "+event.Backend, event.Decision)
		}
	}
}

// requestReload coalesces config-file change notifications; the watcher can
// fire several times for one editor save.
func (a *Application) requestReload() {
	select {
	case a.reloadCh <- struct{}{}:
	default:
	}
}

func (a *Application) handleReloads(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.reloadCh:
		}

		cfg, err := config.Snapshot()
		if err != nil {
			a.logger.Error("Ignoring invalid configuration reload", "error", err)
			continue
		}

		a.cfgMu.Lock()
		restart := cfg.Server.GetAddress() != a.cfg.Server.GetAddress() ||
			cfg.Server.ServeOnLocalNetwork != a.cfg.Server.ServeOnLocalNetwork
		a.cfg = cfg
		a.cfgMu.Unlock()

		if err := a.server.UpdateConfiguration(ctx, cfg.Server, restart); err != nil {
			a.logger.Error("Failed to apply server configuration", "error", err)
		}

		a.netid.SetNetworkName(cfg.Transport.LocalNetworkName)
		a.selector.NotifyNetworkChange()

		a.logger.Info("Configuration reloaded", "server_restarted", restart)
	}
}

// ServerState exposes the embedded server's state for status reporting.
func (a *Application) ServerState() domain.ServerState {
	return a.server.CurrentState()
}

func domainBackend(bc config.BackendConfig) domain.RemoteBackend {
	return domain.RemoteBackend{
		Name:           bc.Name,
		Type:           endpointType(bc.Type),
		BaseURL:        bc.BaseURL,
		AuthHeader:     bc.AuthHeader,
		DefaultModel:   bc.DefaultModel,
		CustomModelIDs: bc.CustomModelIDs,
		Relay: domain.RelayMetadata{
			DeviceID: bc.RelayDeviceID,
		},
	}
}

func endpointType(s string) domain.EndpointType {
	switch s {
	case domain.EndpointTypeStringOpenAI:
		return domain.EndpointOpenAI
	case domain.EndpointTypeStringOllama:
		return domain.EndpointOllama
	case domain.EndpointTypeStringRelayLAN:
		return domain.EndpointRelayLAN
	case domain.EndpointTypeStringRelayCloud:
		return domain.EndpointRelayCloud
	default:
		return domain.EndpointCustom
	}
}
