package transport

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/armin976/noema-gateway/internal/config"
	"github.com/armin976/noema-gateway/internal/core/domain"
	"github.com/armin976/noema-gateway/internal/core/ports"
	"github.com/armin976/noema-gateway/internal/logger"
	"github.com/armin976/noema-gateway/internal/util"
)

// Selector decides how to reach relay backends: over the LAN when the peer
// is plausibly on the same network, through the cloud relay otherwise.
// Non-relay backends are always direct.
type Selector struct {
	cfg      config.TransportConfig
	netid    ports.NetworkIdentity
	metadata ports.BackendMetadataSource
	logger   *logger.StyledLogger
	kick     chan struct{}
}

func NewSelector(cfg config.TransportConfig, netid ports.NetworkIdentity, metadata ports.BackendMetadataSource, lg *logger.StyledLogger) *Selector {
	return &Selector{
		cfg:      cfg,
		netid:    netid,
		metadata: metadata,
		logger:   lg,
		kick:     make(chan struct{}, 1),
	}
}

// Decide evaluates the transport for one request, cheapest signal first:
// manual override, then advertised network name, then the shared-subnet
// heuristic, then an actual reachability probe. Only when every signal fails
// does the request go through the cloud relay.
func (s *Selector) Decide(ctx context.Context, backend domain.RemoteBackend) domain.TransportDecision {
	if !backend.Type.IsRelay() {
		return domain.Direct()
	}

	meta := backend.Relay

	if s.cfg.ManualLANOverride && meta.LANURL != "" {
		// The override forces the LAN attempt but cannot conjure a peer;
		// an unreachable address still means the relay
		if s.netid.IsReachable(ctx, meta.LANURL) {
			return domain.LAN(meta.NetworkName)
		}
		return domain.CloudRelay()
	}

	if meta.LANURL == "" {
		return domain.CloudRelay()
	}

	if name, ok := s.netid.CurrentNetworkName(ctx); ok && meta.NetworkName != "" {
		if strings.EqualFold(name, meta.NetworkName) {
			// Label with the name this side knows the network by
			return domain.LAN(name)
		}
		// Both sides named their network and the names differ; the peer is
		// elsewhere, so skip the probe entirely
		return domain.CloudRelay()
	}

	if lanHostOnLocalSubnet(meta.LANURL) {
		return domain.LAN(meta.NetworkName)
	}

	if s.netid.IsReachable(ctx, meta.LANURL) {
		// Reachable but unconfirmed network identity; no name to report
		return domain.LAN("")
	}

	return domain.CloudRelay()
}

// lanHostOnLocalSubnet applies the coarse /24 heuristic between the
// advertised LAN host and every local interface address.
func lanHostOnLocalSubnet(lanURL string) bool {
	parsed, err := url.Parse(lanURL)
	if err != nil {
		return false
	}
	ip := net.ParseIP(parsed.Hostname())
	if ip == nil {
		return false
	}
	for _, local := range util.LocalIPv4Addresses() {
		if util.SameIPv4Subnet(local, ip) {
			return true
		}
	}
	return false
}

// NotifyNetworkChange wakes the monitor loop ahead of its next tick, for
// callers that learn of a Wi-Fi change out of band. Coalesced; never blocks.
func (s *Selector) NotifyNetworkChange() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Monitor re-evaluates the transport for backend on a fixed interval and on
// network-change kicks, refreshing stale relay metadata along the way. The
// observer fires once with initial=true, then only on decision transitions;
// onRefresh (optional) receives each refreshed backend value. Returns
// immediately for non-relay backends and blocks otherwise until ctx is done.
func (s *Selector) Monitor(ctx context.Context, backend domain.RemoteBackend, observer ports.TransportObserver, onRefresh func(domain.RemoteBackend)) {
	if !backend.Type.IsRelay() {
		return
	}

	interval := s.cfg.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	backend = s.refreshIfStale(ctx, backend, onRefresh)
	current := s.Decide(ctx, backend)
	if observer != nil {
		observer(current, true)
	}
	s.logDecision(backend, current)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.kick:
		}

		backend = s.refreshIfStale(ctx, backend, onRefresh)
		next := s.Decide(ctx, backend)
		if next != current {
			current = next
			if observer != nil {
				observer(current, false)
			}
			s.logDecision(backend, current)
		}
	}
}

// refreshIfStale pulls new relay metadata when the configured minimum
// interval has elapsed. Refresh failure keeps the prior metadata; the
// selector can still fall back to the cloud path.
func (s *Selector) refreshIfStale(ctx context.Context, backend domain.RemoteBackend, onRefresh func(domain.RemoteBackend)) domain.RemoteBackend {
	if s.metadata == nil {
		return backend
	}

	minInterval := s.cfg.MetadataRefreshInterval
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if time.Since(backend.Relay.RefreshedAt) < minInterval {
		return backend
	}

	refreshed, err := s.metadata.Refresh(ctx, backend)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnWithBackend("Failed to refresh relay metadata", backend.Name, "error", err)
		}
		return backend
	}
	if onRefresh != nil {
		onRefresh(refreshed)
	}
	return refreshed
}

func (s *Selector) logDecision(backend domain.RemoteBackend, decision domain.TransportDecision) {
	if s.logger != nil {
		s.logger.InfoTransport("Transport selected for "+backend.Name, decision)
	}
}
