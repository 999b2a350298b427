package transport

import (
	"context"
	"sync"
	"time"

	"github.com/armin976/noema-gateway/internal/config"
)

// NetworkID is the default NetworkIdentity implementation. Headless hosts
// have no portable way to read the joined Wi-Fi SSID, so the name comes from
// configuration; an empty configured name means "unknown" and lookups are
// negatively cached for the configured TTL to keep the selector loop cheap.
type NetworkID struct {
	prober *Prober

	mu          sync.Mutex
	name        string
	lastMissAt  time.Time
	negativeTTL time.Duration
}

func NewNetworkID(cfg config.TransportConfig, prober *Prober) *NetworkID {
	ttl := cfg.NetworkNameCacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &NetworkID{
		prober:      prober,
		name:        cfg.LocalNetworkName,
		negativeTTL: ttl,
	}
}

// CurrentNetworkName returns the configured network name. A recent miss is
// answered from the negative cache without re-checking.
func (n *NetworkID) CurrentNetworkName(ctx context.Context) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.name != "" {
		return n.name, true
	}
	if time.Since(n.lastMissAt) < n.negativeTTL {
		return "", false
	}
	n.lastMissAt = time.Now()
	return "", false
}

// SetNetworkName updates the known network name, as delivered by config hot
// reload or an external network-change notification.
func (n *NetworkID) SetNetworkName(name string) {
	n.mu.Lock()
	n.name = name
	n.lastMissAt = time.Time{}
	n.mu.Unlock()
}

func (n *NetworkID) IsReachable(ctx context.Context, url string) bool {
	return n.prober.IsReachable(ctx, url)
}
