package ports

import (
	"context"

	"github.com/armin976/noema-gateway/internal/core/domain"
)

// NetworkIdentity abstracts the host's network introspection so transport
// selection stays unit-testable without radio or OS access.
type NetworkIdentity interface {
	// CurrentNetworkName returns the Wi-Fi network name the host is joined
	// to, with ok=false when none is known.
	CurrentNetworkName(ctx context.Context) (name string, ok bool)
	// IsReachable probes url with a short timeout and no connectivity wait.
	IsReachable(ctx context.Context, url string) bool
}

// RelayChannel is the out-of-band store-and-forward path to a relay host.
// Exchange blocks until the host's single complete reply for the
// conversation arrives; it never streams token-by-token.
type RelayChannel interface {
	Exchange(ctx context.Context, deviceID, conversationID string, payload []byte) (string, error)
}

// BackendMetadataSource refreshes a relay backend's advertised identity
// (network name, LAN URL, auth token) from an external catalogue.
type BackendMetadataSource interface {
	Refresh(ctx context.Context, backend domain.RemoteBackend) (domain.RemoteBackend, error)
}

// TransportObserver is notified whenever the selector's decision changes.
// initial is true for the first decision of a monitoring run.
type TransportObserver func(decision domain.TransportDecision, initial bool)
