package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armin976/noema-gateway/internal/config"
	"github.com/armin976/noema-gateway/internal/core/domain"
)

type fakeNetID struct {
	mu        sync.Mutex
	name      string
	known     bool
	reachable map[string]bool
	probed    []string
}

func (f *fakeNetID) CurrentNetworkName(ctx context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name, f.known
}

func (f *fakeNetID) IsReachable(ctx context.Context, url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, url)
	return f.reachable[url]
}

func (f *fakeNetID) setName(name string) {
	f.mu.Lock()
	f.name = name
	f.mu.Unlock()
}

func relayBackend(networkName, lanURL string) domain.RemoteBackend {
	return domain.RemoteBackend{
		Name: "phone",
		Type: domain.EndpointRelayLAN,
		Relay: domain.RelayMetadata{
			DeviceID:    "device-7",
			NetworkName: networkName,
			LANURL:      lanURL,
			RefreshedAt: time.Now(),
		},
	}
}

func newTestSelector(cfg config.TransportConfig, netid *fakeNetID) *Selector {
	return NewSelector(cfg, netid, nil, nil)
}

func TestDecide_NonRelayIsAlwaysDirect(t *testing.T) {
	s := newTestSelector(config.TransportConfig{}, &fakeNetID{})

	backend := domain.RemoteBackend{Type: domain.EndpointOpenAI, BaseURL: "http://host"}
	assert.Equal(t, domain.Direct(), s.Decide(context.Background(), backend))
}

func TestDecide_NetworkNameMatchIsCaseInsensitive(t *testing.T) {
	netid := &fakeNetID{name: "Home", known: true}
	s := newTestSelector(config.TransportConfig{}, netid)

	decision := s.Decide(context.Background(), relayBackend("home", "http://192.168.1.5:8889"))
	assert.Equal(t, domain.LAN("Home"), decision, "a match is labelled with the local network name")
	assert.Empty(t, netid.probed, "a name match decides without probing")
}

func TestDecide_NetworkNameMismatchGoesToCloud(t *testing.T) {
	netid := &fakeNetID{name: "Office", known: true, reachable: map[string]bool{"http://192.168.1.5:8889": true}}
	s := newTestSelector(config.TransportConfig{}, netid)

	decision := s.Decide(context.Background(), relayBackend("Home", "http://192.168.1.5:8889"))
	assert.Equal(t, domain.CloudRelay(), decision)
	assert.Empty(t, netid.probed, "a confirmed mismatch skips the probe")
}

func TestDecide_ProbeOnlyReachabilityYieldsUnnamedLAN(t *testing.T) {
	// No network name on either side, peer host outside every local subnet:
	// only the probe can answer
	netid := &fakeNetID{reachable: map[string]bool{"http://203.0.113.9:8889": true}}
	s := newTestSelector(config.TransportConfig{}, netid)

	decision := s.Decide(context.Background(), relayBackend("", "http://203.0.113.9:8889"))
	assert.Equal(t, domain.LAN(""), decision)
	assert.Equal(t, domain.TransportLAN, decision.Kind)
	assert.Empty(t, decision.NetworkName)
}

func TestDecide_UnreachableFallsToCloud(t *testing.T) {
	netid := &fakeNetID{}
	s := newTestSelector(config.TransportConfig{}, netid)

	decision := s.Decide(context.Background(), relayBackend("", "http://203.0.113.9:8889"))
	assert.Equal(t, domain.CloudRelay(), decision)
	assert.NotEmpty(t, netid.probed)
}

func TestDecide_NoLANURLGoesStraightToCloud(t *testing.T) {
	netid := &fakeNetID{name: "Home", known: true}
	s := newTestSelector(config.TransportConfig{}, netid)

	decision := s.Decide(context.Background(), relayBackend("Home", ""))
	assert.Equal(t, domain.CloudRelay(), decision)
}

func TestDecide_ManualOverrideAttemptsLANWhenReachable(t *testing.T) {
	netid := &fakeNetID{
		name:      "Elsewhere",
		known:     true,
		reachable: map[string]bool{"http://192.168.1.5:8889": true},
	}
	s := newTestSelector(config.TransportConfig{ManualLANOverride: true}, netid)

	decision := s.Decide(context.Background(), relayBackend("Home", "http://192.168.1.5:8889"))
	assert.Equal(t, domain.LAN("Home"), decision)
}

func TestDecide_ManualOverrideUnreachableFallsToCloud(t *testing.T) {
	netid := &fakeNetID{name: "Home", known: true}
	s := newTestSelector(config.TransportConfig{ManualLANOverride: true}, netid)

	decision := s.Decide(context.Background(), relayBackend("Home", "http://192.168.1.5:8889"))
	assert.Equal(t, domain.CloudRelay(), decision)
	assert.NotEmpty(t, netid.probed, "the override must still probe the address")
}

type scriptedMetadata struct {
	result domain.RemoteBackend
	calls  int
}

func (s *scriptedMetadata) Refresh(ctx context.Context, backend domain.RemoteBackend) (domain.RemoteBackend, error) {
	s.calls++
	return s.result, nil
}

func TestMonitor_NotifiesInitialDecisionAndTransitions(t *testing.T) {
	netid := &fakeNetID{name: "Home", known: true}
	s := newTestSelector(config.TransportConfig{CheckInterval: 10 * time.Millisecond}, netid)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type observed struct {
		decision domain.TransportDecision
		initial  bool
	}
	events := make(chan observed, 16)

	go s.Monitor(ctx, relayBackend("Home", "http://192.168.1.5:8889"),
		func(decision domain.TransportDecision, initial bool) {
			events <- observed{decision, initial}
		}, nil)

	first := <-events
	assert.True(t, first.initial)
	assert.Equal(t, domain.LAN("Home"), first.decision)

	// Simulate leaving the network; the next tick should flip to cloud
	netid.setName("CoffeeShop")
	s.NotifyNetworkChange()

	select {
	case next := <-events:
		assert.False(t, next.initial)
		assert.Equal(t, domain.CloudRelay(), next.decision)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a transport transition after the network change")
	}
}

func TestMonitor_ReturnsImmediatelyForNonRelay(t *testing.T) {
	s := newTestSelector(config.TransportConfig{}, &fakeNetID{})

	done := make(chan struct{})
	go func() {
		s.Monitor(context.Background(), domain.RemoteBackend{Type: domain.EndpointOpenAI}, nil, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor must not block for non-relay backends")
	}
}

func TestMonitor_RefreshesStaleMetadata(t *testing.T) {
	stale := relayBackend("Home", "http://192.168.1.5:8889")
	stale.Relay.RefreshedAt = time.Time{}

	fresh := relayBackend("Home", "http://192.168.1.6:8889")
	metadata := &scriptedMetadata{result: fresh}

	netid := &fakeNetID{name: "Home", known: true}
	s := NewSelector(config.TransportConfig{CheckInterval: time.Hour}, netid, metadata, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var refreshed []domain.RemoteBackend
	started := make(chan struct{})
	go s.Monitor(ctx, stale,
		func(domain.TransportDecision, bool) { close(started) },
		func(b domain.RemoteBackend) { refreshed = append(refreshed, b) })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never produced an initial decision")
	}

	require.Equal(t, 1, metadata.calls)
	require.Len(t, refreshed, 1)
	assert.Equal(t, "http://192.168.1.6:8889", refreshed[0].Relay.LANURL)
}
