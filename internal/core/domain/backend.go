package domain

import "time"

const (
	EndpointTypeStringOpenAI     = "openai"
	EndpointTypeStringOllama     = "ollama"
	EndpointTypeStringRelayLAN   = "relay-lan"
	EndpointTypeStringRelayCloud = "relay-cloud"
	EndpointTypeStringCustom     = "custom"
)

// EndpointType identifies the protocol dialect a remote backend speaks.
type EndpointType string

const (
	EndpointOpenAI     EndpointType = EndpointTypeStringOpenAI
	EndpointOllama     EndpointType = EndpointTypeStringOllama
	EndpointRelayLAN   EndpointType = EndpointTypeStringRelayLAN
	EndpointRelayCloud EndpointType = EndpointTypeStringRelayCloud
	EndpointCustom     EndpointType = EndpointTypeStringCustom
)

// IsRelay reports whether the backend is another gateway reached via the
// LAN/cloud relay pair rather than a plain HTTP inference server.
func (t EndpointType) IsRelay() bool {
	return t == EndpointRelayLAN || t == EndpointRelayCloud
}

func (t EndpointType) String() string {
	return string(t)
}

// RelayMetadata is the advertised identity of a relay host. Values are
// refreshed opportunistically from an external metadata source; RefreshedAt
// gates the minimum refresh interval.
type RelayMetadata struct {
	DeviceID    string
	NetworkName string
	LANURL      string
	AuthToken   string
	RefreshedAt time.Time
}

// RemoteBackend describes one externally configured inference backend.
// Values are treated as copy-on-write: refreshes produce a new value rather
// than mutating fields in place.
type RemoteBackend struct {
	Name           string
	Type           EndpointType
	BaseURL        string
	AuthHeader     string
	DefaultModel   string
	CustomModelIDs []string
	Relay          RelayMetadata
}

// WithRelayMetadata returns a copy of the backend carrying fresh relay
// metadata stamped with the current time.
func (b RemoteBackend) WithRelayMetadata(meta RelayMetadata) RemoteBackend {
	meta.RefreshedAt = time.Now()
	b.Relay = meta
	return b
}
