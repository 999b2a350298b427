package domain

// TransportKind tags the TransportDecision union.
type TransportKind int

const (
	// TransportDirect means the backend is not a relay; requests go straight
	// to its base URL.
	TransportDirect TransportKind = iota
	// TransportLAN means the relay host was matched on the local network and
	// is reached via its advertised LAN URL.
	TransportLAN
	// TransportCloudRelay means requests are handed to the store-and-forward
	// cloud relay channel.
	TransportCloudRelay
)

// TransportDecision is the selector's current choice of how to reach a
// remote backend. NetworkName carries the matched network label for LAN
// decisions; it is empty when the match came from a bare reachability probe.
type TransportDecision struct {
	Kind        TransportKind
	NetworkName string
}

func Direct() TransportDecision {
	return TransportDecision{Kind: TransportDirect}
}

func LAN(networkName string) TransportDecision {
	return TransportDecision{Kind: TransportLAN, NetworkName: networkName}
}

func CloudRelay() TransportDecision {
	return TransportDecision{Kind: TransportCloudRelay}
}

func (d TransportDecision) String() string {
	switch d.Kind {
	case TransportDirect:
		return "direct"
	case TransportLAN:
		if d.NetworkName == "" {
			return "lan"
		}
		return "lan(" + d.NetworkName + ")"
	case TransportCloudRelay:
		return "cloud-relay"
	default:
		return "unknown"
	}
}
