package server

import (
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/armin976/noema-gateway/internal/util"
)

// Interface priority for LAN address selection. Lower wins.
const (
	priorityPrimaryWireless = 0
	priorityWired           = 1
	priorityPeerToPeer      = 2
	priorityOther           = 3
)

type lanCandidate struct {
	name     string
	ip       net.IP
	priority int
}

// interfacePriority classifies an interface by its conventional name. The
// primary wireless link is preferred, then other wired/wireless links, with
// peer-to-peer, tunnel and low-latency links last since peers usually
// cannot route to them.
func interfacePriority(name string) int {
	lower := strings.ToLower(name)

	for _, prefix := range []string{"awdl", "llw", "p2p", "utun", "tun", "tap", "wg", "ipsec"} {
		if strings.HasPrefix(lower, prefix) {
			return priorityPeerToPeer
		}
	}

	if lower == "en0" || strings.HasPrefix(lower, "wlan") || strings.HasPrefix(lower, "wl") || strings.HasPrefix(lower, "wifi") {
		return priorityPrimaryWireless
	}

	for _, prefix := range []string{"en", "eth", "em", "eno", "enp", "bridge"} {
		if strings.HasPrefix(lower, prefix) {
			return priorityWired
		}
	}

	return priorityOther
}

// resolveLANAddress computes the URL other devices on the local network can
// use to reach the server. A loopback bind host short-circuits enumeration.
// Returns "" when no suitable interface exists.
func resolveLANAddress(bindHost string, port int) string {
	if port <= 0 {
		return ""
	}
	if util.IsLoopbackHost(bindHost) {
		return fmt.Sprintf("http://127.0.0.1:%d", port)
	}

	candidates := enumerateLANCandidates()
	if len(candidates) == 0 {
		return ""
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].priority != candidates[j].priority {
			return candidates[i].priority < candidates[j].priority
		}
		return candidates[i].name < candidates[j].name
	})

	return fmt.Sprintf("http://%s:%d", candidates[0].ip.String(), port)
}

func enumerateLANCandidates() []lanCandidate {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var candidates []lanCandidate
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			candidates = append(candidates, lanCandidate{
				name:     iface.Name,
				ip:       ip4,
				priority: interfacePriority(iface.Name),
			})
		}
	}
	return candidates
}
