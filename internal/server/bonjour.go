package server

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

const (
	bonjourServiceType = "_noema._tcp"
	bonjourDomain      = "local."
)

// advertise publishes the service-discovery record for the bound port.
// Failure to advertise is logged, never fatal; the server is still
// reachable by direct address.
func (s *Server) advertise(serviceName string, port int, lanAddress string) {
	txt := []string{
		"version=1",
		fmt.Sprintf("url=%s", lanAddress),
	}

	record, err := zeroconf.Register(serviceName, bonjourServiceType, bonjourDomain, port, txt, nil)
	if err != nil {
		s.logger.Warn("Failed to advertise Bonjour service", "service", serviceName, "error", err)
		return
	}

	s.bonjour = record
	s.logger.Info("Advertising Bonjour service", "service", serviceName, "type", bonjourServiceType, "port", port)
}

func (s *Server) stopAdvertising() {
	if s.bonjour != nil {
		s.bonjour.Shutdown()
		s.bonjour = nil
	}
}
