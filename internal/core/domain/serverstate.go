package domain

// ServerState is a snapshot of the embedded server's externally visible
// state. Port is non-zero only while Running is true; ReachableLANAddress is
// recomputed whenever the bound port, the network path, or the advertisement
// configuration changes.
type ServerState struct {
	Running             bool
	BindHost            string
	Port                int
	ReachableLANAddress string
}
