package util

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLoopbackHost(t *testing.T) {
	assert.True(t, IsLoopbackHost("127.0.0.1"))
	assert.True(t, IsLoopbackHost("::1"))
	assert.True(t, IsLoopbackHost("localhost"))
	assert.True(t, IsLoopbackHost("LOCALHOST"))
	assert.False(t, IsLoopbackHost("0.0.0.0"))
	assert.False(t, IsLoopbackHost("192.168.1.10"))
	assert.False(t, IsLoopbackHost("example.com"))
}

func TestSameIPv4Subnet(t *testing.T) {
	assert.True(t, SameIPv4Subnet(net.ParseIP("192.168.1.10"), net.ParseIP("192.168.1.200")))
	assert.False(t, SameIPv4Subnet(net.ParseIP("192.168.1.10"), net.ParseIP("192.168.2.10")))
	assert.False(t, SameIPv4Subnet(net.ParseIP("10.0.0.1"), net.ParseIP("192.168.1.1")))
	assert.False(t, SameIPv4Subnet(net.ParseIP("fe80::1"), net.ParseIP("192.168.1.1")), "IPv6 never matches the IPv4 heuristic")
}
