// Package discovery broadcasts the device identity over UDP so client apps
// can find the simulator on the LAN without configuration.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/skyfield-data/originsim/internal/monitoring"
	"github.com/skyfield-data/originsim/internal/timeutil"
)

const (
	// DefaultPort is the UDP broadcast port clients listen on.
	DefaultPort = 55555
	// DefaultInterval is the beacon period.
	DefaultInterval = 5 * time.Second
)

// Beacon periodically announces the device on every non-loopback IPv4
// interface.
type Beacon struct {
	serial   string
	port     int
	interval time.Duration
	clock    timeutil.Clock

	// hooks for tests
	interfaceAddrs func() ([]net.Addr, error)
	sendDatagram   func(dst *net.UDPAddr, payload []byte) error

	loggedSendFailure bool
}

// NewBeacon builds a beacon announcing the given device serial number.
func NewBeacon(serial string, port int, interval time.Duration, clock timeutil.Clock) *Beacon {
	return &Beacon{
		serial:         serial,
		port:           port,
		interval:       interval,
		clock:          clock,
		interfaceAddrs: net.InterfaceAddrs,
		sendDatagram:   sendUDP,
	}
}

// Payload renders the identity string for one local address.
func (b *Beacon) Payload(localIP net.IP) []byte {
	return []byte(fmt.Sprintf("Identity:Origin-%sZ Origin IP Address = %s", b.serial, localIP))
}

// Run broadcasts until the context is cancelled.
func (b *Beacon) Run(ctx context.Context) error {
	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			b.announce()
		}
	}
}

// announce sends one identity datagram per eligible interface address.
func (b *Beacon) announce() {
	addrs, err := b.interfaceAddrs()
	if err != nil {
		monitoring.Logf("discovery: interface enumeration failed: %v", err)
		return
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipnet.IP.To4()
		if ip4 == nil || ip4.IsLoopback() {
			continue
		}
		dst := &net.UDPAddr{IP: broadcastAddr(ip4, ipnet.Mask), Port: b.port}
		if err := b.sendDatagram(dst, b.Payload(ip4)); err != nil {
			// Broadcast failures recur on hosts that filter them; log once.
			if !b.loggedSendFailure {
				b.loggedSendFailure = true
				monitoring.Logf("discovery: broadcast to %s failed: %v", dst, err)
			}
		}
	}
}

// broadcastAddr computes the directed broadcast address for an IPv4 network.
func broadcastAddr(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	out := make(net.IP, 4)
	if len(mask) == 16 {
		mask = mask[12:]
	}
	for i := 0; i < 4; i++ {
		out[i] = ip4[i] | ^mask[i]
	}
	return out
}

func sendUDP(dst *net.UDPAddr, payload []byte) error {
	conn, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", dst, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("failed to send datagram to %s: %w", dst, err)
	}
	return nil
}
