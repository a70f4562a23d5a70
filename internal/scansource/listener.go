// Package scansource receives laser scans from an external driver over UDP.
// Each datagram carries one JSON-encoded scan frame; parsed scans are
// published on the scan topic.
package scansource

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/banshee-data/navstack/internal/bus"
	"github.com/banshee-data/navstack/internal/monitoring"
	"github.com/banshee-data/navstack/internal/msg"
)

// UDPListener reads scan datagrams and publishes them on the bus.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	bus         *bus.Bus

	received uint64
	dropped  uint64
}

// NewUDPListener builds a listener for the given UDP address.
func NewUDPListener(address string, b *bus.Bus) *UDPListener {
	return &UDPListener{
		address:     address,
		rcvBuf:      1 << 20,
		logInterval: 30 * time.Second,
		bus:         b,
	}
}

// Run receives datagrams until ctx is cancelled.
func (l *UDPListener) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("resolve scan listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen for scans: %w", err)
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
		monitoring.Logf("[scan] could not grow receive buffer: %v", err)
	}
	monitoring.Logf("[scan] listening on %s", l.address)

	// Closing the connection unblocks the read when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 65536)
	lastLog := time.Now()
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read scan datagram: %w", err)
		}

		var scan msg.LaserScan
		if err := json.Unmarshal(buf[:n], &scan); err != nil || len(scan.Ranges) == 0 {
			l.dropped++
			monitoring.Tracef("[scan] dropped malformed datagram (%d bytes)", n)
			continue
		}
		if scan.Stamp.IsZero() {
			scan.Stamp = time.Now()
		}

		l.received++
		l.bus.Publish(msg.TopicScan, scan.Stamp, scan)

		if time.Since(lastLog) > l.logInterval {
			monitoring.Logf("[scan] %d scans received, %d dropped", l.received, l.dropped)
			lastLog = time.Now()
		}
	}
}
