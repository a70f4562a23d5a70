// Package telemetry fans planner tick bundles out to streaming clients. The
// canonical internal model is the planner Status; the publisher fans ticks
// out to clients registered through StreamTicks, dropping frames for slow
// consumers rather than stalling the control loop. It runs a gRPC server on
// the configured address but registers no service on it, so ticks reach only
// in-process callers of StreamTicks.
package telemetry

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/banshee-data/navstack/internal/bus"
	"github.com/banshee-data/navstack/internal/dwa"
	"github.com/banshee-data/navstack/internal/monitoring"
	"github.com/banshee-data/navstack/internal/msg"
)

// Config holds configuration for the telemetry gRPC server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061").
	ListenAddr string

	// MaxClients caps concurrent streaming clients.
	MaxClients int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr: "localhost:50061",
		MaxClients: 5,
	}
}

// Publisher manages the gRPC server and tick streaming.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener
	bus      *bus.Bus

	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	tickCount   atomic.Uint64
	clientCount atomic.Int32

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type clientStream struct {
	id     string
	tickCh chan dwa.Status
	doneCh chan struct{}
}

// NewPublisher creates a Publisher reading planner ticks from the bus.
func NewPublisher(cfg Config, b *bus.Bus) *Publisher {
	return &Publisher{
		config:  cfg,
		bus:     b,
		clients: make(map[string]*clientStream),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the gRPC server and the broadcast loop.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("telemetry publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis

	p.server = grpc.NewServer()
	// TODO: register the TelemetryService server once telemetry.proto is
	// generated; until then clients attach via StreamTicks directly.

	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		monitoring.Logf("[telemetry] gRPC server listening on %s", p.config.ListenAddr)
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			monitoring.Logf("[telemetry] gRPC server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	close(p.stopCh)

	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}
	p.wg.Wait()
	monitoring.Logf("[telemetry] gRPC server stopped")
}

// broadcastLoop distributes planner ticks to all connected clients.
func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	ticks, cancel := p.bus.Subscribe(msg.TopicPlannerStatus, 64)
	defer cancel()

	for {
		select {
		case <-p.stopCh:
			return
		case m, ok := <-ticks:
			if !ok {
				return
			}
			st, ok := m.Payload.(dwa.Status)
			if !ok {
				continue
			}
			p.tickCount.Add(1)
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.tickCh <- st:
				default:
					// Client is slow, drop the tick for this client.
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

func (p *Publisher) addClient(id string) (*clientStream, error) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil, fmt.Errorf("too many telemetry clients (max %d)", p.config.MaxClients)
	}
	client := &clientStream{
		id:     id,
		tickCh: make(chan dwa.Status, 16),
		doneCh: make(chan struct{}),
	}
	p.clients[id] = client
	p.clientCount.Add(1)
	monitoring.Logf("[telemetry] client connected: %s (total: %d)", id, p.clientCount.Load())
	return client, nil
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	if client, ok := p.clients[id]; ok {
		close(client.doneCh)
		delete(p.clients, id)
		p.clientsMu.Unlock()
		p.clientCount.Add(-1)
		monitoring.Logf("[telemetry] client disconnected: %s (remaining: %d)", id, p.clientCount.Load())
		return
	}
	p.clientsMu.Unlock()
}

// StreamTicks delivers planner ticks to the callback until the context or
// the publisher stops. No RPC is registered that calls it; in-process clients
// call it directly.
func (p *Publisher) StreamTicks(ctx context.Context, clientID string, send func(dwa.Status) error) error {
	client, err := p.addClient(clientID)
	if err != nil {
		return err
	}
	defer p.removeClient(clientID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case st := <-client.tickCh:
			if err := send(st); err != nil {
				return err
			}
		}
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		TickCount:   p.tickCount.Load(),
		ClientCount: p.clientCount.Load(),
		Running:     p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	TickCount   uint64
	ClientCount int32
	Running     bool
}
