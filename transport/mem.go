package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opd-ai/midisock/interfaces"
	"github.com/opd-ai/midisock/limits"
	"github.com/opd-ai/midisock/packet"
	"github.com/sirupsen/logrus"
)

// ErrPortExists indicates a MemNetwork port name is already taken.
var ErrPortExists = errors.New("port name already in use")

// memInboxSize bounds packets queued for a MemPort before Transmit blocks.
const memInboxSize = 4 * limits.MaxBatchPackets

// MemAddr addresses a port on a MemNetwork.
type MemAddr string

// Network returns "mem".
func (a MemAddr) Network() string { return "mem" }

func (a MemAddr) String() string { return string(a) }

// MemNetwork connects MemPorts within one process.
type MemNetwork struct {
	mu    sync.RWMutex
	ports map[string]*MemPort
}

// NewMemNetwork creates an empty in-process network.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{ports: make(map[string]*MemPort)}
}

// Open creates a port reachable at MemAddr(name) and starts its receive loop.
func (n *MemNetwork) Open(name string) (*MemPort, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.ports[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrPortExists, name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	port := &MemPort{
		Directory: NewDirectory(),
		addr:      MemAddr(name),
		network:   n,
		inbox:     make(chan memDelivery, memInboxSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	n.ports[name] = port

	go port.receiveLoop()

	logrus.WithFields(logrus.Fields{
		"function": "Open",
		"port":     name,
	}).Debug("Opened memory port")

	return port, nil
}

func (n *MemNetwork) lookup(name string) (*MemPort, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	port, ok := n.ports[name]
	return port, ok
}

func (n *MemNetwork) remove(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.ports, name)
}

type memDelivery struct {
	from MemAddr
	pkt  packet.Packet
}

// MemPort is an in-process port. Packets queued while its receive loop is
// busy are coalesced into one batch, up to limits.MaxBatchPackets.
type MemPort struct {
	*Directory

	addr    MemAddr
	network *MemNetwork
	inbox   chan memDelivery

	mu      sync.RWMutex
	handler interfaces.BatchHandler

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ interfaces.Port = (*MemPort)(nil)

// Addr returns the address peers use to reach this port.
func (p *MemPort) Addr() MemAddr {
	return p.addr
}

// RegisterBatchHandler replaces the handler for subsequent batches.
func (p *MemPort) RegisterBatchHandler(handler interfaces.BatchHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = handler
}

// Transmit copies pkt to the active destination's inbox, blocking while
// that inbox is full.
func (p *MemPort) Transmit(pkt packet.Packet) error {
	if p.ctx.Err() != nil {
		return ErrClosed
	}
	if err := pkt.Validate(); err != nil {
		return err
	}

	addr, err := p.ActiveDestinationAddr()
	if err != nil {
		return err
	}
	peer, ok := p.network.lookup(addr.String())
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDestination, addr)
	}

	storage := make([]byte, len(pkt.Data))
	copy(storage, pkt.Data)
	delivery := memDelivery{from: p.addr, pkt: packet.Packet{Data: storage, Length: pkt.Length}}

	select {
	case peer.inbox <- delivery:
		return nil
	case <-peer.ctx.Done():
		return fmt.Errorf("%w: %s", ErrClosed, addr)
	case <-p.ctx.Done():
		return ErrClosed
	}
}

// Close stops the receive loop and removes the port from its network.
func (p *MemPort) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
		p.network.remove(string(p.addr))
	})
	return nil
}

func (p *MemPort) receiveLoop() {
	defer close(p.done)

	for {
		select {
		case <-p.ctx.Done():
			return
		case first := <-p.inbox:
			batch := p.accept(make(packet.Batch, 0, 1), first)
			batch = p.drain(batch)
			if len(batch) > 0 {
				p.dispatch(batch)
			}
		}
	}
}

// drain appends whatever is already queued without blocking.
func (p *MemPort) drain(batch packet.Batch) packet.Batch {
	for len(batch) < limits.MaxBatchPackets {
		select {
		case next := <-p.inbox:
			batch = p.accept(batch, next)
		default:
			return batch
		}
	}
	return batch
}

// accept appends d to batch when it comes from the active source.
func (p *MemPort) accept(batch packet.Batch, d memDelivery) packet.Batch {
	if !p.IsActiveSource(d.from) {
		logrus.WithFields(logrus.Fields{
			"function": "accept",
			"port":     string(p.addr),
			"from":     string(d.from),
		}).Debug("Dropping packet from inactive source")
		return batch
	}
	return append(batch, d.pkt)
}

func (p *MemPort) dispatch(batch packet.Batch) {
	p.mu.RLock()
	handler := p.handler
	p.mu.RUnlock()

	if handler != nil {
		handler(batch)
	}
}
