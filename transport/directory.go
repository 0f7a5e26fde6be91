package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
)

var (
	// ErrNoSuchEndpoint indicates a selection index outside the endpoint list
	ErrNoSuchEndpoint = errors.New("no such endpoint")

	// ErrNoDestination indicates a transmit with no active destination
	ErrNoDestination = errors.New("no active destination")

	// ErrClosed indicates use of a closed port
	ErrClosed = errors.New("port closed")
)

// Endpoint is a named peer address.
type Endpoint struct {
	Name string
	Addr net.Addr
}

// Directory tracks the known destinations and sources of a port and which
// of each is active. It implements interfaces.EndpointSelector and is
// embedded by every transport.
type Directory struct {
	mu           sync.RWMutex
	destinations []Endpoint
	sources      []Endpoint
	activeDest   int
	activeSource int
}

// NewDirectory creates an empty directory with nothing selected.
func NewDirectory() *Directory {
	return &Directory{activeDest: -1, activeSource: -1}
}

// AddDestination registers a destination and returns its index.
func (d *Directory) AddDestination(name string, addr net.Addr) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destinations = append(d.destinations, Endpoint{Name: name, Addr: addr})
	return len(d.destinations) - 1
}

// AddSource registers a source and returns its index.
func (d *Directory) AddSource(name string, addr net.Addr) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sources = append(d.sources, Endpoint{Name: name, Addr: addr})
	return len(d.sources) - 1
}

// Destinations returns destination display names in index order.
func (d *Directory) Destinations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return names(d.destinations)
}

// Sources returns source display names in index order.
func (d *Directory) Sources() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return names(d.sources)
}

// SetActiveDestination selects the destination used by Transmit.
func (d *Directory) SetActiveDestination(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.destinations) {
		return fmt.Errorf("%w: destination %d of %d", ErrNoSuchEndpoint, index, len(d.destinations))
	}
	d.activeDest = index
	return nil
}

// SetActiveSource selects the only source whose packets are delivered.
func (d *Directory) SetActiveSource(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.sources) {
		return fmt.Errorf("%w: source %d of %d", ErrNoSuchEndpoint, index, len(d.sources))
	}
	d.activeSource = index
	return nil
}

// ActiveDestination returns the selected destination index, or -1.
func (d *Directory) ActiveDestination() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeDest
}

// ActiveSource returns the selected source index, or -1.
func (d *Directory) ActiveSource() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeSource
}

// ActiveDestinationAddr returns the address of the selected destination.
func (d *Directory) ActiveDestinationAddr() (net.Addr, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.activeDest < 0 {
		return nil, ErrNoDestination
	}
	return d.destinations[d.activeDest].Addr, nil
}

// IsActiveSource reports whether addr is the selected source.
func (d *Directory) IsActiveSource(addr net.Addr) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.activeSource < 0 || addr == nil {
		return false
	}
	src := d.sources[d.activeSource].Addr
	return src.Network() == addr.Network() && src.String() == addr.String()
}

func names(endpoints []Endpoint) []string {
	out := make([]string, len(endpoints))
	for i, ep := range endpoints {
		out[i] = ep.Name
	}
	return out
}
