package interfaces

import (
	"io"

	"github.com/opd-ai/midisock/packet"
)

// Transmitter sends one packet over the currently active destination.
type Transmitter interface {
	// Transmit sends a single packet. It must not retain p.Data after returning.
	Transmit(p packet.Packet) error
}

// TransmitterFunc adapts an ordinary function to the Transmitter interface.
type TransmitterFunc func(p packet.Packet) error

// Transmit calls f(p).
func (f TransmitterFunc) Transmit(p packet.Packet) error {
	return f(p)
}

// BatchHandler processes one receive event. It is invoked on a
// transport-owned goroutine.
type BatchHandler func(batch packet.Batch)

// Receiver delivers inbound packet batches to a registered handler.
type Receiver interface {
	// RegisterBatchHandler replaces the handler for subsequent batches.
	RegisterBatchHandler(handler BatchHandler)
}

// EndpointSelector enumerates named endpoints and tracks the active
// destination and source. Indexes are positions in the enumerated lists;
// -1 means no selection.
type EndpointSelector interface {
	// Destinations returns the display names of known destinations
	Destinations() []string

	// SetActiveDestination selects the destination used by Transmit
	SetActiveDestination(index int) error

	// ActiveDestination returns the selected destination index
	ActiveDestination() int

	// Sources returns the display names of known sources
	Sources() []string

	// SetActiveSource connects the source whose packets are delivered
	SetActiveSource(index int) error

	// ActiveSource returns the selected source index
	ActiveSource() int
}

// Port is a complete transport session: send, receive, endpoint
// selection and shutdown.
type Port interface {
	Transmitter
	Receiver
	EndpointSelector
	io.Closer
}
