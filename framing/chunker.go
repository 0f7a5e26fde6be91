package framing

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/opd-ai/midisock/interfaces"
	"github.com/opd-ai/midisock/limits"
	"github.com/opd-ai/midisock/packet"
	"github.com/sirupsen/logrus"
)

// ErrTransmit matches any *TransmitError.
var ErrTransmit = errors.New("transmit failed")

// TransmitError reports which packet of a message the transmitter rejected.
// Packets after Index were not sent.
type TransmitError struct {
	Index int   // Zero-based packet index that failed
	Total int   // Packets the message was split into
	Err   error // Underlying transmitter error
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit packet %d of %d: %v", e.Index+1, e.Total, e.Err)
}

func (e *TransmitError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransmit.
func (e *TransmitError) Is(target error) bool {
	return target == ErrTransmit
}

// ChunkerStats is a snapshot of outbound counters.
type ChunkerStats struct {
	Messages uint64 // Messages fully transmitted
	Packets  uint64 // Packets accepted by the transmitter
	Failures uint64 // Messages aborted by a transmit error
}

// Chunker splits outbound messages into packets and hands them to a
// Transmitter one at a time.
type Chunker struct {
	tx     interfaces.Transmitter
	sendMu sync.Mutex // keeps the packets of one message contiguous

	messages atomic.Uint64
	packets  atomic.Uint64
	failures atomic.Uint64
}

// NewChunker creates a chunker that sends through tx.
func NewChunker(tx interfaces.Transmitter) *Chunker {
	return &Chunker{tx: tx}
}

// Split partitions msg into packets of at most limits.MaxPacketPayload bytes
// using half-open ranges [i*N, min((i+1)*N, len(msg))). An empty message
// yields no packets.
func Split(msg []byte) []packet.Packet {
	packets := make([]packet.Packet, 0, limits.ChunkCount(len(msg)))
	_ = forEachChunk(msg, func(_, _ int, p packet.Packet) error {
		packets = append(packets, p)
		return nil
	})
	return packets
}

// forEachChunk builds each packet of msg in order and passes it to fn,
// stopping at the first error fn returns.
func forEachChunk(msg []byte, fn func(index, total int, p packet.Packet) error) error {
	total := limits.ChunkCount(len(msg))
	for i := 0; i < total; i++ {
		start := i * limits.MaxPacketPayload
		end := min(start+limits.MaxPacketPayload, len(msg))

		// end-start never exceeds MaxPacketPayload, so New cannot fail here.
		p, err := packet.New(msg[start:end])
		if err != nil {
			return err
		}
		if err := fn(i, total, p); err != nil {
			return err
		}
	}
	return nil
}

// Send transmits msg as an ordered packet sequence and returns once every
// packet has been handed to the transmitter. The first transmitter failure
// stops the message and is returned as a *TransmitError.
//
// Concurrent calls are serialized so packets of different messages never
// interleave on the wire. An empty message sends nothing.
func (c *Chunker) Send(msg []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if len(msg) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Send",
		}).Debug("Empty message, no packets sent")
		return nil
	}

	err := forEachChunk(msg, func(index, total int, p packet.Packet) error {
		if err := c.tx.Transmit(p); err != nil {
			return &TransmitError{Index: index, Total: total, Err: err}
		}
		c.packets.Add(1)
		return nil
	})
	if err != nil {
		c.failures.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"length":   len(msg),
			"error":    err.Error(),
		}).Warn("Message transmission aborted")
		return err
	}

	c.messages.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"length":   len(msg),
		"packets":  limits.ChunkCount(len(msg)),
	}).Debug("Message transmitted")

	return nil
}

// Stats returns a snapshot of the chunker counters.
func (c *Chunker) Stats() ChunkerStats {
	return ChunkerStats{
		Messages: c.messages.Load(),
		Packets:  c.packets.Load(),
		Failures: c.failures.Load(),
	}
}
