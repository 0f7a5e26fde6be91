package framing

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/opd-ai/midisock/packet"
	"github.com/sirupsen/logrus"
)

// Reassemble concatenates the declared payload of every packet in batch, in
// order. A malformed packet aborts the whole batch; no partial message is
// returned.
func Reassemble(batch packet.Batch) (packet.Message, error) {
	if len(batch) == 0 {
		return nil, packet.ErrEmptyBatch
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	msg := make(packet.Message, 0, batch.DeclaredLength())
	for _, p := range batch {
		msg = append(msg, p.Data[:p.Length]...)
	}

	return msg, nil
}

// ReceiverStats is a snapshot of inbound counters.
type ReceiverStats struct {
	Delivered uint64 // Messages handed to a callback
	Dropped   uint64 // Messages reassembled with no callback attached
	Malformed uint64 // Batches rejected during reassembly
	Bytes     uint64 // Total bytes delivered
}

// Receiver is the batch entry point a transport invokes once per receive
// event. It reassembles the batch and delivers the result to whatever
// handler the registry holds at that moment.
type Receiver struct {
	registry *Registry

	delivered atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
	bytes     atomic.Uint64
}

// NewReceiver creates a receiver delivering through registry.
func NewReceiver(registry *Registry) *Receiver {
	return &Receiver{registry: registry}
}

// HandleBatch reassembles batch and invokes the attached handler exactly
// once. Errors are logged and counted; they never propagate to the caller,
// so one bad batch cannot disturb the transport read loop.
func (r *Receiver) HandleBatch(batch packet.Batch) {
	msg, err := Reassemble(batch)
	if err != nil {
		r.malformed.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "HandleBatch",
			"packets":  len(batch),
			"error":    err.Error(),
		}).Warn("Discarding batch")
		return
	}

	if logrus.IsLevelEnabled(logrus.TraceLevel) {
		logrus.WithFields(logrus.Fields{
			"function": "HandleBatch",
			"dump":     hexDump(msg),
		}).Trace("Reassembled message")
	}

	if !r.registry.Deliver(msg) {
		r.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "HandleBatch",
			"length":   len(msg),
		}).Debug("No handler attached, message dropped")
		return
	}

	r.delivered.Add(1)
	r.bytes.Add(uint64(len(msg)))
}

// Stats returns a snapshot of the receiver counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
		Malformed: r.malformed.Load(),
		Bytes:     r.bytes.Load(),
	}
}

func hexDump(msg []byte) string {
	var sb strings.Builder
	sb.Grow(len(msg) * 5)
	for _, b := range msg {
		fmt.Fprintf(&sb, "0x%02X ", b)
	}
	return strings.TrimSpace(sb.String())
}
