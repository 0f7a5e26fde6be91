// Package framing implements the byte-stream framing protocol on top of a
// packet transport whose packets carry at most limits.MaxPacketPayload bytes.
//
// # Outbound
//
// A [Chunker] splits a message into packets using half-open ranges and
// transmits them in order through an interfaces.Transmitter:
//
//	chunker := framing.NewChunker(port)
//	if err := chunker.Send(data); err != nil {
//	    // errors.Is(err, framing.ErrTransmit)
//	}
//
// A message whose length is an exact multiple of the packet size produces no
// trailing empty packet. An empty message produces no packets at all.
// Sending is fail-fast: the first transmit error stops the message.
//
// # Inbound
//
// A [Receiver] is registered with the transport as its batch handler. For
// every batch it calls [Reassemble], which concatenates exactly the declared
// bytes of each packet, and hands the result to the handler held by a
// [Registry]. One handler call per batch, never per packet:
//
//	registry := &framing.Registry{}
//	receiver := framing.NewReceiver(registry)
//	port.RegisterBatchHandler(receiver.HandleBatch)
//	registry.Attach(func(msg packet.Message) { ... })
//
// A batch holding a malformed packet is dropped whole and counted; the
// handler is not called and later batches are unaffected.
//
// # Thread Safety
//
// [Registry] uses an atomic pointer so Attach may race freely with delivery.
// [Chunker.Send] serializes concurrent callers. [Reassemble] is pure.
package framing
