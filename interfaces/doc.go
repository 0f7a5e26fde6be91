// Package interfaces defines the narrow abstractions between the midisock
// framing core and the packet transport underneath it.
//
// # Core Interfaces
//
// [Transmitter] sends exactly one packet to the active destination. The
// framing layer calls it once per chunk, in order:
//
//	tx := interfaces.TransmitterFunc(func(p packet.Packet) error {
//	    payload, _ := p.Payload()
//	    return conn.Write(payload)
//	})
//
// [Receiver] accepts a [BatchHandler] that the transport invokes once per
// receive event, from its own goroutine.
//
// [EndpointSelector] exposes named destinations and sources and the
// currently selected index of each. Selection is always explicit; no
// implementation picks an endpoint on its own.
//
// [Port] combines all of the above with io.Closer and is what the root
// midisock.Socket is built on. The transport package provides in-memory and
// UDP implementations.
package interfaces
