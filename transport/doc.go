// Package transport provides the packet ports a midisock Socket runs on.
//
// # Architecture
//
// Every port implements interfaces.Port: it transmits one packet at a time
// to the active destination and hands inbound packets to a single batch
// handler from its own goroutine. Endpoint bookkeeping lives in Directory,
// which each port embeds:
//
//	port.AddDestination("synth", addr)
//	port.AddSource("keyboard", addr)
//	_ = port.SetActiveDestination(0)
//	_ = port.SetActiveSource(0)
//
// Nothing is selected until the caller chooses an index. Packets from any
// address other than the active source are dropped.
//
// # Memory Ports
//
// MemNetwork connects MemPorts inside one process:
//
//	network := NewMemNetwork()
//	a, _ := network.Open("a")
//	b, _ := network.Open("b")
//
// Packets queued while a receive loop is busy are coalesced into one batch
// of up to limits.MaxBatchPackets packets.
//
// # UDP Ports
//
// UDPTransport sends each packet as one RTP datagram (github.com/pion/rtp)
// with payload type PayloadTypeBatch. The payload is packet.EncodeBatch of
// a one-packet batch. Sequence numbers increase by one per datagram and
// gaps are logged, never repaired. Timestamps are always zero.
//
// # Secure Sessions
//
// A UDPTransport built with a static private key answers Noise IK
// handshakes (payload type PayloadTypeHandshake) as responder. SecureDial
// runs the initiator side:
//
//	err := udp.SecureDial(ctx, peerPublicKey)
//
// Once a session exists, batch payloads are sealed with ChaCha20-Poly1305.
// The cipher nonces are implicit, so a lost or reordered datagram makes the
// datagrams after it undecryptable until a new handshake.
//
// # Thread Safety
//
// Handler slots and session state are guarded by sync.RWMutex. Transmit is
// safe for concurrent use; one mutex orders sequence numbers and nonces.
package transport
