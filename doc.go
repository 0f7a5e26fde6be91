// Package midisock frames arbitrary byte messages over a packet transport
// whose packets carry at most 256 payload bytes.
//
// Outbound messages are split into consecutive packets and transmitted in
// order. Each inbound receive event, a batch of one or more packets, is
// reassembled into a single message and handed to the attached handler.
// Message boundaries are not preserved: a long message may arrive as
// several messages when the transport delivers its packets in separate
// batches.
//
// # Getting Started
//
// Build a socket from a TOML config and choose endpoints by index:
//
//	cfg, err := config.Load("midisock.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sock, err := midisock.NewFromConfig(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sock.Close()
//
//	_ = sock.SetActiveDestination(0)
//	_ = sock.SetActiveSource(0)
//
//	sock.Attach(func(msg packet.Message) {
//	    fmt.Printf("received %d bytes\n", len(msg))
//	})
//
//	if err := sock.SendBytes([]byte{0x90, 0x3C, 0x7F}); err != nil {
//	    log.Printf("send failed: %v", err)
//	}
//
// Any interfaces.Port works in place of the UDP transport; the transport
// package also provides an in-process MemNetwork.
//
// # Secure Sessions
//
// When the config carries [noise] keys, SecureDial performs a Noise IK
// handshake with the configured peer and seals every later datagram.
//
// # Thread Safety
//
// SendBytes may be called from any goroutine; the packets of one message
// are never interleaved with another's. Handlers run on the transport's
// receive goroutine. Attach may be called at any time and takes effect for
// the next delivered message.
//
// # Error Handling
//
// SendBytes is fail-fast and returns a *framing.TransmitError naming the
// packet that failed. Malformed inbound batches are logged through logrus
// and counted in Stats; they never reach the handler.
package midisock
