// Package noise secures midisock transport sessions with the Noise IK
// handshake (Curve25519, ChaCha20-Poly1305, SHA256) from flynn/noise.
//
// The initiator must already know the responder's static public key, which
// is the normal case for a configured destination:
//
//	Initiator                              Responder
//	─────────                              ─────────
//	-> e, es, s, ss
//	                                       <- e, ee, se
//	[session established]
//
// Example usage:
//
//	ik, err := noise.NewIKHandshake(myPrivKey, peerPubKey, noise.Initiator)
//	first, _, err := ik.WriteMessage(nil, nil)
//	// send first, receive reply...
//	_, complete, err := ik.ReadMessage(reply)
//	session, err := ik.Session()
//	sealed, err := session.Encrypt(batchBytes)
//
//	// Responder, optionally pinned to one initiator key
//	ik, err := noise.NewIKHandshake(myPrivKey, nil, noise.Responder)
//	reply, complete, err := ik.WriteMessage(nil, first)
//
// A [Session] uses implicit nonce counters, so it relies on the transport
// delivering datagrams in order. A lost datagram desynchronizes the session
// and later datagrams fail to decrypt until a new handshake is run.
package noise
