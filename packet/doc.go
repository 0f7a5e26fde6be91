// Package packet defines the units moved by a midisock transport.
//
// A [Packet] pairs storage with a declared length of at most
// limits.MaxPacketPayload bytes. Storage may be longer than the declared
// length; the extra bytes are padding and are never read:
//
//	p, err := packet.New([]byte{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7})
//	payload, err := p.Payload() // the six declared bytes
//
// A [Batch] is the ordered list of packets delivered by one receive event,
// and a [Message] is what the framing layer reassembles from it.
//
// # Wire Format
//
// [EncodeBatch] and [DecodeBatch] carry a batch inside one datagram:
//
//	[count u16 BE] { [length u16 BE] [length bytes] } * count
//
// Padding is never put on the wire. The decoder never reads past its input
// and rejects empty, oversized, truncated and trailing-garbage encodings.
package packet
