// Package limits provides centralized size constants and validation functions
// for midisock packets, batches and datagrams.
//
// # Size Hierarchy
//
//   - MaxPacketPayload (256 bytes): the most a single transport packet can
//     carry. The framing layer chunks every outbound message to this size.
//
//   - MaxBatchPackets (64): the most packets one receive event may deliver.
//
//   - MaxEncodedBatch: the wire size of a full batch, including the count
//     prefix and per-packet length prefixes.
//
//   - MaxDatagramSize: MaxEncodedBatch plus the RTP header and the Noise
//     authentication tag. The UDP transport sizes its read buffer from this.
//
// # Validation Functions
//
//	if err := limits.ValidatePacketPayload(chunk); err != nil {
//	    // errors.Is(err, limits.ErrPacketTooLarge)
//	}
//
// Unlike message validation elsewhere, an empty payload is valid: a packet may
// declare a length of zero.
package limits
