// Package limits provides centralized packet and batch size limits for midisock.
// This ensures consistent validation across the framing, codec and transport layers.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxPacketPayload is the largest payload a single transport packet can carry.
	// Outbound messages are chunked to this size.
	MaxPacketPayload = 256

	// MaxBatchPackets caps the number of packets delivered in one receive event.
	MaxBatchPackets = 64

	// BatchHeaderSize is the encoded packet count prefix of a batch.
	BatchHeaderSize = 2

	// PacketHeaderSize is the encoded declared-length prefix of each packet.
	PacketHeaderSize = 2

	// RTPHeaderSize is the fixed RTP header without CSRCs or extensions.
	RTPHeaderSize = 12

	// EncryptionOverhead is the ChaCha20-Poly1305 tag added by a Noise session.
	EncryptionOverhead = 16

	// MaxEncodedBatch is the largest wire encoding of a full batch.
	MaxEncodedBatch = BatchHeaderSize + MaxBatchPackets*(PacketHeaderSize+MaxPacketPayload)

	// MaxDatagramSize is the largest datagram the UDP transport will read.
	MaxDatagramSize = RTPHeaderSize + MaxEncodedBatch + EncryptionOverhead
)

var (
	// ErrPacketTooLarge indicates a payload exceeds MaxPacketPayload
	ErrPacketTooLarge = errors.New("packet payload too large")

	// ErrBatchTooLarge indicates a batch holds more than MaxBatchPackets packets
	ErrBatchTooLarge = errors.New("packet batch too large")

	// ErrDatagramTooLarge indicates a datagram exceeds MaxDatagramSize
	ErrDatagramTooLarge = errors.New("datagram too large")
)

// ValidatePacketPayload checks that a payload fits into one packet.
// Empty payloads are valid.
func ValidatePacketPayload(payload []byte) error {
	if len(payload) > MaxPacketPayload {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPacketTooLarge, len(payload), MaxPacketPayload)
	}
	return nil
}

// ValidateBatchSize checks a packet count against MaxBatchPackets.
func ValidateBatchSize(count int) error {
	if count > MaxBatchPackets {
		return fmt.Errorf("%w: %d packets exceeds limit %d", ErrBatchTooLarge, count, MaxBatchPackets)
	}
	return nil
}

// ValidateDatagram checks raw datagram bytes against MaxDatagramSize.
func ValidateDatagram(data []byte) error {
	if len(data) > MaxDatagramSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrDatagramTooLarge, len(data), MaxDatagramSize)
	}
	return nil
}

// ChunkCount returns the number of packets needed to carry length bytes.
// A zero length needs zero packets.
func ChunkCount(length int) int {
	if length <= 0 {
		return 0
	}
	return (length + MaxPacketPayload - 1) / MaxPacketPayload
}
