package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/midisock/limits"
)

var (
	// ErrEmptyBatch indicates a batch with no packets
	ErrEmptyBatch = errors.New("empty packet batch")

	// ErrTruncated indicates encoded batch data ended early
	ErrTruncated = errors.New("truncated batch data")

	// ErrTrailingData indicates bytes left over after the last encoded packet
	ErrTrailingData = errors.New("trailing data after batch")
)

// EncodeBatch serializes a batch for transmission.
//
// Format: [packet count (2 bytes BE)] followed by, for each packet,
// [declared length (2 bytes BE)][declared bytes].
func EncodeBatch(batch Batch) ([]byte, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := limits.ValidateBatchSize(len(batch)); err != nil {
		return nil, err
	}

	if err := batch.Validate(); err != nil {
		return nil, err
	}

	size := limits.BatchHeaderSize + len(batch)*limits.PacketHeaderSize + batch.DeclaredLength()

	out := make([]byte, size)
	binary.BigEndian.PutUint16(out[0:2], uint16(len(batch)))
	offset := limits.BatchHeaderSize
	for _, p := range batch {
		binary.BigEndian.PutUint16(out[offset:offset+2], p.Length)
		offset += limits.PacketHeaderSize
		offset += copy(out[offset:], p.Data[:p.Length])
	}

	return out, nil
}

// DecodeBatch parses an encoded batch. Each packet gets its own storage of
// exactly the bytes present on the wire; a declared length above
// MaxPacketPayload is preserved so the framing layer can reject the packet.
func DecodeBatch(data []byte) (Batch, error) {
	if len(data) < limits.BatchHeaderSize {
		return nil, ErrTruncated
	}

	count := int(binary.BigEndian.Uint16(data[0:2]))
	if count == 0 {
		return nil, ErrEmptyBatch
	}
	if err := limits.ValidateBatchSize(count); err != nil {
		return nil, err
	}

	batch := make(Batch, 0, count)
	offset := limits.BatchHeaderSize
	for i := 0; i < count; i++ {
		if len(data)-offset < limits.PacketHeaderSize {
			return nil, fmt.Errorf("%w: packet %d header", ErrTruncated, i)
		}
		length := binary.BigEndian.Uint16(data[offset : offset+2])
		offset += limits.PacketHeaderSize

		present := min(int(length), limits.MaxPacketPayload)
		if len(data)-offset < present {
			return nil, fmt.Errorf("%w: packet %d wants %d bytes, %d remain", ErrTruncated, i, present, len(data)-offset)
		}

		storage := make([]byte, present)
		copy(storage, data[offset:offset+present])
		offset += present

		batch = append(batch, Packet{Data: storage, Length: length})
	}

	if offset != len(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(data)-offset)
	}

	return batch, nil
}
