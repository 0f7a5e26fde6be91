package packet

import (
	"errors"
	"fmt"

	"github.com/opd-ai/midisock/limits"
)

// ErrMalformedPacket indicates a packet whose declared length cannot be honored.
var ErrMalformedPacket = errors.New("malformed packet")

// MalformedPacketError describes a packet whose declared length exceeds
// its storage capacity or the per-packet payload limit.
type MalformedPacketError struct {
	Index    int // Position within the batch, -1 for a standalone packet
	Length   int // Declared length
	Capacity int // Bytes actually present in storage
}

func (e *MalformedPacketError) Error() string {
	return fmt.Sprintf("malformed packet %d: declared length %d exceeds capacity %d (limit %d)",
		e.Index, e.Length, e.Capacity, limits.MaxPacketPayload)
}

// Is reports whether target is ErrMalformedPacket.
func (e *MalformedPacketError) Is(target error) bool {
	return target == ErrMalformedPacket
}

// Packet is one transport unit. Data is the storage and may be longer than
// Length; bytes past Length are padding and carry no meaning.
type Packet struct {
	Data   []byte
	Length uint16
}

// New copies payload into fresh MaxPacketPayload-sized storage.
func New(payload []byte) (Packet, error) {
	if err := limits.ValidatePacketPayload(payload); err != nil {
		return Packet{}, err
	}

	data := make([]byte, limits.MaxPacketPayload)
	copy(data, payload)

	return Packet{
		Data:   data,
		Length: uint16(len(payload)),
	}, nil
}

// Validate checks the declared length against storage and the payload limit.
func (p Packet) Validate() error {
	length := int(p.Length)
	if length > len(p.Data) || length > limits.MaxPacketPayload {
		return &MalformedPacketError{Index: -1, Length: length, Capacity: len(p.Data)}
	}
	return nil
}

// Payload returns the declared bytes of the packet. The returned slice
// aliases the packet storage.
func (p Packet) Payload() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p.Data[:p.Length], nil
}

// Batch is an ordered list of packets delivered together by one receive event.
type Batch []Packet

// Validate checks every packet in order and reports the first malformed one
// with its batch index.
func (b Batch) Validate() error {
	for i, p := range b {
		if err := p.Validate(); err != nil {
			var mpe *MalformedPacketError
			if errors.As(err, &mpe) {
				mpe.Index = i
			}
			return err
		}
	}
	return nil
}

// DeclaredLength sums the declared lengths of every packet in the batch.
func (b Batch) DeclaredLength() int {
	total := 0
	for _, p := range b {
		total += int(p.Length)
	}
	return total
}

// Message is the contiguous byte sequence reassembled from a batch.
type Message []byte
