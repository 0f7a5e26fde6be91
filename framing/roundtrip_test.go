package framing

import (
	"bytes"
	"testing"

	"github.com/opd-ai/midisock/interfaces"
	"github.com/opd-ai/midisock/limits"
	"github.com/opd-ai/midisock/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip sends msg through a chunker and reassembles each emitted packet
// as its own single-packet batch.
func roundTrip(t testing.TB, msg []byte) ([]byte, int) {
	var out []byte
	packets := 0
	chunker := NewChunker(interfaces.TransmitterFunc(func(p packet.Packet) error {
		packets++
		part, err := Reassemble(packet.Batch{p})
		if err != nil {
			return err
		}
		out = append(out, part...)
		return nil
	}))
	if err := chunker.Send(msg); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	return out, packets
}

func TestRoundTripIdentity(t *testing.T) {
	for _, length := range []int{0, 1, 2, 100, 255, 256, 257, 511, 512, 513, 1000, 65536 + 3} {
		msg := sequentialMessage(length)
		out, packets := roundTrip(t, msg)

		assert.True(t, bytes.Equal(msg, out), "length %d did not survive the round trip", length)
		assert.Equal(t, limits.ChunkCount(length), packets, "length %d", length)
	}
}

func TestRoundTripWholeMessageAsOneBatch(t *testing.T) {
	msg := sequentialMessage(1500)
	batch := packet.Batch(Split(msg))

	out, err := Reassemble(batch)
	require.NoError(t, err)
	assert.Equal(t, msg, []byte(out))
}

func FuzzRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0xF0, 0xF7})
	f.Add(bytes.Repeat([]byte{0x55}, limits.MaxPacketPayload))
	f.Add(bytes.Repeat([]byte{0xAA}, 2*limits.MaxPacketPayload+1))

	f.Fuzz(func(t *testing.T, msg []byte) {
		out, packets := roundTrip(t, msg)
		if !bytes.Equal(msg, out) {
			t.Fatalf("round trip mismatch for %d bytes", len(msg))
		}
		if packets != limits.ChunkCount(len(msg)) {
			t.Fatalf("got %d packets for %d bytes", packets, len(msg))
		}

		sum := 0
		for _, p := range Split(msg) {
			if int(p.Length) > limits.MaxPacketPayload || p.Length == 0 {
				t.Fatalf("packet length %d out of range", p.Length)
			}
			sum += int(p.Length)
		}
		if sum != len(msg) {
			t.Fatalf("declared lengths sum to %d, want %d", sum, len(msg))
		}
	})
}
