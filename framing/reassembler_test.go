package framing

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/opd-ai/midisock/limits"
	"github.com/opd-ai/midisock/packet"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paddedPacket builds a packet whose storage is full of junk past the payload.
func paddedPacket(payload []byte) packet.Packet {
	storage := bytes.Repeat([]byte{0xEE}, limits.MaxPacketPayload)
	copy(storage, payload)
	return packet.Packet{Data: storage, Length: uint16(len(payload))}
}

func TestReassembleConcatenatesDeclaredBytes(t *testing.T) {
	a := sequentialMessage(10)
	b := bytes.Repeat([]byte{0x42}, 256)
	c := []byte{0xF7, 0x00, 0x01}

	msg, err := Reassemble(packet.Batch{paddedPacket(a), paddedPacket(b), paddedPacket(c)})
	require.NoError(t, err)

	assert.Len(t, msg, 269)
	want := append(append(append([]byte{}, a...), b...), c...)
	assert.Equal(t, want, []byte(msg))
	assert.NotContains(t, []byte(msg), byte(0xEE), "padding must never be read")
}

func TestReassembleZeroLengthPackets(t *testing.T) {
	msg, err := Reassemble(packet.Batch{paddedPacket(nil), paddedPacket([]byte{1}), paddedPacket(nil)})
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, []byte(msg))

	msg, err = Reassemble(packet.Batch{paddedPacket(nil)})
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestReassembleRejectsMalformedBatch(t *testing.T) {
	batch := packet.Batch{
		paddedPacket([]byte{1, 2, 3}),
		{Data: make([]byte, 256), Length: 300},
	}

	msg, err := Reassemble(batch)
	assert.Nil(t, msg, "no partial message")
	require.ErrorIs(t, err, packet.ErrMalformedPacket)

	var mpe *packet.MalformedPacketError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, 1, mpe.Index)
}

func TestReassembleEmptyBatch(t *testing.T) {
	_, err := Reassemble(nil)
	assert.ErrorIs(t, err, packet.ErrEmptyBatch)
}

func TestReceiverDeliversOncePerBatch(t *testing.T) {
	registry := &Registry{}
	receiver := NewReceiver(registry)

	var calls atomic.Int32
	var got packet.Message
	registry.Attach(func(msg packet.Message) {
		calls.Add(1)
		got = msg
	})

	receiver.HandleBatch(packet.Batch{
		paddedPacket([]byte{0xF0}),
		paddedPacket([]byte{0x7E, 0x7F}),
		paddedPacket([]byte{0xF7}),
	})

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []byte{0xF0, 0x7E, 0x7F, 0xF7}, []byte(got))

	stats := receiver.Stats()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(4), stats.Bytes)
}

func TestReceiverMalformedBatchSkipsCallback(t *testing.T) {
	registry := &Registry{}
	receiver := NewReceiver(registry)

	var calls atomic.Int32
	registry.Attach(func(packet.Message) { calls.Add(1) })

	receiver.HandleBatch(packet.Batch{{Data: make([]byte, 256), Length: 300}})
	assert.Zero(t, calls.Load())
	assert.Equal(t, uint64(1), receiver.Stats().Malformed)

	// the next batch is unaffected
	receiver.HandleBatch(packet.Batch{paddedPacket([]byte{1})})
	assert.Equal(t, int32(1), calls.Load())
}

func TestReceiverWithoutHandlerDrops(t *testing.T) {
	receiver := NewReceiver(&Registry{})

	assert.NotPanics(t, func() {
		receiver.HandleBatch(packet.Batch{paddedPacket([]byte{1, 2})})
	})

	stats := receiver.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Zero(t, stats.Delivered)
}

func TestReceiverTraceDump(t *testing.T) {
	prev := logrus.GetLevel()
	logrus.SetLevel(logrus.TraceLevel)
	defer logrus.SetLevel(prev)

	registry := &Registry{}
	receiver := NewReceiver(registry)
	var got packet.Message
	registry.Attach(func(msg packet.Message) { got = msg })

	receiver.HandleBatch(packet.Batch{paddedPacket([]byte{0xF0, 0xF7})})
	assert.Equal(t, []byte{0xF0, 0xF7}, []byte(got))
}

func TestHexDump(t *testing.T) {
	assert.Equal(t, "0xF0 0x7E 0x00 0xF7", hexDump([]byte{0xF0, 0x7E, 0x00, 0xF7}))
	assert.Equal(t, "", hexDump(nil))
}
