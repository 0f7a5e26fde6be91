package packet

import (
	"encoding/binary"
	"testing"

	"github.com/opd-ai/midisock/limits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPacket(t *testing.T, payload []byte) Packet {
	t.Helper()
	p, err := New(payload)
	require.NoError(t, err)
	return p
}

func TestEncodeBatchLayout(t *testing.T) {
	batch := Batch{
		mustPacket(t, []byte{0x90, 0x3C, 0x7F}),
		mustPacket(t, []byte{}),
	}

	data, err := EncodeBatch(batch)
	require.NoError(t, err)

	expected := []byte{
		0x00, 0x02, // count
		0x00, 0x03, 0x90, 0x3C, 0x7F, // first packet, padding not encoded
		0x00, 0x00, // zero-length packet
	}
	assert.Equal(t, expected, data)
}

func TestDecodeBatchPreservesOrderAndLengths(t *testing.T) {
	batch := Batch{
		mustPacket(t, make([]byte, 10)),
		mustPacket(t, make([]byte, limits.MaxPacketPayload)),
		mustPacket(t, []byte{7, 8, 9}),
	}
	batch[0].Data[0] = 1
	batch[1].Data[255] = 2

	data, err := EncodeBatch(batch)
	require.NoError(t, err)

	decoded, err := DecodeBatch(data)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	for i := range batch {
		want, err := batch[i].Payload()
		require.NoError(t, err)
		got, err := decoded[i].Payload()
		require.NoError(t, err)
		assert.Equal(t, want, got, "packet %d", i)
	}
}

func TestEncodeBatchErrors(t *testing.T) {
	_, err := EncodeBatch(nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	tooMany := make(Batch, limits.MaxBatchPackets+1)
	for i := range tooMany {
		tooMany[i] = mustPacket(t, []byte{byte(i)})
	}
	_, err = EncodeBatch(tooMany)
	assert.ErrorIs(t, err, limits.ErrBatchTooLarge)

	malformed := Batch{mustPacket(t, []byte{1}), {Data: make([]byte, 2), Length: 3}}
	_, err = EncodeBatch(malformed)
	require.ErrorIs(t, err, ErrMalformedPacket)
	var mpe *MalformedPacketError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, 1, mpe.Index)
}

func TestDecodeBatchErrors(t *testing.T) {
	tooMany := make([]byte, 2)
	binary.BigEndian.PutUint16(tooMany, limits.MaxBatchPackets+1)

	tests := []struct {
		name      string
		data      []byte
		expectErr error
	}{
		{name: "Nil data", data: nil, expectErr: ErrTruncated},
		{name: "Half header", data: []byte{0x00}, expectErr: ErrTruncated},
		{name: "Zero count", data: []byte{0x00, 0x00}, expectErr: ErrEmptyBatch},
		{name: "Too many packets", data: tooMany, expectErr: limits.ErrBatchTooLarge},
		{name: "Missing packet header", data: []byte{0x00, 0x01}, expectErr: ErrTruncated},
		{name: "Short payload", data: []byte{0x00, 0x01, 0x00, 0x04, 1, 2}, expectErr: ErrTruncated},
		{name: "Trailing bytes", data: []byte{0x00, 0x01, 0x00, 0x01, 1, 2}, expectErr: ErrTrailingData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBatch(tt.data)
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}

func TestDecodeBatchOversizedDeclaredLength(t *testing.T) {
	// 300 declared, only the 256 bytes a packet can hold on the wire
	data := make([]byte, 2+2+limits.MaxPacketPayload)
	binary.BigEndian.PutUint16(data[0:2], 1)
	binary.BigEndian.PutUint16(data[2:4], 300)

	batch, err := DecodeBatch(data)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	_, err = batch[0].Payload()
	assert.ErrorIs(t, err, ErrMalformedPacket)
}
