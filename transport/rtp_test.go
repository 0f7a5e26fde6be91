package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatagramRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x01, 0x00, 0x03, 0x90, 0x3C, 0x7F}

	data, err := marshalDatagram(PayloadTypeBatch, 65535, 0xDEADBEEF, payload)
	require.NoError(t, err)
	assert.Len(t, data, 12+len(payload))

	pkt, err := unmarshalDatagram(data)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), pkt.Version)
	assert.Equal(t, PayloadTypeBatch, pkt.PayloadType)
	assert.Equal(t, uint16(65535), pkt.SequenceNumber)
	assert.Equal(t, uint32(0xDEADBEEF), pkt.SSRC)
	assert.Equal(t, uint32(0), pkt.Timestamp)
	assert.Equal(t, payload, pkt.Payload)
}

func TestUnmarshalDatagramRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "Empty", data: []byte{}},
		{name: "Short header", data: []byte{0x80, 97, 0x00}},
		{name: "Version 1", data: []byte{0x40, 97, 0, 1, 0, 0, 0, 0, 0, 0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unmarshalDatagram(tt.data)
			assert.ErrorIs(t, err, ErrBadDatagram)
		})
	}
}

func TestGenerateSSRCVaries(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 16; i++ {
		ssrc, err := generateSSRC()
		require.NoError(t, err)
		seen[ssrc] = true
	}
	assert.Greater(t, len(seen), 1)
}
