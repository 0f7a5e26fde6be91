package transport

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pion/rtp"
)

const (
	// PayloadTypeBatch marks a datagram carrying an encoded packet batch.
	PayloadTypeBatch uint8 = 97

	// PayloadTypeHandshake marks a datagram carrying a Noise handshake message.
	PayloadTypeHandshake uint8 = 98

	rtpVersion = 2
)

// ErrBadDatagram indicates a datagram that is not a usable RTP packet.
var ErrBadDatagram = errors.New("bad datagram")

// marshalDatagram wraps payload in an RTP packet. The timestamp is always
// zero: delivery is never scheduled.
func marshalDatagram(payloadType uint8, seq uint16, ssrc uint32, payload []byte) ([]byte, error) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			PayloadType:    payloadType,
			SequenceNumber: seq,
			Timestamp:      0,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	data, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
	}
	return data, nil
}

// unmarshalDatagram parses an RTP datagram. The returned payload aliases data.
func unmarshalDatagram(data []byte) (*rtp.Packet, error) {
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDatagram, err)
	}
	if pkt.Version != rtpVersion {
		return nil, fmt.Errorf("%w: RTP version %d", ErrBadDatagram, pkt.Version)
	}
	return pkt, nil
}

// generateSSRC picks a random synchronization source identifier.
func generateSSRC() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate SSRC: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
