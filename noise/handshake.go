package noise

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
	"github.com/opd-ai/midisock/crypto"
	"github.com/sirupsen/logrus"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrWrongRole indicates an operation the handshake role does not perform
	ErrWrongRole = errors.New("operation not valid for handshake role")
	// ErrUnexpectedPeer indicates the responder saw a static key it was not told to accept
	ErrUnexpectedPeer = errors.New("unexpected peer static key")
)

// HandshakeRole defines whether we're initiating or responding to handshake
type HandshakeRole uint8

const (
	// Initiator starts the handshake (knows peer's static key)
	Initiator HandshakeRole = iota
	// Responder responds to handshake initiation
	Responder
)

func (r HandshakeRole) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// IKHandshake implements the Noise IK pattern:
//
//	-> e, es, s, ss
//	<- e, ee, se
//
// The initiator must know the responder's static public key. The responder
// learns the initiator's key from the first message.
type IKHandshake struct {
	role     HandshakeRole
	state    *noise.HandshakeState
	session  *Session
	expected []byte // responder only: required initiator key, nil accepts any
}

// NewIKHandshake creates a new IK pattern handshake.
// staticPrivKey is our long-term private key (32 bytes).
// peerPubKey is the peer's long-term public key. The initiator requires it;
// a responder given one rejects any other initiator.
func NewIKHandshake(staticPrivKey, peerPubKey []byte, role HandshakeRole) (*IKHandshake, error) {
	if len(staticPrivKey) != crypto.KeySize {
		return nil, fmt.Errorf("static private key must be %d bytes, got %d", crypto.KeySize, len(staticPrivKey))
	}
	if peerPubKey != nil && len(peerPubKey) != crypto.KeySize {
		return nil, fmt.Errorf("peer public key must be %d bytes, got %d", crypto.KeySize, len(peerPubKey))
	}
	if role == Initiator && peerPubKey == nil {
		return nil, fmt.Errorf("initiator requires peer public key")
	}

	var secret [crypto.KeySize]byte
	copy(secret[:], staticPrivKey)
	keyPair, err := crypto.FromSecretKey(secret)
	crypto.ZeroBytes(secret[:])
	if err != nil {
		return nil, fmt.Errorf("failed to derive keypair: %w", err)
	}
	defer crypto.WipeKeyPair(keyPair)

	staticKey := noise.DHKey{
		Private: append([]byte(nil), keyPair.Private[:]...),
		Public:  append([]byte(nil), keyPair.Public[:]...),
	}

	config := noise.Config{
		CipherSuite:   noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256),
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     role == Initiator,
		StaticKeypair: staticKey,
	}

	ik := &IKHandshake{role: role}
	if role == Initiator {
		config.PeerStatic = append([]byte(nil), peerPubKey...)
	} else if peerPubKey != nil {
		ik.expected = append([]byte(nil), peerPubKey...)
	}

	ik.state, err = noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewIKHandshake",
		"role":     role.String(),
	}).Debug("Created IK handshake")

	return ik, nil
}

// WriteMessage produces the next handshake message.
// The initiator passes a nil receivedMessage and gets the first message.
// The responder passes the initiator's message and gets the reply; its
// handshake is complete afterwards.
func (ik *IKHandshake) WriteMessage(payload, receivedMessage []byte) ([]byte, bool, error) {
	if ik.session != nil {
		return nil, false, ErrHandshakeComplete
	}

	if ik.role == Initiator {
		message, _, _, err := ik.state.WriteMessage(nil, payload)
		if err != nil {
			return nil, false, fmt.Errorf("initiator write failed: %w", err)
		}
		return message, false, nil
	}

	if receivedMessage == nil {
		return nil, false, fmt.Errorf("responder requires received message")
	}
	if _, _, _, err := ik.state.ReadMessage(nil, receivedMessage); err != nil {
		return nil, false, fmt.Errorf("responder read failed: %w", err)
	}
	if ik.expected != nil && !bytes.Equal(ik.expected, ik.state.PeerStatic()) {
		return nil, false, ErrUnexpectedPeer
	}

	// cs1 carries initiator->responder traffic, cs2 the reverse
	message, cs1, cs2, err := ik.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("responder write failed: %w", err)
	}
	ik.session = NewSession(cs2, cs1)

	return message, true, nil
}

// ReadMessage processes the responder's reply. Only the initiator reads.
func (ik *IKHandshake) ReadMessage(message []byte) ([]byte, bool, error) {
	if ik.session != nil {
		return nil, false, ErrHandshakeComplete
	}
	if ik.role != Initiator {
		return nil, false, ErrWrongRole
	}

	payload, cs1, cs2, err := ik.state.ReadMessage(nil, message)
	if err != nil {
		return nil, false, fmt.Errorf("initiator read response failed: %w", err)
	}
	ik.session = NewSession(cs1, cs2)

	return payload, true, nil
}

// IsComplete returns true if handshake is finished and a session is available.
func (ik *IKHandshake) IsComplete() bool {
	return ik.session != nil
}

// Session returns the established session.
func (ik *IKHandshake) Session() (*Session, error) {
	if ik.session == nil {
		return nil, ErrHandshakeNotComplete
	}
	return ik.session, nil
}

// RemoteStaticKey returns a copy of the peer's static public key.
func (ik *IKHandshake) RemoteStaticKey() ([]byte, error) {
	if ik.session == nil {
		return nil, ErrHandshakeNotComplete
	}
	return append([]byte(nil), ik.state.PeerStatic()...), nil
}
