package noise

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flynn/noise"
)

// ErrSessionNotReady indicates encryption was attempted without cipher states.
var ErrSessionNotReady = errors.New("noise session not ready")

// Session encrypts and decrypts transport payloads with the cipher states of
// a completed handshake. Nonces are implicit counters, so datagrams must be
// opened in the order they were sealed.
type Session struct {
	mu         sync.Mutex
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
}

// NewSession wraps the cipher states from a completed handshake.
func NewSession(send, recv *noise.CipherState) *Session {
	return &Session{sendCipher: send, recvCipher: recv}
}

// Encrypt seals plaintext with the send cipher.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendCipher == nil {
		return nil, ErrSessionNotReady
	}
	out, err := s.sendCipher.Encrypt(nil, nil, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt failed: %w", err)
	}
	return out, nil
}

// Decrypt opens ciphertext with the receive cipher.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recvCipher == nil {
		return nil, ErrSessionNotReady
	}
	out, err := s.recvCipher.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt failed: %w", err)
	}
	return out, nil
}
