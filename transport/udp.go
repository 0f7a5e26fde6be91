package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/midisock/crypto"
	"github.com/opd-ai/midisock/interfaces"
	"github.com/opd-ai/midisock/limits"
	"github.com/opd-ai/midisock/noise"
	"github.com/opd-ai/midisock/packet"
	"github.com/sirupsen/logrus"
)

var (
	// ErrSecureNotConfigured indicates a secure operation without a static key
	ErrSecureNotConfigured = errors.New("secure sessions not configured")

	// ErrHandshakeInProgress indicates a second concurrent SecureDial
	ErrHandshakeInProgress = errors.New("handshake already in progress")
)

// readTimeout bounds each blocking read so the loop can observe Close.
const readTimeout = 100 * time.Millisecond

// UDPConfig configures a UDPTransport.
type UDPConfig struct {
	// ListenAddr is the local address, e.g. "127.0.0.1:5004" or ":0".
	ListenAddr string

	// StaticPrivateKey enables Noise sessions. Nil leaves the port in cleartext.
	StaticPrivateKey []byte

	// TrustedPeerKey restricts which initiator a responder accepts. Nil accepts any.
	TrustedPeerKey []byte
}

type pendingDial struct {
	hs     *noise.IKHandshake
	result chan error
}

// UDPTransport carries packets as RTP datagrams. Each Transmit sends one
// datagram holding a one-packet batch; each received datagram is delivered
// as one batch.
type UDPTransport struct {
	*Directory

	conn net.PacketConn
	ssrc uint32

	sendMu sync.Mutex // orders sequence numbers and cipher nonces
	seq    uint16

	mu      sync.RWMutex
	handler interfaces.BatchHandler
	session *noise.Session
	dialing *pendingDial

	staticKey   []byte
	trustedPeer []byte

	// read loop only
	expectSeq  uint16
	lastSSRC   uint32
	synced     bool
	resyncNext atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

var _ interfaces.Port = (*UDPTransport)(nil)

// NewUDPTransport binds a UDP socket and starts the read loop.
func NewUDPTransport(cfg UDPConfig) (*UDPTransport, error) {
	if cfg.StaticPrivateKey != nil && len(cfg.StaticPrivateKey) != crypto.KeySize {
		return nil, fmt.Errorf("%w: static private key", crypto.ErrInvalidKey)
	}
	if cfg.TrustedPeerKey != nil && len(cfg.TrustedPeerKey) != crypto.KeySize {
		return nil, fmt.Errorf("%w: trusted peer key", crypto.ErrInvalidKey)
	}

	conn, err := net.ListenPacket("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	ssrc, err := generateSSRC()
	if err != nil {
		conn.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &UDPTransport{
		Directory: NewDirectory(),
		conn:      conn,
		ssrc:      ssrc,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if cfg.StaticPrivateKey != nil {
		t.staticKey = append([]byte(nil), cfg.StaticPrivateKey...)
	}
	if cfg.TrustedPeerKey != nil {
		t.trustedPeer = append([]byte(nil), cfg.TrustedPeerKey...)
	}

	go t.processPackets()

	logrus.WithFields(logrus.Fields{
		"function": "NewUDPTransport",
		"local":    conn.LocalAddr().String(),
		"ssrc":     ssrc,
		"secure":   t.staticKey != nil,
	}).Info("UDP transport listening")

	return t, nil
}

// LocalAddr returns the bound local address.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RegisterBatchHandler replaces the handler for subsequent batches.
func (t *UDPTransport) RegisterBatchHandler(handler interfaces.BatchHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// SetActiveSource selects the source and restarts sequence tracking.
func (t *UDPTransport) SetActiveSource(index int) error {
	if err := t.Directory.SetActiveSource(index); err != nil {
		return err
	}
	t.resyncNext.Store(true)
	return nil
}

// Secure reports whether a Noise session is established.
func (t *UDPTransport) Secure() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session != nil
}

// Transmit sends pkt to the active destination as one datagram.
func (t *UDPTransport) Transmit(pkt packet.Packet) error {
	if t.ctx.Err() != nil {
		return ErrClosed
	}

	payload, err := packet.EncodeBatch(packet.Batch{pkt})
	if err != nil {
		return err
	}

	addr, err := t.ActiveDestinationAddr()
	if err != nil {
		return err
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return t.sendLocked(PayloadTypeBatch, payload, true, addr)
}

// sendLocked encrypts when asked and a session exists, then writes one
// datagram. The caller holds sendMu.
func (t *UDPTransport) sendLocked(payloadType uint8, payload []byte, encrypt bool, addr net.Addr) error {
	if encrypt {
		t.mu.RLock()
		session := t.session
		t.mu.RUnlock()

		if session != nil {
			sealed, err := session.Encrypt(payload)
			if err != nil {
				return err
			}
			payload = sealed
		}
	}

	datagram, err := marshalDatagram(payloadType, t.seq, t.ssrc, payload)
	if err != nil {
		return err
	}
	t.seq++

	if _, err := t.conn.WriteTo(datagram, addr); err != nil {
		return fmt.Errorf("failed to send datagram to %s: %w", addr, err)
	}
	return nil
}

// SecureDial runs the initiator side of a Noise IK handshake against the
// active destination. The reply must arrive from the active source.
func (t *UDPTransport) SecureDial(ctx context.Context, peerPublicKey []byte) error {
	if t.staticKey == nil {
		return ErrSecureNotConfigured
	}

	hs, err := noise.NewIKHandshake(t.staticKey, peerPublicKey, noise.Initiator)
	if err != nil {
		return err
	}
	first, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return err
	}

	addr, err := t.ActiveDestinationAddr()
	if err != nil {
		return err
	}

	dial := &pendingDial{hs: hs, result: make(chan error, 1)}
	t.mu.Lock()
	if t.dialing != nil {
		t.mu.Unlock()
		return ErrHandshakeInProgress
	}
	t.dialing = dial
	t.mu.Unlock()
	defer t.clearDial(dial)

	t.sendMu.Lock()
	err = t.sendLocked(PayloadTypeHandshake, first, false, addr)
	t.sendMu.Unlock()
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "SecureDial",
		"peer":     addr.String(),
	}).Debug("Handshake initiated")

	select {
	case err := <-dial.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ctx.Done():
		return ErrClosed
	}
}

func (t *UDPTransport) clearDial(dial *pendingDial) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dialing == dial {
		t.dialing = nil
	}
}

func (t *UDPTransport) installSession(session *noise.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = session
}

// Close stops the read loop and releases the socket.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.conn.Close()
		<-t.done
		crypto.ZeroBytes(t.staticKey)

		logrus.WithFields(logrus.Fields{
			"function": "Close",
			"local":    t.conn.LocalAddr().String(),
		}).Info("UDP transport closed")
	})
	return err
}

// processPackets handles incoming datagrams until Close.
func (t *UDPTransport) processPackets() {
	defer close(t.done)
	buffer := make([]byte, limits.MaxDatagramSize+1)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, addr, err := t.conn.ReadFrom(buffer)
		if err != nil {
			// timeouts are routine; a closed socket ends the loop via ctx
			continue
		}
		t.handleDatagram(buffer[:n], addr)
	}
}

func (t *UDPTransport) handleDatagram(data []byte, addr net.Addr) {
	if err := limits.ValidateDatagram(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleDatagram",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping datagram")
		return
	}
	if !t.IsActiveSource(addr) {
		logrus.WithFields(logrus.Fields{
			"function": "handleDatagram",
			"from":     addr.String(),
		}).Debug("Dropping datagram from inactive source")
		return
	}

	pkt, err := unmarshalDatagram(data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleDatagram",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping datagram")
		return
	}

	t.trackSequence(pkt.SequenceNumber, pkt.SSRC, addr)

	switch pkt.PayloadType {
	case PayloadTypeBatch:
		t.handleBatch(pkt.Payload, addr)
	case PayloadTypeHandshake:
		t.handleHandshake(pkt.Payload, addr)
	default:
		logrus.WithFields(logrus.Fields{
			"function":     "handleDatagram",
			"payload_type": pkt.PayloadType,
		}).Debug("Ignoring unknown payload type")
	}
}

// trackSequence logs gaps in the peer's sequence numbers. Lost datagrams
// are never requested again.
func (t *UDPTransport) trackSequence(seq uint16, ssrc uint32, addr net.Addr) {
	if t.resyncNext.Swap(false) || ssrc != t.lastSSRC {
		t.synced = false
	}
	if t.synced && seq != t.expectSeq {
		logrus.WithFields(logrus.Fields{
			"function": "trackSequence",
			"from":     addr.String(),
			"expected": t.expectSeq,
			"got":      seq,
			"lost":     seq - t.expectSeq,
		}).Warn("Sequence gap detected")
	}
	t.expectSeq = seq + 1
	t.lastSSRC = ssrc
	t.synced = true
}

func (t *UDPTransport) handleBatch(payload []byte, addr net.Addr) {
	t.mu.RLock()
	session := t.session
	t.mu.RUnlock()

	if session != nil {
		opened, err := session.Decrypt(payload)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "handleBatch",
				"from":     addr.String(),
				"error":    err.Error(),
			}).Warn("Dropping undecryptable batch")
			return
		}
		payload = opened
	}

	batch, err := packet.DecodeBatch(payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleBatch",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping undecodable batch")
		return
	}

	t.mu.RLock()
	handler := t.handler
	t.mu.RUnlock()
	if handler != nil {
		handler(batch)
	}
}

func (t *UDPTransport) handleHandshake(payload []byte, addr net.Addr) {
	t.mu.RLock()
	dial := t.dialing
	t.mu.RUnlock()

	if dial != nil {
		t.completeDial(dial, payload, addr)
		return
	}

	if t.staticKey == nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleHandshake",
			"from":     addr.String(),
		}).Debug("Ignoring handshake, secure sessions not configured")
		return
	}

	hs, err := noise.NewIKHandshake(t.staticKey, t.trustedPeer, noise.Responder)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleHandshake",
			"error":    err.Error(),
		}).Error("Failed to create responder handshake")
		return
	}
	reply, _, err := hs.WriteMessage(nil, payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleHandshake",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Warn("Rejecting handshake")
		return
	}
	session, err := hs.Session()
	if err != nil {
		return
	}

	// the reply leaves in cleartext before any sealed datagram
	t.sendMu.Lock()
	err = t.sendLocked(PayloadTypeHandshake, reply, false, addr)
	if err == nil {
		t.installSession(session)
	}
	t.sendMu.Unlock()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleHandshake",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Warn("Failed to send handshake reply")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleHandshake",
		"peer":     addr.String(),
		"role":     noise.Responder.String(),
	}).Info("Secure session established")
}

// completeDial finishes an initiator handshake inside the read loop so the
// session is in place before the next datagram is processed.
func (t *UDPTransport) completeDial(dial *pendingDial, payload []byte, addr net.Addr) {
	_, _, err := dial.hs.ReadMessage(payload)
	if err == nil {
		var session *noise.Session
		session, err = dial.hs.Session()
		if err == nil {
			t.installSession(session)
			logrus.WithFields(logrus.Fields{
				"function": "completeDial",
				"peer":     addr.String(),
				"role":     noise.Initiator.String(),
			}).Info("Secure session established")
		}
	}
	t.clearDial(dial)

	select {
	case dial.result <- err:
	default:
	}
}
