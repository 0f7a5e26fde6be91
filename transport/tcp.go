package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/midisock/interfaces"
	"github.com/opd-ai/midisock/limits"
	"github.com/opd-ai/midisock/packet"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

const (
	tcpFrameHello byte = 0
	tcpFrameBatch byte = 1

	// length (4 bytes BE) + kind (1 byte)
	tcpFrameHeaderSize = 5

	tcpIOTimeout = 5 * time.Second
)

var (
	// ErrFrameTooLarge indicates a TCP frame longer than any valid batch
	ErrFrameTooLarge = errors.New("tcp frame too large")

	// ErrNoHello indicates a connection that did not announce its address
	ErrNoHello = errors.New("connection did not send hello")
)

// TCPConfig configures a TCPTransport.
type TCPConfig struct {
	// ListenAddr should name a concrete host, since it is announced to peers.
	ListenAddr string

	// Proxy, when set, carries outbound connections through SOCKS5.
	Proxy *ProxyConfig
}

// TCPTransport carries packets as length-prefixed frames over TCP. A
// connection is dialed to each destination on first use and opens with a
// hello frame announcing the dialer's listen address; that address is what
// the receiving side matches against its active source.
//
// Frame format: [body length (4 bytes BE)][kind (1 byte)][body].
type TCPTransport struct {
	*Directory

	listener net.Listener
	dialer   proxy.Dialer

	mu       sync.RWMutex
	handler  interfaces.BatchHandler
	outbound map[string]net.Conn
	inbound  map[net.Conn]struct{}

	sendMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ interfaces.Port = (*TCPTransport)(nil)

// NewTCPTransport starts listening and accepting connections.
func NewTCPTransport(cfg TCPConfig) (*TCPTransport, error) {
	dialer, err := newProxyDialer(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &TCPTransport{
		Directory: NewDirectory(),
		listener:  listener,
		dialer:    dialer,
		outbound:  make(map[string]net.Conn),
		inbound:   make(map[net.Conn]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}

	t.wg.Add(1)
	go t.acceptConnections()

	logrus.WithFields(logrus.Fields{
		"function": "NewTCPTransport",
		"local":    listener.Addr().String(),
		"proxied":  cfg.Proxy != nil,
	}).Info("TCP transport listening")

	return t, nil
}

// LocalAddr returns the listen address.
func (t *TCPTransport) LocalAddr() net.Addr {
	return t.listener.Addr()
}

// RegisterBatchHandler replaces the handler for subsequent batches.
func (t *TCPTransport) RegisterBatchHandler(handler interfaces.BatchHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

// Transmit writes pkt as one frame to the active destination, dialing it
// first if needed. A failed write drops the connection; the next Transmit
// dials again.
func (t *TCPTransport) Transmit(pkt packet.Packet) error {
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

	conn, err := t.connection(addr)
	if err != nil {
		return err
	}
	if err := writeFrame(conn, tcpFrameBatch, payload); err != nil {
		t.dropOutbound(addr.String(), conn)
		return fmt.Errorf("failed to send frame to %s: %w", addr, err)
	}
	return nil
}

// connection returns the outbound connection for addr. The caller holds
// sendMu.
func (t *TCPTransport) connection(addr net.Addr) (net.Conn, error) {
	key := addr.String()

	t.mu.RLock()
	conn, exists := t.outbound[key]
	t.mu.RUnlock()
	if exists {
		return conn, nil
	}

	conn, err := t.dialer.Dial("tcp", key)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", key, err)
	}
	if err := writeFrame(conn, tcpFrameHello, []byte(t.LocalAddr().String())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to greet %s: %w", key, err)
	}

	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		conn.Close()
		return nil, ErrClosed
	}
	t.outbound[key] = conn
	t.wg.Add(1)
	t.mu.Unlock()

	go t.watchOutbound(key, conn)

	logrus.WithFields(logrus.Fields{
		"function": "connection",
		"peer":     key,
	}).Debug("Dialed destination")

	return conn, nil
}

// watchOutbound drops an outbound connection once the peer closes it.
func (t *TCPTransport) watchOutbound(key string, conn net.Conn) {
	defer t.wg.Done()
	_, _ = io.Copy(io.Discard, conn)
	t.dropOutbound(key, conn)
}

func (t *TCPTransport) dropOutbound(key string, conn net.Conn) {
	t.mu.Lock()
	if t.outbound[key] == conn {
		delete(t.outbound, key)
	}
	t.mu.Unlock()
	conn.Close()
}

// Close stops accepting, closes every connection and waits for the
// connection goroutines to exit.
func (t *TCPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.cancel()
		err = t.listener.Close()

		t.mu.Lock()
		for _, conn := range t.outbound {
			conn.Close()
		}
		for conn := range t.inbound {
			conn.Close()
		}
		t.mu.Unlock()

		t.wg.Wait()

		logrus.WithFields(logrus.Fields{
			"function": "Close",
			"local":    t.listener.Addr().String(),
		}).Info("TCP transport closed")
	})
	return err
}

func (t *TCPTransport) acceptConnections() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "acceptConnections",
				"error":    err.Error(),
			}).Warn("Accept failed")
			continue
		}

		t.mu.Lock()
		if t.ctx.Err() != nil {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.inbound[conn] = struct{}{}
		t.wg.Add(1)
		t.mu.Unlock()

		go t.handleConnection(conn)
	}
}

// handleConnection reads the hello frame and then one batch per frame.
func (t *TCPTransport) handleConnection(conn net.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.inbound, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	header := make([]byte, tcpFrameHeaderSize)
	source, err := t.readHello(conn, header)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleConnection",
			"remote":   conn.RemoteAddr().String(),
			"error":    err.Error(),
		}).Warn("Rejecting connection")
		return
	}

	for {
		kind, body, err := readFrame(conn, header)
		if err != nil {
			if !errors.Is(err, io.EOF) && t.ctx.Err() == nil {
				logrus.WithFields(logrus.Fields{
					"function": "handleConnection",
					"source":   source.String(),
					"error":    err.Error(),
				}).Debug("Connection ended")
			}
			return
		}
		if kind != tcpFrameBatch {
			logrus.WithFields(logrus.Fields{
				"function": "handleConnection",
				"kind":     kind,
			}).Debug("Ignoring unknown frame kind")
			continue
		}
		t.handleFrame(body, source)
	}
}

func (t *TCPTransport) readHello(conn net.Conn, header []byte) (net.Addr, error) {
	_ = conn.SetReadDeadline(time.Now().Add(tcpIOTimeout))
	kind, body, err := readFrame(conn, header)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		return nil, err
	}
	if kind != tcpFrameHello {
		return nil, ErrNoHello
	}
	source, err := net.ResolveTCPAddr("tcp", string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoHello, err)
	}
	return source, nil
}

func (t *TCPTransport) handleFrame(body []byte, source net.Addr) {
	if !t.IsActiveSource(source) {
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"source":   source.String(),
		}).Debug("Dropping frame from inactive source")
		return
	}

	batch, err := packet.DecodeBatch(body)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleFrame",
			"source":   source.String(),
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

func writeFrame(conn net.Conn, kind byte, body []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(tcpIOTimeout)); err != nil {
		return err
	}

	frame := make([]byte, tcpFrameHeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	frame[4] = kind
	copy(frame[tcpFrameHeaderSize:], body)

	_, err := conn.Write(frame)
	return err
}

// readFrame reads one frame. header is reused scratch space of
// tcpFrameHeaderSize bytes.
func readFrame(r io.Reader, header []byte) (byte, []byte, error) {
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(header[0:4])
	if length > uint32(limits.MaxEncodedBatch) {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return header[4], body, nil
}
