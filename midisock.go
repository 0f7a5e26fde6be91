package midisock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/opd-ai/midisock/config"
	"github.com/opd-ai/midisock/framing"
	"github.com/opd-ai/midisock/interfaces"
	"github.com/opd-ai/midisock/transport"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNilPort indicates New was called without a port
	ErrNilPort = errors.New("nil port")

	// ErrSecureUnavailable indicates SecureDial on a socket without a
	// configured peer key or a port that cannot dial
	ErrSecureUnavailable = errors.New("secure session unavailable")
)

// secureDialer is implemented by ports that can establish a Noise session.
type secureDialer interface {
	SecureDial(ctx context.Context, peerPublicKey []byte) error
}

// Stats is a snapshot of a socket's send and receive counters.
type Stats struct {
	Sent     framing.ChunkerStats
	Received framing.ReceiverStats
}

// Socket frames byte messages over a packet port. Outbound messages are
// split into packets by a Chunker; each inbound batch is reassembled and
// handed to the attached MessageHandler.
type Socket struct {
	port     interfaces.Port
	chunker  *framing.Chunker
	receiver *framing.Receiver
	registry *framing.Registry
	peerKey  []byte

	closeOnce sync.Once
	closeErr  error
}

// New wraps port and registers the socket as its batch handler. The socket
// owns the port from then on and closes it in Close.
func New(port interfaces.Port) (*Socket, error) {
	if port == nil {
		return nil, ErrNilPort
	}

	registry := &framing.Registry{}
	s := &Socket{
		port:     port,
		chunker:  framing.NewChunker(port),
		receiver: framing.NewReceiver(registry),
		registry: registry,
	}
	port.RegisterBatchHandler(s.receiver.HandleBatch)

	logrus.WithFields(logrus.Fields{
		"function":     "New",
		"destinations": len(port.Destinations()),
		"sources":      len(port.Sources()),
	}).Info("Socket created")

	return s, nil
}

// NewFromConfig opens the port described by cfg, registers its endpoints
// and wraps it in a Socket. Nothing is selected; callers choose the active
// destination and source by index.
func NewFromConfig(cfg *config.Config) (*Socket, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		port    interfaces.Port
		local   string
		peerKey []byte
		err     error
	)
	switch cfg.Transport {
	case config.TransportTCP:
		var tcp *transport.TCPTransport
		tcp, err = openTCP(cfg)
		if err == nil {
			port, local = tcp, tcp.LocalAddr().String()
		}
	default:
		var udp *transport.UDPTransport
		udp, peerKey, err = openUDP(cfg)
		if err == nil {
			port, local = udp, udp.LocalAddr().String()
		}
	}
	if err != nil {
		return nil, err
	}

	s, err := New(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	s.peerKey = peerKey

	logrus.WithFields(logrus.Fields{
		"function":  "NewFromConfig",
		"name":      cfg.Name,
		"transport": cfg.Transport,
		"local":     local,
	}).Info("Socket listening")

	return s, nil
}

func openUDP(cfg *config.Config) (*transport.UDPTransport, []byte, error) {
	privateKey, peerKey, err := cfg.Noise.Keys()
	if err != nil {
		return nil, nil, err
	}

	udp, err := transport.NewUDPTransport(transport.UDPConfig{
		ListenAddr:       cfg.UDP.Listen,
		StaticPrivateKey: privateKey,
		TrustedPeerKey:   peerKey,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", cfg.Name, err)
	}

	err = addEndpoints(udp.Directory, cfg, func(ep config.EndpointConfig) (net.Addr, error) {
		return ep.ResolveUDP()
	})
	if err != nil {
		udp.Close()
		return nil, nil, err
	}
	return udp, peerKey, nil
}

func openTCP(cfg *config.Config) (*transport.TCPTransport, error) {
	tcpCfg := transport.TCPConfig{ListenAddr: cfg.TCP.Listen}
	if cfg.Proxy.Enabled() {
		tcpCfg.Proxy = &transport.ProxyConfig{
			Address:  cfg.Proxy.Address,
			Username: cfg.Proxy.Username,
			Password: cfg.Proxy.Password,
		}
	}

	tcp, err := transport.NewTCPTransport(tcpCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.Name, err)
	}

	err = addEndpoints(tcp.Directory, cfg, func(ep config.EndpointConfig) (net.Addr, error) {
		return ep.ResolveTCP()
	})
	if err != nil {
		tcp.Close()
		return nil, err
	}
	return tcp, nil
}

func addEndpoints(dir *transport.Directory, cfg *config.Config, resolve func(config.EndpointConfig) (net.Addr, error)) error {
	for _, ep := range cfg.Destinations {
		addr, err := resolve(ep)
		if err != nil {
			return fmt.Errorf("destination: %w", err)
		}
		dir.AddDestination(ep.Name, addr)
	}
	for _, ep := range cfg.Sources {
		addr, err := resolve(ep)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		dir.AddSource(ep.Name, addr)
	}
	return nil
}

// Attach installs the handler for reassembled messages, replacing any
// previous one. Attaching nil detaches.
func (s *Socket) Attach(handler framing.MessageHandler) {
	s.registry.Attach(handler)
}

// SendBytes transmits data to the active destination in packets of at
// most limits.MaxPacketPayload bytes. It stops at the first transmit
// failure and returns a *framing.TransmitError. Sending an empty slice is
// a no-op.
func (s *Socket) SendBytes(data []byte) error {
	return s.chunker.Send(data)
}

// SecureDial runs a Noise handshake with the configured peer. The port must
// have been built from a config carrying noise keys.
func (s *Socket) SecureDial(ctx context.Context) error {
	dialer, ok := s.port.(secureDialer)
	if !ok || s.peerKey == nil {
		return ErrSecureUnavailable
	}
	return dialer.SecureDial(ctx, s.peerKey)
}

// Destinations lists destination names in index order.
func (s *Socket) Destinations() []string {
	return s.port.Destinations()
}

// SetActiveDestination selects where SendBytes transmits.
func (s *Socket) SetActiveDestination(index int) error {
	return s.port.SetActiveDestination(index)
}

// ActiveDestination returns the selected destination index, or -1.
func (s *Socket) ActiveDestination() int {
	return s.port.ActiveDestination()
}

// Sources lists source names in index order.
func (s *Socket) Sources() []string {
	return s.port.Sources()
}

// SetActiveSource selects the only source whose messages are delivered.
func (s *Socket) SetActiveSource(index int) error {
	return s.port.SetActiveSource(index)
}

// ActiveSource returns the selected source index, or -1.
func (s *Socket) ActiveSource() int {
	return s.port.ActiveSource()
}

// Port returns the underlying port.
func (s *Socket) Port() interfaces.Port {
	return s.port
}

// Stats returns a snapshot of the send and receive counters.
func (s *Socket) Stats() Stats {
	return Stats{
		Sent:     s.chunker.Stats(),
		Received: s.receiver.Stats(),
	}
}

// Close detaches the handler and closes the port. It is safe to call more
// than once.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.registry.Attach(nil)
		s.closeErr = s.port.Close()

		stats := s.Stats()
		logrus.WithFields(logrus.Fields{
			"function":  "Close",
			"sent":      stats.Sent.Messages,
			"delivered": stats.Received.Delivered,
			"malformed": stats.Received.Malformed,
		}).Info("Socket closed")
	})
	return s.closeErr
}
