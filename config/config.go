// Package config loads midisock settings from TOML files.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/opd-ai/midisock/crypto"
	"github.com/sirupsen/logrus"
)

// ErrInvalidConfig indicates a configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultName       = "midisock"
	DefaultTransport  = TransportUDP
	DefaultListenAddr = "127.0.0.1:5004"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

// Transport names accepted by Config.Transport.
const (
	TransportUDP = "udp"
	TransportTCP = "tcp"
)

// Config is the top-level configuration file.
type Config struct {
	Name         string           `toml:"name"`
	Transport    string           `toml:"transport"`
	Log          LogConfig        `toml:"log"`
	UDP          UDPConfig        `toml:"udp"`
	TCP          TCPConfig        `toml:"tcp"`
	Proxy        ProxyConfig      `toml:"proxy"`
	Destinations []EndpointConfig `toml:"destinations"`
	Sources      []EndpointConfig `toml:"sources"`
	Noise        NoiseConfig      `toml:"noise"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// UDPConfig configures the UDP port.
type UDPConfig struct {
	Listen string `toml:"listen"`
}

// TCPConfig configures the TCP port. Listen is announced to peers, so it
// should name a concrete host.
type TCPConfig struct {
	Listen string `toml:"listen"`
}

// ProxyConfig routes outbound TCP connections through SOCKS5 when Address
// is set.
type ProxyConfig struct {
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Enabled reports whether a proxy address is configured.
func (p ProxyConfig) Enabled() bool {
	return p.Address != ""
}

// EndpointConfig names one peer address.
type EndpointConfig struct {
	Name    string `toml:"name"`
	Address string `toml:"address"`
}

// NoiseConfig holds hex-encoded Curve25519 keys. An empty PrivateKey leaves
// the port in cleartext. PeerPublicKey is both the key SecureDial targets
// and the only initiator the port answers.
type NoiseConfig struct {
	PrivateKey    string `toml:"private_key"`
	PeerPublicKey string `toml:"peer_public_key"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Name:      DefaultName,
		Transport: DefaultTransport,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		UDP: UDPConfig{Listen: DefaultListenAddr},
		TCP: TCPConfig{Listen: DefaultListenAddr},
	}
}

// Load reads a TOML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.finish(meta); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "Load",
		"path":         path,
		"destinations": len(cfg.Destinations),
		"sources":      len(cfg.Sources),
	}).Debug("Loaded configuration")

	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result.
func Parse(text string) (*Config, error) {
	cfg := Default()
	meta, err := toml.Decode(text, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.finish(meta); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) finish(meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	c.normalize()
	return c.Validate()
}

// normalize trims whitespace and fills blank endpoint names with addresses.
func (c *Config) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = DefaultName
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.UDP.Listen = strings.TrimSpace(c.UDP.Listen)
	c.TCP.Listen = strings.TrimSpace(c.TCP.Listen)
	c.Proxy.Address = strings.TrimSpace(c.Proxy.Address)
	c.Noise.PrivateKey = strings.TrimSpace(c.Noise.PrivateKey)
	c.Noise.PeerPublicKey = strings.TrimSpace(c.Noise.PeerPublicKey)

	for _, endpoints := range [][]EndpointConfig{c.Destinations, c.Sources} {
		for i := range endpoints {
			endpoints[i].Address = strings.TrimSpace(endpoints[i].Address)
			endpoints[i].Name = strings.TrimSpace(endpoints[i].Name)
			if endpoints[i].Name == "" {
				endpoints[i].Name = endpoints[i].Address
			}
		}
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	switch c.Transport {
	case TransportUDP:
		if c.UDP.Listen == "" {
			return fmt.Errorf("%w: udp.listen is empty", ErrInvalidConfig)
		}
		if c.Proxy.Enabled() {
			return fmt.Errorf("%w: proxy requires the tcp transport", ErrInvalidConfig)
		}
	case TransportTCP:
		if c.TCP.Listen == "" {
			return fmt.Errorf("%w: tcp.listen is empty", ErrInvalidConfig)
		}
		if c.Noise.Enabled() {
			return fmt.Errorf("%w: noise requires the udp transport", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: transport %q", ErrInvalidConfig, c.Transport)
	}
	for i, ep := range c.Destinations {
		if ep.Address == "" {
			return fmt.Errorf("%w: destinations[%d] has no address", ErrInvalidConfig, i)
		}
	}
	for i, ep := range c.Sources {
		if ep.Address == "" {
			return fmt.Errorf("%w: sources[%d] has no address", ErrInvalidConfig, i)
		}
	}
	if _, _, err := c.Noise.Keys(); err != nil {
		return err
	}
	return nil
}

// Validate checks the level and format names.
func (l LogConfig) Validate() error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	switch l.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalidConfig, l.Format)
	}
}

// ResolveTCP resolves the endpoint address as a TCP address.
func (e EndpointConfig) ResolveTCP() (*net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", e.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s (%s): %w", e.Name, e.Address, err)
	}
	return addr, nil
}

// ResolveUDP resolves the endpoint address as a UDP address.
func (e EndpointConfig) ResolveUDP() (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", e.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve %s (%s): %w", e.Name, e.Address, err)
	}
	return addr, nil
}

// Enabled reports whether a private key is configured.
func (n NoiseConfig) Enabled() bool {
	return n.PrivateKey != ""
}

// Keys decodes the configured keys. Either result is nil when unset.
func (n NoiseConfig) Keys() (privateKey, peerPublicKey []byte, err error) {
	if n.PeerPublicKey != "" && n.PrivateKey == "" {
		return nil, nil, fmt.Errorf("%w: noise.peer_public_key requires noise.private_key", ErrInvalidConfig)
	}
	if n.PrivateKey != "" {
		key, err := crypto.ParseKey(n.PrivateKey)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: noise.private_key: %v", ErrInvalidConfig, err)
		}
		privateKey = key[:]
	}
	if n.PeerPublicKey != "" {
		key, err := crypto.ParseKey(n.PeerPublicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: noise.peer_public_key: %v", ErrInvalidConfig, err)
		}
		peerPublicKey = key[:]
	}
	return privateKey, peerPublicKey, nil
}
