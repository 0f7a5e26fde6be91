package transport

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// ProxyConfig routes outbound TCP connections through a SOCKS5 proxy.
type ProxyConfig struct {
	Address  string // host:port of the proxy
	Username string
	Password string
}

// newProxyDialer returns proxy.Direct for a nil config and a SOCKS5 dialer
// otherwise.
func newProxyDialer(cfg *ProxyConfig) (proxy.Dialer, error) {
	if cfg == nil {
		return proxy.Direct, nil
	}

	var auth *proxy.Auth
	if cfg.Username != "" || cfg.Password != "" {
		auth = &proxy.Auth{
			User:     cfg.Username,
			Password: cfg.Password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", cfg.Address, auth, proxy.Direct)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "newProxyDialer",
			"proxy_addr": cfg.Address,
			"error":      err.Error(),
		}).Error("Failed to create SOCKS5 dialer")
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "newProxyDialer",
		"proxy_addr": cfg.Address,
		"auth":       auth != nil,
	}).Info("SOCKS5 proxy configured")

	return dialer, nil
}
