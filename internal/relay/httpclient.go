// internal/relay/httpclient.go
package relay

import (
	"net"
	"net/http"
	"time"

	"chorus/internal/config"
)

// TransportConfig holds the connection timeouts for relay traffic
type TransportConfig struct {
	ConnectTimeout        time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultTransportConfig returns sensible defaults
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout:        10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
}

// TransportConfigFrom reads the transport section of the config
func TransportConfigFrom(cfg *config.Config) TransportConfig {
	return TransportConfig{
		ConnectTimeout:        time.Duration(cfg.Transport.ConnectTimeout) * time.Second,
		TLSHandshakeTimeout:   time.Duration(cfg.Transport.TLSHandshakeTimeout) * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Transport.ResponseHeaderTimeout) * time.Second,
	}
}

// NewHTTPClient builds a client suited to long-lived streams. There is
// no overall request timeout; a stream may run as long as the relay keeps
// it open.
func NewHTTPClient(tc TransportConfig) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   tc.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tc.TLSHandshakeTimeout,
			ResponseHeaderTimeout: tc.ResponseHeaderTimeout,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   5,
		},
	}
}
