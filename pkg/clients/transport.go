package clients

import (
	"net"
	"net/http"
	"time"
)

const defaultClientTimeout = 15 * time.Second

// NewHTTPClient returns a client with bounded per-host connections and short
// dial and TLS deadlines. timeout <= 0 uses 15s.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxConnsPerHost:     20,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     60 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}
}
