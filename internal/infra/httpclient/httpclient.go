// Package httpclient builds pooled HTTP clients for outbound API calls.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"mcp-chatbot/internal/infra/config"
)

// Default connection pool settings. Each client talks to a single upstream,
// so the pool stays small.
const (
	DefaultMaxIdleConns        = 10
	DefaultMaxIdleConnsPerHost = 4
	DefaultMaxConnsPerHost     = 8
	DefaultIdleConnTimeout     = 120 * time.Second
)

// Default timeouts.
const (
	DefaultConnTimeout = 30 * time.Second
	DefaultRespTimeout = 120 * time.Second
)

// NewPooledTransport creates an http.Transport with connection pooling and
// the given dial and response-header timeouts.
func NewPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	if connTimeout <= 0 {
		connTimeout = DefaultConnTimeout
	}
	if respTimeout <= 0 {
		respTimeout = DefaultRespTimeout
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleConns
	}
	maxIdlePerHost := pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = DefaultMaxIdleConnsPerHost
	}
	maxConnsPerHost := pool.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = DefaultMaxConnsPerHost
	}
	idleTimeout := pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleConnTimeout
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       idleTimeout,
		ForceAttemptHTTP2:     true,
	}
}

// New creates an *http.Client over a pooled transport. The overall request
// timeout is the sum of the dial and response-header timeouts.
func New(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Client {
	if connTimeout <= 0 {
		connTimeout = DefaultConnTimeout
	}
	if respTimeout <= 0 {
		respTimeout = DefaultRespTimeout
	}
	return &http.Client{
		Transport: NewPooledTransport(connTimeout, respTimeout, pool),
		Timeout:   connTimeout + respTimeout,
	}
}
