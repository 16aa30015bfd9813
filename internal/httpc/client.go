// Package httpc builds HTTP clients with timeouts set.
// Use this instead of http.DefaultClient.
package httpc

import (
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultConnectTimeout  = 5 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// Transport returns a transport tuned for a few long-lived upstreams.
func Transport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewClient creates an HTTP client with the given timeout.
// A zero timeout uses DefaultTimeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout, Transport: Transport()}
}

// NewRest creates a resty client on top of NewClient.
func NewRest(baseURL string, timeout time.Duration) *resty.Client {
	c := resty.NewWithClient(NewClient(timeout))
	if baseURL != "" {
		c.SetBaseURL(baseURL)
	}
	return c.
		SetHeader("User-Agent", "posecam").
		SetHeader("Accept", "application/json")
}
