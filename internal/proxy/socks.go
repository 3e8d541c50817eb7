// Package proxy builds the outbound HTTP client shared by every vendor API.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// NewHTTPClient returns a client that dials through the SOCKS5 proxy at
// socksAddr, or dials directly when socksAddr is empty. timeout must cover
// the longest call made with the client, long polling included.
func NewHTTPClient(socksAddr string, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if socksAddr != "" {
		dial, err := NewSocksDialer(socksAddr)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil
		transport.DialContext = dial
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

// NewSocksDialer returns a context-aware dial func through socksAddr.
func NewSocksDialer(socksAddr string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	dialer, err := proxy.SOCKS5("tcp", socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", socksAddr, err)
	}
	cd, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not support contexts")
	}
	return cd.DialContext, nil
}
