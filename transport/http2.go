// Package transport provides the HTTP/2 backend client for the batched check call.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
)

// BuildHTTP2Client creates an HTTP/2 client with TLS 1.2+.
// caPath is optional: empty uses the system roots, otherwise the PEM bundle
// at caPath is the only trusted root set (self-hosted back ends).
func BuildHTTP2Client(caPath string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0")
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if caPath != "" {
		caCert, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	transport := &http2.Transport{
		TLSClientConfig: tlsConfig,
		ReadIdleTimeout: 30 * time.Second,
		PingTimeout:     10 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	return client, nil
}
