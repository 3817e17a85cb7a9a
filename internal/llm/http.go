// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// SHARED HTTP CLIENTS
// =============================================================================

// DefaultTimeout is the request timeout for non-streaming calls.
const DefaultTimeout = 30 * time.Second

// MaxErrorBodySize caps how much of an error or listing body is read (10MB).
const MaxErrorBodySize = 10 * 1024 * 1024

var (
	// SharedHTTPClient is used for non-streaming requests across all cloud
	// backends.
	// PERFORMANCE: Connection pooling with keep-alive
	SharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		Timeout: DefaultTimeout,
	}

	// SharedStreamingClient is used for streaming requests. It carries no
	// client timeout; stream lifetime is controlled via context.
	SharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
)

// ReadLimitedBody reads a response body with a size cap.
func ReadLimitedBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxErrorBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// DrainErrorBody reads the remainder of an error response so the
// connection can be reused, returning at most MaxErrorBodySize bytes.
func DrainErrorBody(r io.Reader) []byte {
	data, _ := io.ReadAll(io.LimitReader(r, MaxErrorBodySize))
	return data
}
