// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Sentinel errors for easy checking with errors.Is.
var (
	// ErrMissingCredential indicates no API key is stored for a provider.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential indicates the provider rejected the API key.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrNoModels indicates discovery found no usable model.
	ErrNoModels = errors.New("no models available")
)

// NetworkError is a transport or HTTP-layer failure: connection refused,
// timeout, or a non-2xx response whose body carried no decodable vendor
// error envelope.
type NetworkError struct {
	Provider Provider
	Status   int // 0 when the request never got a response
	Body     string
	Cause    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.Status, e.Body)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: network error: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("%s: network error", e.Provider)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// AuthError is a missing or rejected credential. It is surfaced as its own
// type so the UI can name the fix (add a key) instead of showing a generic
// network failure.
type AuthError struct {
	Provider Provider
	Cause    error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Cause)
	}
	return fmt.Sprintf("%s: authentication failed", e.Provider)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// ProviderError is a decoded vendor error envelope.
type ProviderError struct {
	Provider Provider
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ParseError is a malformed response body. During streaming a malformed
// line is skipped, not surfaced; for single-shot calls it is fatal.
type ParseError struct {
	Provider Provider
	Detail   string
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Detail)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}
