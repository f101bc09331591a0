// Package transport defines the abstract byte-frame carrier the secure
// channel and session layers are built on. Transports ship opaque APDU
// frames; they never inspect SCP03 framing or key material.
package transport

import "context"

// Transport sends one raw request frame and returns the raw response frame.
// The session layer serializes requests within one Session only; several
// sessions sharing a transport (as session.Pool does) may issue requests
// concurrently, so a transport shared that way must be safe for concurrent
// use.
type Transport interface {
	Request(ctx context.Context, frame []byte) ([]byte, error)
	Status(ctx context.Context) (*StatusResponse, error)
}

// Status is the connector's reported operating state.
type Status string

const (
	StatusOK Status = "OK"
)

// StatusResponse is the connector-level health report, independent of any
// open HSM session.
type StatusResponse struct {
	Status  Status
	Serial  string
	Version string
	PID     string
	Address string
	Port    string
}
