package mockdevice

import (
	"context"

	"github.com/opnsec/yhsm-go/transport"
)

// Transport adapts a Device to the transport.Transport interface so a
// Session can be driven against it without a real connector.
type Transport struct {
	Device *Device
}

// NewTransport wraps dev as a transport.Transport.
func NewTransport(dev *Device) *Transport {
	return &Transport{Device: dev}
}

func (t *Transport) Request(ctx context.Context, frame []byte) ([]byte, error) {
	return t.Device.Handle(ctx, frame)
}

func (t *Transport) Status(ctx context.Context) (*transport.StatusResponse, error) {
	return &transport.StatusResponse{Status: transport.StatusOK, Serial: "mockdevice"}, nil
}

var _ transport.Transport = (*Transport)(nil)
