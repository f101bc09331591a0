package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPTransport carries APDU frames over the YubiHSM connector's HTTP
// protocol: POST the raw frame to /connector/api, GET key=value pairs from
// /connector/status.
type HTTPTransport struct {
	Addr   string
	Client *http.Client
}

// NewHTTPTransport builds a transport against a connector listening at addr
// (host:port, no scheme).
func NewHTTPTransport(addr string) *HTTPTransport {
	return &HTTPTransport{Addr: addr, Client: http.DefaultClient}
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

func (t *HTTPTransport) Request(ctx context.Context, frame []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+t.Addr+"/connector/api", bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := t.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transport: connector returned status %d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

func (t *HTTPTransport) Status(ctx context.Context) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+t.Addr+"/connector/status", nil)
	if err != nil {
		return nil, err
	}

	res, err := t.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	return &StatusResponse{
		Status:  Status(fields["status"]),
		Serial:  fields["serial"],
		Version: fields["version"],
		PID:     fields["pid"],
		Address: fields["address"],
		Port:    fields["port"],
	}, nil
}
