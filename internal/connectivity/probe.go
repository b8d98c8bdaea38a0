package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"sitesync/internal/config"
)

// Prober checks whether the remote side is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// TCPProber dials Address and closes the connection.
type TCPProber struct {
	Address string
	dialer  net.Dialer
}

func (p *TCPProber) Probe(ctx context.Context) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", p.Address, err)
	}
	return conn.Close()
}

// HTTPProber issues a HEAD request to URL. Any HTTP response, whatever its
// status, proves the network path works.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", p.URL, err)
	}
	return resp.Body.Close()
}

// Always reports the network as reachable.
type Always struct{}

func (Always) Probe(context.Context) error { return nil }

// NewProber builds the prober selected by cfg.Probe.
func NewProber(cfg config.Connectivity) (Prober, error) {
	switch cfg.Probe {
	case config.ProbeTCP:
		if cfg.Target == "" {
			return nil, errors.New("tcp probe requires a target address")
		}
		return &TCPProber{Address: cfg.Target}, nil
	case config.ProbeHTTP:
		if cfg.Target == "" {
			return nil, errors.New("http probe requires a target URL")
		}
		return &HTTPProber{URL: cfg.Target, Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}}, nil
	case config.ProbeAlways:
		return Always{}, nil
	default:
		return nil, fmt.Errorf("unsupported probe %q", cfg.Probe)
	}
}
