package classify

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"time"
)

const probeTimeout = 3 * time.Second

// Prober reports whether the online classifier can be reached.
type Prober func(ctx context.Context, endpoint string) bool

// Selector picks the classifier for an analysis cycle from the current
// configuration and connectivity.
type Selector struct {
	Offline *Offline
	// Online is nil when the online classifier is disabled or not
	// configured.
	Online  *Online
	Timeout time.Duration
	Probe   Prober
}

// Select returns the online classifier with an offline fallback when it is
// available, and the offline classifier otherwise.
func (s *Selector) Select(ctx context.Context) Classifier {
	if s.Online == nil {
		return s.Offline
	}

	probe := s.Probe
	if probe == nil {
		probe = TCPProbe
	}

	if !probe(ctx, s.Online.Endpoint()) {
		slog.InfoContext(
			ctx,
			"online classifier unreachable, classifying offline this cycle",
			slog.String("endpoint", s.Online.Endpoint()),
		)

		return s.Offline
	}

	return NewFallback(s.Online, s.Offline, s.Timeout)
}

// TCPProbe dials the endpoint's host to check connectivity.
func TCPProbe(ctx context.Context, endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}

	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}

		host = net.JoinHostPort(u.Hostname(), port)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return false
	}

	_ = conn.Close()

	return true
}
