package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/voxlink/pkg/live"
)

// ErrAllEndpointsFailed is returned when every endpoint failed or had an open
// breaker. The last dial error is wrapped alongside it.
var ErrAllEndpointsFailed = errors.New("resilience: all endpoints failed")

var _ live.Dialer = (*Dialer)(nil)

// Endpoint is one named dial target.
type Endpoint struct {
	Name   string
	Dialer live.Dialer
}

type endpoint struct {
	Endpoint
	breaker *Breaker
}

// Dialer tries its endpoints in order, skipping those whose breaker is open.
type Dialer struct {
	endpoints []endpoint
	log       *slog.Logger
}

// NewDialer wraps endpoints, primary first. Each endpoint gets its own
// [Breaker] configured from cfg with the endpoint name.
func NewDialer(endpoints []Endpoint, cfg BreakerConfig) *Dialer {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	d := &Dialer{log: log}
	for _, e := range endpoints {
		c := cfg
		c.Name = e.Name
		c.Logger = log
		d.endpoints = append(d.endpoints, endpoint{Endpoint: e, breaker: NewBreaker(c)})
	}
	return d
}

// Dial implements [live.Dialer]. It stops early with ctx.Err() once ctx is
// done.
func (d *Dialer) Dial(ctx context.Context) (live.Conn, error) {
	lastErr := ErrCircuitOpen
	for i := range d.endpoints {
		e := &d.endpoints[i]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var conn live.Conn
		err := e.breaker.Do(func() error {
			var derr error
			conn, derr = e.Dialer.Dial(ctx)
			return derr
		})
		if err == nil {
			if i > 0 {
				d.log.Info("dialed fallback endpoint", "endpoint", e.Name)
			}
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			d.log.Debug("skipping endpoint, circuit open", "endpoint", e.Name)
		} else {
			d.log.Warn("endpoint dial failed", "endpoint", e.Name, "err", err)
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrAllEndpointsFailed, lastErr)
}

// Available reports whether at least one endpoint would accept a dial now.
func (d *Dialer) Available() bool {
	for i := range d.endpoints {
		if d.endpoints[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}

// States returns each endpoint's breaker state keyed by endpoint name.
func (d *Dialer) States() map[string]State {
	out := make(map[string]State, len(d.endpoints))
	for i := range d.endpoints {
		out[d.endpoints[i].Name] = d.endpoints[i].breaker.State()
	}
	return out
}
