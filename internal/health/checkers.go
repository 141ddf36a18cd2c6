package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/voxlink/pkg/live"
)

// StatusReporter is implemented by *live.Manager.
type StatusReporter interface {
	Status() live.Status
}

// Session returns a [Checker] named "session" that passes while s is
// Connected.
func Session(s StatusReporter) Checker {
	return Checker{
		Name: "session",
		Check: func(context.Context) error {
			if st := s.Status(); st != live.Connected {
				return fmt.Errorf("session is %s", st)
			}
			return nil
		},
	}
}

// Availability is implemented by *resilience.Dialer.
type Availability interface {
	Available() bool
}

// Endpoints returns a [Checker] named "endpoints" that fails while every
// dial endpoint has an open circuit breaker.
func Endpoints(a Availability) Checker {
	return Checker{
		Name: "endpoints",
		Check: func(context.Context) error {
			if !a.Available() {
				return errors.New("all endpoints have an open circuit breaker")
			}
			return nil
		},
	}
}
