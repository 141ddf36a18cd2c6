package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/internal/resilience"
	livemock "github.com/MrWong99/voxlink/pkg/live/mock"
)

var errRefused = errors.New("connection refused")

func TestDialer_PrimarySucceeds(t *testing.T) {
	primary, backup := &livemock.Dialer{}, &livemock.Dialer{}
	d := resilience.NewDialer([]resilience.Endpoint{
		{Name: "primary", Dialer: primary},
		{Name: "backup", Dialer: backup},
	}, resilience.BreakerConfig{})

	if _, err := d.Dial(context.Background()); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if primary.Dials() != 1 || backup.Dials() != 0 {
		t.Errorf("dials = %d/%d, want 1/0", primary.Dials(), backup.Dials())
	}
}

func TestDialer_FailsOver(t *testing.T) {
	primary := &livemock.Dialer{Err: errRefused}
	backup := &livemock.Dialer{}
	d := resilience.NewDialer([]resilience.Endpoint{
		{Name: "primary", Dialer: primary},
		{Name: "backup", Dialer: backup},
	}, resilience.BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for range 3 {
		if _, err := d.Dial(context.Background()); err != nil {
			t.Fatalf("Dial: %v", err)
		}
	}
	if primary.Dials() != 2 {
		t.Errorf("primary dials = %d, want 2 before its breaker opened", primary.Dials())
	}
	if backup.Dials() != 3 {
		t.Errorf("backup dials = %d, want 3", backup.Dials())
	}
	if got := d.States()["primary"]; got != resilience.StateOpen {
		t.Errorf("primary state = %v, want open", got)
	}
	if !d.Available() {
		t.Error("Available = false with a healthy backup")
	}
}

func TestDialer_AllFailed(t *testing.T) {
	d := resilience.NewDialer([]resilience.Endpoint{
		{Name: "a", Dialer: &livemock.Dialer{Err: errRefused}},
		{Name: "b", Dialer: &livemock.Dialer{Err: errRefused}},
	}, resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	_, err := d.Dial(context.Background())
	if !errors.Is(err, resilience.ErrAllEndpointsFailed) || !errors.Is(err, errRefused) {
		t.Fatalf("err = %v, want ErrAllEndpointsFailed wrapping the dial error", err)
	}
	if d.Available() {
		t.Error("Available = true with every breaker open")
	}

	_, err = d.Dial(context.Background())
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen once all breakers are open", err)
	}
}

func TestDialer_CancelledContextStops(t *testing.T) {
	primary := &livemock.Dialer{Delay: time.Hour}
	backup := &livemock.Dialer{}
	d := resilience.NewDialer([]resilience.Endpoint{
		{Name: "primary", Dialer: primary},
		{Name: "backup", Dialer: backup},
	}, resilience.BreakerConfig{MaxFailures: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Dial(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if backup.Dials() != 0 {
		t.Errorf("backup dialed after ctx ended")
	}
}
