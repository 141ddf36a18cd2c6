package playback_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/audio/device"
	"github.com/MrWong99/voxlink/pkg/audio/mock"
	"github.com/MrWong99/voxlink/pkg/audio/playback"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// chunk returns n samples starting at first, as PCM bytes.
func chunk(first, n int) ([]byte, []int16) {
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(first + i)
	}
	return audio.Int16ToBytes(s), s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newPipeline(t *testing.T, sink *mock.Sink, opts ...playback.Option) *playback.Pipeline {
	t.Helper()
	p, err := playback.New(context.Background(), sink, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestEnqueue_Contiguous(t *testing.T) {
	clk := newFakeClock()
	p := newPipeline(t, &mock.Sink{}, playback.WithClock(clk.Now))

	base := clk.Now()
	var prev playback.Scheduled
	for i := range 5 {
		pcm, _ := chunk(0, 480) // 20 ms at 24 kHz
		s, err := p.Enqueue(pcm)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if s.Duration() != 20*time.Millisecond {
			t.Errorf("chunk %d duration = %v; want 20ms", i, s.Duration())
		}
		if i == 0 {
			if !s.Start.Equal(base) {
				t.Errorf("first Start = %v; want now", s.Start)
			}
		} else if !s.Start.Equal(prev.End) {
			t.Errorf("chunk %d Start = %v; want previous End %v", i, s.Start, prev.End)
		}
		if s.Seq != uint64(i+1) {
			t.Errorf("chunk %d Seq = %d", i, s.Seq)
		}
		prev = s
	}
}

func TestEnqueue_StartsNowAfterIdle(t *testing.T) {
	clk := newFakeClock()
	p := newPipeline(t, &mock.Sink{}, playback.WithClock(clk.Now))

	pcm, _ := chunk(0, 240)
	first, _ := p.Enqueue(pcm)
	clk.Advance(time.Second)
	second, _ := p.Enqueue(pcm)

	if !second.Start.Equal(clk.Now()) {
		t.Errorf("Start after idle = %v; want %v", second.Start, clk.Now())
	}
	if !second.Start.After(first.End) {
		t.Error("Start after idle should be later than previous End")
	}
}

func TestPipeline_WritesInOrder(t *testing.T) {
	sink := &mock.Sink{}
	p := newPipeline(t, sink)

	var want []int16
	// 700 samples does not divide the 480-sample block; the remainder must be
	// carried, not padded.
	for i := range 4 {
		pcm, s := chunk(i*700, 700)
		want = append(want, s...)
		if _, err := p.Enqueue(pcm); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	st := sink.Stream()
	waitFor(t, "all samples written", func() bool { return len(st.Written()) >= len(want) })

	if got := st.Written(); !slices.Equal(got, want) {
		t.Errorf("written %d samples out of order or with padding; want %d", len(got), len(want))
	}
}

func TestFlush_CancelsScheduled(t *testing.T) {
	sink := &mock.Sink{StartSuspended: true, ResumeDelay: 100 * time.Millisecond}
	clk := newFakeClock()
	p := newPipeline(t, sink, playback.WithClock(clk.Now))

	for range 3 {
		pcm, _ := chunk(1, 480)
		_, _ = p.Enqueue(pcm)
	}
	p.Flush()

	if n := len(p.Pending()); n != 0 {
		t.Errorf("Pending after Flush = %d; want 0", n)
	}

	st := sink.Stream()
	waitFor(t, "resume", func() bool { return !st.Suspended() })
	time.Sleep(50 * time.Millisecond)
	if n := len(st.Written()); n != 0 {
		t.Errorf("%d flushed samples reached the device", n)
	}

	// Schedule cursor restarts at now.
	clk.Advance(10 * time.Millisecond)
	pcm, _ := chunk(0, 480)
	s, _ := p.Enqueue(pcm)
	if !s.Start.Equal(clk.Now()) {
		t.Errorf("Start after Flush = %v; want now %v", s.Start, clk.Now())
	}
}

func TestEnqueue_DoesNotWaitForResume(t *testing.T) {
	sink := &mock.Sink{StartSuspended: true, ResumeDelay: 300 * time.Millisecond}
	p := newPipeline(t, sink)

	pcm, want := chunk(5, 480)
	begin := time.Now()
	if _, err := p.Enqueue(pcm); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if d := time.Since(begin); d > 100*time.Millisecond {
		t.Errorf("Enqueue blocked for %v", d)
	}

	st := sink.Stream()
	waitFor(t, "audio after resume", func() bool { return len(st.Written()) == len(want) })
	if st.Resumes() != 1 {
		t.Errorf("Resumes = %d; want 1", st.Resumes())
	}
}

func TestPipeline_IdleSuspend(t *testing.T) {
	sink := &mock.Sink{}
	p := newPipeline(t, sink, playback.WithIdleSuspend(30*time.Millisecond))

	pcm, _ := chunk(0, 480)
	_, _ = p.Enqueue(pcm)

	st := sink.Stream()
	waitFor(t, "idle suspend", st.Suspended)

	_, _ = p.Enqueue(pcm)
	waitFor(t, "resume after enqueue", func() bool { return st.Resumes() >= 1 })
}

func TestPipeline_Volume(t *testing.T) {
	sink := &mock.Sink{}
	p := newPipeline(t, sink)

	loud := make([]int16, 480)
	for i := range loud {
		loud[i] = 20000
	}
	_, _ = p.Enqueue(audio.Int16ToBytes(loud))

	select {
	case v := <-p.Volume():
		if v < 0.5 || v > 1 {
			t.Errorf("volume = %v; want about 0.61", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no volume emitted")
	}
}

func TestPipeline_Close(t *testing.T) {
	sink := &mock.Sink{}
	p, err := playback.New(context.Background(), sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if !sink.Stream().Closed() {
		t.Error("output stream not closed")
	}
	if _, err := p.Enqueue([]byte{0, 0}); !errors.Is(err, playback.ErrClosed) {
		t.Errorf("Enqueue after Close = %v; want ErrClosed", err)
	}
	if _, ok := <-p.Volume(); ok {
		t.Error("Volume channel still open")
	}
}

func TestNew_DeviceUnavailable(t *testing.T) {
	sink := &mock.Sink{OpenErr: errors.New("busy")}
	_, err := playback.New(context.Background(), sink)
	if !errors.Is(err, device.ErrDeviceUnavailable) {
		t.Fatalf("New error = %v; want ErrDeviceUnavailable", err)
	}
}
