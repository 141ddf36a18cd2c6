package capture

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/audio/device"
	"github.com/MrWong99/voxlink/pkg/audio/mock"
	"github.com/MrWong99/voxlink/pkg/codec"
)

// frameSamples is 100 ms at 16 kHz.
const frameSamples = 1600

func rampBlock(start int16, n int) []int16 {
	b := make([]int16, n)
	for i := range b {
		b[i] = start + int16(i%100)
	}
	return b
}

func recvFrame(t *testing.T, p *Pipeline) Encoded {
	t.Helper()
	select {
	case f, ok := <-p.Frames():
		if !ok {
			t.Fatal("Frames channel closed")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return Encoded{}
}

func TestPipeline_EmitsFixedFrames(t *testing.T) {
	src := mock.NewSource()
	p := New(src)
	defer p.Close()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Two and a half frames' worth in 20 ms blocks.
	for range 10 {
		src.Push(rampBlock(0, 400))
	}

	for i := range 2 {
		f := recvFrame(t, p)
		if f.Seq != uint64(i) {
			t.Errorf("frame %d: Seq = %d", i, f.Seq)
		}
		if f.MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("MIMEType = %q", f.MIMEType)
		}
		if f.Timestamp != time.Duration(i)*DefaultFrameDuration {
			t.Errorf("Timestamp = %v", f.Timestamp)
		}
		raw, err := codec.Decode(f.Data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(raw) != frameSamples*2 {
			t.Errorf("frame %d: %d bytes; want %d", i, len(raw), frameSamples*2)
		}
	}
	select {
	case f := <-p.Frames():
		t.Errorf("unexpected partial frame emitted: seq %d", f.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPipeline_OrderedDespiteParallelEncoding(t *testing.T) {
	src := mock.NewSource()
	p := New(src, WithWorkers(8))
	defer p.Close()

	rng := rand.New(rand.NewPCG(7, 9))
	var rngMu sync.Mutex
	p.encode = func(b []byte) codec.WireFrame {
		rngMu.Lock()
		d := time.Duration(rng.IntN(5)) * time.Millisecond
		rngMu.Unlock()
		time.Sleep(d)
		return codec.Encode(b)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	const n = 40
	for i := range n {
		// First sample of each frame carries its index.
		b := make([]int16, frameSamples)
		b[0] = int16(i)
		src.Push(b)
	}
	for i := range n {
		f := recvFrame(t, p)
		if f.Seq != uint64(i) {
			t.Fatalf("frame %d arrived with Seq %d", i, f.Seq)
		}
		raw, _ := codec.Decode(f.Data)
		if got := audio.BytesToInt16(raw)[0]; got != int16(i) {
			t.Fatalf("frame %d carries payload of frame %d", i, got)
		}
	}
}

func TestPipeline_ResamplesDeviceRate(t *testing.T) {
	src := mock.NewSource()
	p := New(src, WithDeviceSampleRate(48000))
	defer p.Close()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.Push(make([]int16, 4800))

	f := recvFrame(t, p)
	raw, _ := codec.Decode(f.Data)
	if len(raw) != frameSamples*2 {
		t.Errorf("resampled frame = %d bytes; want %d", len(raw), frameSamples*2)
	}
}

func TestPipeline_RestartReleasesDevice(t *testing.T) {
	src := mock.NewSource()
	p := New(src)
	defer p.Close()

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	opens, closes := src.Counts()
	if opens != 2 || closes != 1 {
		t.Errorf("opens=%d closes=%d; want 2 and 1", opens, closes)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if src.Held() {
		t.Error("device still held after Stop")
	}
	if _, closes := src.Counts(); closes != 2 {
		t.Errorf("closes = %d; want 2", closes)
	}
}

func TestPipeline_SeqContinuesAcrossRestart(t *testing.T) {
	src := mock.NewSource()
	p := New(src)
	defer p.Close()

	ctx := context.Background()
	_ = p.Start(ctx)
	src.Push(make([]int16, frameSamples))
	if f := recvFrame(t, p); f.Seq != 0 {
		t.Fatalf("first Seq = %d", f.Seq)
	}
	_ = p.Stop()

	_ = p.Start(ctx)
	src.Push(make([]int16, frameSamples))
	f := recvFrame(t, p)
	if f.Seq != 1 {
		t.Errorf("Seq after restart = %d; want 1", f.Seq)
	}
	if f.Timestamp != 0 {
		t.Errorf("Timestamp after restart = %v; want 0", f.Timestamp)
	}
}

func TestPipeline_StopDuringStart(t *testing.T) {
	src := mock.NewSource()
	src.OpenDelay = 100 * time.Millisecond
	p := New(src)
	defer p.Close()

	startErr := make(chan error, 1)
	go func() { startErr <- p.Start(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-startErr; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p.Recording() {
		t.Error("pipeline still recording after Stop")
	}
	if opens, closes := src.Counts(); opens != 1 || closes != 1 {
		t.Errorf("opens=%d closes=%d; want 1 and 1", opens, closes)
	}
}

func TestPipeline_DeviceUnavailable(t *testing.T) {
	src := mock.NewSource()
	src.OpenErr = errors.New("permission denied")
	p := New(src)
	defer p.Close()

	err := p.Start(context.Background())
	if !errors.Is(err, device.ErrDeviceUnavailable) {
		t.Fatalf("Start error = %v; want ErrDeviceUnavailable", err)
	}
	if p.Recording() {
		t.Error("Recording() = true after failed Start")
	}
}

func TestPipeline_VolumeDoesNotBlockFrames(t *testing.T) {
	src := mock.NewSource()
	p := New(src)
	defer p.Close()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Nobody reads Volume(); frames must still flow.
	const n = 60
	for range n {
		src.Push(rampBlock(1000, frameSamples))
	}
	for i := range n {
		if f := recvFrame(t, p); f.Seq != uint64(i) {
			t.Fatalf("Seq = %d; want %d", f.Seq, i)
		}
	}

	select {
	case v := <-p.Volume():
		if v <= 0 || v > 1 {
			t.Errorf("volume = %v; want (0, 1]", v)
		}
	case <-time.After(time.Second):
		t.Fatal("no volume samples produced")
	}
}

func TestPipeline_CloseClosesChannels(t *testing.T) {
	p := New(mock.NewSource())
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-p.Frames(); ok {
		t.Error("Frames still open after Close")
	}
	if _, ok := <-p.Volume(); ok {
		t.Error("Volume still open after Close")
	}
	if err := p.Start(context.Background()); err == nil {
		t.Error("Start after Close succeeded")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
