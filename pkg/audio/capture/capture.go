// Package capture turns a live input device into an ordered stream of
// encoded, fixed-duration PCM frames ready for the session transport.
//
// A [Pipeline] runs four stages per recording, each on its own goroutine so
// device reads never wait on the consumer:
//
//	device reader ─▶ encoder workers (parallel) ─▶ re-orderer ─▶ Frames()
//	      └────────▶ volume tap ─▶ Volume()
//
// Encoders may finish out of capture order; the re-orderer releases frames
// strictly by sequence number. The volume tap is best-effort: a slow meter
// consumer or a failure inside the tap never stalls or breaks frame flow.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/audio/device"
	"github.com/MrWong99/voxlink/pkg/codec"
)

const (
	// DefaultSampleRate is the wire sample rate expected by the live service.
	DefaultSampleRate = 16000

	// DefaultFrameDuration is the length of one emitted frame.
	DefaultFrameDuration = 100 * time.Millisecond

	// DefaultWorkers is the number of concurrent frame encoders.
	DefaultWorkers = 4

	// DefaultVolumeWindow is the cadence of input level samples.
	DefaultVolumeWindow = 20 * time.Millisecond

	defaultOutputBuffer = 32
)

// Encoded is one captured frame in wire representation.
type Encoded struct {
	// Seq is the capture sequence number. It increases by one per frame for
	// the lifetime of the pipeline, across restarts.
	Seq uint64

	// Timestamp is the capture offset of the frame's first sample from the
	// start of the current recording.
	Timestamp time.Duration

	// MIMEType describes Data, e.g. "audio/pcm;rate=16000".
	MIMEType string

	// Data is the base64 payload.
	Data codec.WireFrame
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithSampleRate sets the wire sample rate. Device audio at another rate is
// resampled.
func WithSampleRate(hz int) Option {
	return func(p *Pipeline) {
		if hz > 0 {
			p.rate = hz
		}
	}
}

// WithDeviceSampleRate requests a device rate different from the wire rate.
// Zero (default) opens the device at the wire rate.
func WithDeviceSampleRate(hz int) Option {
	return func(p *Pipeline) { p.deviceRate = hz }
}

// WithFrameDuration sets the emitted frame length.
func WithFrameDuration(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.frameDur = d
		}
	}
}

// WithWorkers sets the number of concurrent encoders.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithVolumeWindow sets the input level cadence. It should be shorter than
// the frame duration.
func WithVolumeWindow(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.volumeWindow = d
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// Pipeline owns the input device while recording. Start and Stop are safe for
// concurrent use and may overlap; they are applied one at a time in call
// order, so the device is acquired and released exactly once per recording.
type Pipeline struct {
	src          device.Source
	rate         int
	deviceRate   int
	frameDur     time.Duration
	workers      int
	volumeWindow time.Duration
	log          *slog.Logger

	// encode is swapped in tests to inject out-of-order completion.
	encode func([]byte) codec.WireFrame

	frames chan Encoded
	volume chan float64

	lifecycle sync.Mutex // serialises Start, Stop and Close

	mu      sync.Mutex
	cur     *recording
	nextSeq uint64
	closed  bool
}

// New creates a stopped pipeline reading from src.
func New(src device.Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		src:          src,
		rate:         DefaultSampleRate,
		frameDur:     DefaultFrameDuration,
		workers:      DefaultWorkers,
		volumeWindow: DefaultVolumeWindow,
		log:          slog.Default(),
		encode:       codec.Encode,
		frames:       make(chan Encoded, defaultOutputBuffer),
		volume:       make(chan float64, defaultOutputBuffer),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Frames returns the ordered stream of encoded frames. The channel stays open
// across Start/Stop cycles and is closed by [Pipeline.Close].
func (p *Pipeline) Frames() <-chan Encoded { return p.frames }

// Volume returns input levels in [0, 1]. Values are dropped when the consumer
// is not keeping up. Closed by [Pipeline.Close].
func (p *Pipeline) Volume() <-chan float64 { return p.volume }

// Recording reports whether the device is currently held.
func (p *Pipeline) Recording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur != nil
}

// Start acquires the device and begins producing frames. If already
// recording, the current recording is fully stopped first. ctx bounds device
// acquisition only; the recording runs until Stop.
//
// Returns an error wrapping [device.ErrDeviceUnavailable] when the platform
// denies access.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errors.New("capture: pipeline closed")
	}

	p.stopLocked()

	devRate := p.rate
	if p.deviceRate > 0 {
		devRate = p.deviceRate
	}
	devFormat := audio.Format{SampleRate: devRate, Channels: 1}
	block := devFormat.Bytes(p.volumeWindow) / 2
	if block <= 0 {
		block = devRate / 50
	}

	stream, err := p.src.Open(ctx, devFormat, block)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", device.ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("capture: open input: %w", err)
	}

	rec := p.begin(stream)

	p.mu.Lock()
	p.cur = rec
	p.mu.Unlock()

	p.log.Info("capture started",
		"device_rate", stream.Format().SampleRate,
		"wire_rate", p.rate,
		"frame", p.frameDur,
		"workers", p.workers,
	)
	return nil
}

// Stop releases the device, discards frames still in flight and detaches all
// stages. A Stop issued while Start is in progress runs after Start settles.
// Stop on a stopped pipeline is a no-op.
func (p *Pipeline) Stop() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.stopLocked()
}

// Close stops recording and closes the Frames and Volume channels. The
// pipeline cannot be restarted afterwards.
func (p *Pipeline) Close() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.stopLocked()
	close(p.frames)
	close(p.volume)
	return err
}

// stopLocked ends the current recording, if any. Caller holds p.lifecycle.
func (p *Pipeline) stopLocked() error {
	p.mu.Lock()
	rec := p.cur
	p.cur = nil
	p.mu.Unlock()

	if rec == nil {
		return nil
	}
	err := rec.stop()
	p.log.Info("capture stopped", "frames", rec.produced)
	return err
}

// ── recording ─────────────────────────────────────────────────────────────────

type job struct {
	frame audio.Frame
}

// recording is the set of goroutines and the device handle for one
// Start/Stop cycle.
type recording struct {
	stream device.InputStream
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
	stopErr  error
	produced uint64 // written by the reader before wg.Done
}

func (p *Pipeline) begin(stream device.InputStream) *recording {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recording{stream: stream, cancel: cancel}

	jobs := make(chan job, p.workers*2)
	results := make(chan Encoded, p.workers*2)
	taps := make(chan []int16, 16)

	p.mu.Lock()
	firstSeq := p.nextSeq
	p.mu.Unlock()

	rec.wg.Add(3)
	go p.read(ctx, rec, jobs, taps)
	go p.reorder(ctx, rec, firstSeq, results)
	go p.tap(ctx, rec, taps)

	var workers sync.WaitGroup
	workers.Add(p.workers)
	for range p.workers {
		go func() {
			defer workers.Done()
			p.encodeLoop(ctx, jobs, results)
		}()
	}
	rec.wg.Add(1)
	go func() {
		defer rec.wg.Done()
		workers.Wait()
		close(results)
	}()
	return rec
}

// stop cancels all stages, closes the device and waits for every goroutine.
func (r *recording) stop() error {
	r.stopOnce.Do(func() {
		r.cancel()
		r.stopErr = r.stream.Close()
		r.wg.Wait()
	})
	return r.stopErr
}

// read is the real-time stage: it pulls device blocks, converts them to wire
// format, cuts fixed-size frames and hands them to the encoders.
func (p *Pipeline) read(ctx context.Context, rec *recording, jobs chan<- job, taps chan<- []int16) {
	defer rec.wg.Done()
	defer close(jobs)
	defer close(taps)

	devFormat := rec.stream.Format()
	wire := audio.Format{SampleRate: p.rate, Channels: 1}
	frameSamples := wire.Bytes(p.frameDur) / 2
	acc := make([]int16, 0, frameSamples*2)
	var local uint64

	for {
		block, err := rec.stream.Read()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, device.ErrStreamClosed) {
				p.log.Warn("capture read failed", "err", err)
			}
			return
		}
		block = audio.DownmixInt16(block, devFormat.Channels)
		block = audio.ResampleInt16(block, devFormat.SampleRate, wire.SampleRate)

		// Volume tap: never block the real-time path.
		select {
		case taps <- block:
		default:
		}

		acc = append(acc, block...)
		for len(acc) >= frameSamples {
			pcm := audio.Int16ToBytes(acc[:frameSamples])
			acc = append(acc[:0], acc[frameSamples:]...)

			p.mu.Lock()
			seq := p.nextSeq
			p.nextSeq++
			p.mu.Unlock()

			f := audio.Frame{
				Seq:       seq,
				Data:      pcm,
				Format:    wire,
				Timestamp: time.Duration(local) * p.frameDur,
			}
			local++
			select {
			case jobs <- job{frame: f}:
				rec.produced = local
			case <-ctx.Done():
				return
			}
		}
	}
}

// encodeLoop converts frames to wire payloads. Several run concurrently and
// may complete in any order.
func (p *Pipeline) encodeLoop(ctx context.Context, jobs <-chan job, results chan<- Encoded) {
	mime := codec.MIMEType(p.rate)
	for j := range jobs {
		enc := Encoded{
			Seq:       j.frame.Seq,
			Timestamp: j.frame.Timestamp,
			MIMEType:  mime,
			Data:      p.encode(j.frame.Data),
		}
		select {
		case results <- enc:
		case <-ctx.Done():
			return
		}
	}
}

// reorder releases encoded frames in sequence order. Frames that complete
// early wait in pending until their predecessors arrive.
func (p *Pipeline) reorder(ctx context.Context, rec *recording, next uint64, results <-chan Encoded) {
	defer rec.wg.Done()
	pending := make(map[uint64]Encoded)
	for enc := range results {
		pending[enc.Seq] = enc
		for {
			e, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			select {
			case p.frames <- e:
			case <-ctx.Done():
				return
			}
		}
	}
	if len(pending) > 0 {
		p.log.Debug("capture discarded unordered frames on stop", "count", len(pending))
	}
}

// tap computes input levels at the volume cadence. A panic inside the tap is
// logged and the tap keeps running; it never touches the frame path.
func (p *Pipeline) tap(ctx context.Context, rec *recording, taps <-chan []int16) {
	defer rec.wg.Done()
	window := audio.Format{SampleRate: p.rate, Channels: 1}.Bytes(p.volumeWindow) / 2
	if window <= 0 {
		window = 1
	}
	var acc []int16
	for block := range taps {
		acc = append(acc, block...)
		for len(acc) >= window {
			p.emitLevel(ctx, acc[:window])
			acc = acc[window:]
		}
		if len(acc) == 0 {
			acc = nil
		}
	}
}

func (p *Pipeline) emitLevel(ctx context.Context, samples []int16) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("capture volume tap failed", "panic", r)
		}
	}()
	if ctx.Err() != nil {
		return
	}
	level := audio.Level(samples)
	select {
	case p.volume <- level:
	default:
	}
}
