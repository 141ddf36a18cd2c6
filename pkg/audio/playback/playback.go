// Package playback schedules decoded model audio onto an output device.
//
// Chunks are laid end to end on the pipeline clock: each chunk starts exactly
// where the previous one ends, or now if the output has gone idle. A single
// dispatch goroutine writes queued chunks to the device in fixed-size blocks.
// [Pipeline.Flush] is a hard cut: the queue is discarded and the block being
// written is the last one heard.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxlink/pkg/audio"
	"github.com/MrWong99/voxlink/pkg/audio/device"
)

const (
	// DefaultSampleRate is the rate of audio produced by the live service.
	DefaultSampleRate = 24000

	// DefaultBlock is the device write granularity and therefore the upper
	// bound on how much audio plays after a Flush.
	DefaultBlock = 20 * time.Millisecond
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("playback: pipeline closed")

// Clock returns the current time on the playback timeline.
type Clock func() time.Time

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithSampleRate sets the rate of enqueued PCM and of the output stream.
func WithSampleRate(hz int) Option {
	return func(p *Pipeline) {
		if hz > 0 {
			p.format.SampleRate = hz
		}
	}
}

// WithClock replaces the wall clock used for scheduling.
func WithClock(c Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithBlock sets the device write block duration.
func WithBlock(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.blockDur = d
		}
	}
}

// WithIdleSuspend suspends the output stream after it has had nothing to
// play for d. The next Enqueue resumes it. Zero disables suspension.
func WithIdleSuspend(d time.Duration) Option {
	return func(p *Pipeline) { p.idleAfter = d }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// Pipeline plays 16-bit mono PCM chunks on a [device.OutputStream] that lives
// as long as the pipeline. All exported methods are safe for concurrent use.
type Pipeline struct {
	format    audio.Format
	clock     Clock
	blockDur  time.Duration
	block     int // samples per device write
	idleAfter time.Duration
	log       *slog.Logger

	stream   device.OutputStream
	resuming atomic.Bool

	mu     sync.Mutex
	buf    Buffer
	seq    uint64
	gen    uint64    // bumped by Flush; stale items and blocks are skipped
	end    time.Time // schedule cursor; zero after Flush
	closed bool

	volume  chan float64
	notify  chan struct{} // work available
	resumed chan struct{} // a resume completed
	done    chan struct{}
	stopped chan struct{}
}

// New opens an output stream on sink and starts the dispatch goroutine.
func New(ctx context.Context, sink device.Sink, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		format:   audio.Format{SampleRate: DefaultSampleRate, Channels: 1},
		clock:    time.Now,
		blockDur: DefaultBlock,
		log:      slog.Default(),
		volume:   make(chan float64, 32),
		notify:   make(chan struct{}, 1),
		resumed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.block = max(p.format.Bytes(p.blockDur)/2, 1)

	stream, err := sink.Open(ctx, p.format, p.block)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %w", device.ErrDeviceUnavailable, err)
		}
		return nil, fmt.Errorf("playback: open output: %w", err)
	}
	p.stream = stream

	go p.dispatch()
	return p, nil
}

// Format returns the PCM format expected by Enqueue.
func (p *Pipeline) Format() audio.Format { return p.format }

// Enqueue appends chunk to the tail of the buffer and returns its slot on the
// timeline: Start is the previous chunk's End, or now if that is in the past.
// If the output is suspended a resume is started in the background; Enqueue
// never waits for it.
func (p *Pipeline) Enqueue(chunk []byte) (Scheduled, error) {
	samples := audio.BytesToInt16(chunk)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Scheduled{}, ErrClosed
	}
	now := p.clock()
	start := now
	if p.end.After(now) {
		start = p.end
	}
	p.seq++
	s := Scheduled{
		Seq:   p.seq,
		Start: start,
		End:   start.Add(p.format.Duration(len(samples) * 2)),
	}
	p.end = s.End
	if len(samples) > 0 {
		p.buf.push(item{sched: s, gen: p.gen, samples: samples})
	}
	p.mu.Unlock()

	p.ensureResumed()
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return s, nil
}

// Flush discards all queued audio and cancels the chunk being written at its
// next block boundary. The schedule restarts at the next Enqueue.
func (p *Pipeline) Flush() {
	p.mu.Lock()
	dropped := p.buf.Len()
	p.buf.Clear()
	p.gen++
	p.end = time.Time{}
	p.mu.Unlock()

	p.log.Debug("playback flushed", "dropped_chunks", dropped)
}

// Pending returns the schedule of chunks not yet handed to the device.
func (p *Pipeline) Pending() []Scheduled {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Scheduled()
}

// Volume returns the output level of each written block in [0, 1]. Levels
// are dropped when the consumer lags. Closed by [Pipeline.Close].
func (p *Pipeline) Volume() <-chan float64 { return p.volume }

// Close stops dispatch, discards queued audio and closes the output stream.
// Close is idempotent.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.buf.Clear()
	p.gen++
	p.mu.Unlock()

	close(p.done)
	<-p.stopped
	close(p.volume)
	return p.stream.Close()
}

// ensureResumed starts at most one background resume of a suspended stream.
func (p *Pipeline) ensureResumed() {
	if !p.stream.Suspended() || !p.resuming.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.resuming.Store(false)
		if err := p.stream.Resume(); err != nil {
			p.log.Warn("playback resume failed", "err", err)
			return
		}
		select {
		case p.resumed <- struct{}{}:
		default:
		}
	}()
}

// dispatch is the only goroutine that writes to the device.
func (p *Pipeline) dispatch() {
	defer close(p.stopped)

	var idle <-chan time.Time
	var idleTimer *time.Timer
	if p.idleAfter > 0 {
		idleTimer = time.NewTimer(p.idleAfter)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}

	for {
		select {
		case <-p.done:
			return
		case <-p.notify:
		case <-idle:
			p.mu.Lock()
			empty := p.buf.Len() == 0
			p.mu.Unlock()
			if empty && !p.stream.Suspended() {
				if err := p.stream.Suspend(); err != nil {
					p.log.Warn("playback suspend failed", "err", err)
				} else {
					p.log.Debug("playback output suspended", "idle", p.idleAfter)
				}
			}
			continue
		}

		p.drain()

		if idleTimer != nil {
			idleTimer.Reset(p.idleAfter)
		}
	}
}

// drain writes queued chunks until the buffer is empty. Only whole blocks are
// written while more audio follows; a trailing partial block is carried into
// the next chunk so the device never pads silence mid-stream.
func (p *Pipeline) drain() {
	var (
		carry    []int16
		carryGen uint64
	)
	for {
		p.mu.Lock()
		it, ok := p.buf.pop()
		gen := p.gen
		p.mu.Unlock()
		if !ok {
			break
		}
		if it.gen != gen {
			carry = nil
			continue
		}
		samples := it.samples
		if len(carry) > 0 && carryGen == it.gen {
			samples = append(carry, samples...)
		}
		carry = nil

		whole := len(samples) / p.block * p.block
		if !p.write(samples[:whole], it.gen) {
			continue
		}
		if whole < len(samples) {
			carry = append([]int16(nil), samples[whole:]...)
			carryGen = it.gen
		}
	}
	if len(carry) > 0 {
		p.write(carry, carryGen)
	}
}

// write sends samples to the device block by block. It returns false as soon
// as gen is superseded by a Flush or the pipeline is closing.
func (p *Pipeline) write(samples []int16, gen uint64) bool {
	for off := 0; off < len(samples); off += p.block {
		if !p.awaitActive() {
			return false
		}
		p.mu.Lock()
		current := p.gen == gen
		p.mu.Unlock()
		if !current {
			return false
		}

		blk := samples[off:min(off+p.block, len(samples))]
		if err := p.stream.Write(blk); err != nil {
			if errors.Is(err, device.ErrStreamClosed) {
				return false
			}
			p.log.Warn("playback write failed", "err", err)
			continue
		}
		select {
		case p.volume <- audio.Level(blk):
		default:
		}
	}
	return true
}

// awaitActive blocks while the stream is suspended, triggering a resume if
// none is running. Returns false when the pipeline is closing.
func (p *Pipeline) awaitActive() bool {
	for p.stream.Suspended() {
		p.ensureResumed()
		select {
		case <-p.done:
			return false
		case <-p.resumed:
		case <-time.After(p.blockDur):
		}
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}
