// Package audio holds the PCM primitives shared by the capture and playback
// pipelines: the [Frame] unit, the [Format] descriptor, sample conversion
// helpers and level metering.
//
// All PCM handled here is signed 16-bit little-endian, interleaved when
// multi-channel.
package audio

import "time"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of 16-bit PCM in this format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Duration returns the playback length of n bytes of PCM in this format.
// It returns zero for an invalid format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Bytes returns the number of PCM bytes covering d, rounded down to a whole
// sample frame.
func (f Format) Bytes(d time.Duration) int {
	frame := f.Channels * 2
	if frame <= 0 {
		return 0
	}
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	return n - n%frame
}

// Frame is a single captured unit of audio. Frames are produced by the capture
// pipeline and carry a monotonic sequence number so that stages running out of
// order can restore capture order.
type Frame struct {
	// Seq increases by one for every frame captured since the pipeline started.
	Seq uint64

	// Data is 16-bit PCM in Format.
	Data []byte

	// Format of Data.
	Format Format

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}
