package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it when a pipeline output is not consumed (for example the volume
// channel when no meter is attached) so producers can exit cleanly.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
