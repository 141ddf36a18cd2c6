package playback

import "time"

// Scheduled describes where an enqueued chunk sits on the playback timeline.
type Scheduled struct {
	// Seq is the enqueue order, unique for the lifetime of the pipeline.
	Seq uint64

	// Start and End bound the chunk on the pipeline clock. For consecutive
	// chunks End of one equals Start of the next.
	Start time.Time
	End   time.Time
}

// Duration returns End minus Start.
func (s Scheduled) Duration() time.Duration { return s.End.Sub(s.Start) }

// item is one decoded chunk waiting to be written.
type item struct {
	sched   Scheduled
	gen     uint64
	samples []int16
}

// Buffer is a FIFO of decoded chunks awaiting output. Clear discards
// everything at once: interruption never drains queued audio through the
// device. Not safe for concurrent use; the pipeline guards it.
type Buffer struct {
	items []item
	head  int
}

// Len returns the number of queued chunks.
func (b *Buffer) Len() int { return len(b.items) - b.head }

// push appends it at the tail.
func (b *Buffer) push(it item) {
	b.items = append(b.items, it)
}

// pop removes the head item.
func (b *Buffer) pop() (item, bool) {
	if b.Len() == 0 {
		return item{}, false
	}
	it := b.items[b.head]
	b.items[b.head] = item{}
	b.head++
	if b.head == len(b.items) {
		b.items = b.items[:0]
		b.head = 0
	}
	return it, true
}

// Clear drops every queued chunk.
func (b *Buffer) Clear() {
	clear(b.items)
	b.items = b.items[:0]
	b.head = 0
}

// Scheduled returns the schedule of every queued chunk in FIFO order.
func (b *Buffer) Scheduled() []Scheduled {
	out := make([]Scheduled, 0, b.Len())
	for _, it := range b.items[b.head:] {
		out = append(out, it.sched)
	}
	return out
}
