package live

import "sync"

// pump is an unbounded, order-preserving event queue. push never blocks, so
// the control goroutine cannot be stalled by a slow subscriber.
type pump struct {
	mu     sync.Mutex
	queue  []Event
	signal chan struct{}
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

func newPump() *pump {
	p := &pump{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pump) push(e Event) {
	p.mu.Lock()
	p.queue = append(p.queue, e)
	p.mu.Unlock()
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// close stops delivery. Events still queued are discarded and the output
// channel is closed.
func (p *pump) close() {
	p.once.Do(func() {
		close(p.done)
	})
}

func (p *pump) run() {
	defer close(p.out)
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.mu.Unlock()
			select {
			case <-p.signal:
				continue
			case <-p.done:
				return
			}
		}
		e := p.queue[0]
		p.queue[0] = Event{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		select {
		case p.out <- e:
		case <-p.done:
			return
		}
	}
}
