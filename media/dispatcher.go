package media

import (
	"sync"
	"sync/atomic"
)

// ConsumerHandle identifies a registered consumer.
type ConsumerHandle uint64

// Dispatcher fans frames out to registered consumers. Consumers may be
// added and removed from any goroutine while another goroutine dispatches.
type Dispatcher struct {
	mu        sync.RWMutex
	nextID    ConsumerHandle
	consumers map[ConsumerHandle]func(*Frame) bool
	order     []ConsumerHandle

	dropped atomic.Int64
}

// AddConsumer registers fn and returns a handle for RemoveConsumer. The
// frame passed to fn may be borrowed; fn must call ToOwned to retain it.
// fn reports whether it accepted the frame and must not block.
func (d *Dispatcher) AddConsumer(fn func(*Frame) bool) ConsumerHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.consumers == nil {
		d.consumers = make(map[ConsumerHandle]func(*Frame) bool)
	}
	d.nextID++
	id := d.nextID
	d.consumers[id] = fn
	d.order = append(d.order, id)
	return id
}

// RemoveConsumer unregisters a consumer. Unknown handles are ignored.
func (d *Dispatcher) RemoveConsumer(h ConsumerHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.consumers[h]; !ok {
		return
	}
	delete(d.consumers, h)
	for i, id := range d.order {
		if id == h {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Subscribe returns a buffered channel that receives owned frames and a
// cancel function that unregisters it. Sends never block: when the channel
// is full the frame is dropped and counted.
func (d *Dispatcher) Subscribe(buffer int) (<-chan *Frame, func()) {
	ch := make(chan *Frame, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	h := d.AddConsumer(func(f *Frame) bool {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return false
		}
		select {
		case ch <- f.ToOwned():
			return true
		default:
			d.dropped.Add(1)
			return false
		}
	})
	cancel := func() {
		d.RemoveConsumer(h)
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(ch)
		}
	}
	return ch, cancel
}

// ConsumerCount returns the number of registered consumers.
func (d *Dispatcher) ConsumerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.consumers)
}

// Dropped returns the number of frames dropped by full subscriber channels.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Dispatch delivers f to every consumer in registration order and reports
// whether any consumer accepted it.
func (d *Dispatcher) Dispatch(f *Frame) bool {
	d.mu.RLock()
	if len(d.order) == 0 {
		d.mu.RUnlock()
		return false
	}
	fns := make([]func(*Frame) bool, 0, len(d.order))
	for _, id := range d.order {
		fns = append(fns, d.consumers[id])
	}
	d.mu.RUnlock()

	accepted := false
	for _, fn := range fns {
		if fn(f) {
			accepted = true
		}
	}
	return accepted
}
