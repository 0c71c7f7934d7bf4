// Package events delivers job lifecycle events to listeners in commit order and relays
// them to other processes over Redis and MQTT.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/hvac_dispatch/backend/internal/models"
)

var ErrClosed = errors.New("event bus closed")

type Handler func(models.Event)

// Bus is an in-process publish/subscribe bus. Publish stamps each event with the next
// sequence number; every subscriber receives its events in sequence order on its own
// goroutine, so a slow subscriber delays only itself.
type Bus struct {
	origin string

	mu     sync.Mutex
	seq    uint64
	nextID int
	subs   map[int]*subscriber
	closed bool
	wg     sync.WaitGroup
}

func NewBus() *Bus {
	return &Bus{origin: uuid.NewString(), subs: map[int]*subscriber{}}
}

// Publish assigns the sequence number and queues the event for every matching subscriber.
func (b *Bus) Publish(_ context.Context, ev models.Event) (models.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ev, ErrClosed
	}
	b.seq++
	ev.Origin = b.origin
	ev.Sequence = b.seq
	for _, s := range b.subs {
		if s.typ == "" || s.typ == ev.Type {
			s.enqueue(ev)
		}
	}
	return ev, nil
}

// Subscribe registers handler for one event type, or for every type when typ is empty.
// The returned func unsubscribes; events already queued are still delivered.
func (b *Bus) Subscribe(typ models.EventType, handler Handler) func() {
	s := &subscriber{typ: typ, handler: handler, wake: make(chan struct{}, 1), done: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		s.run()
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			_, live := b.subs[id]
			delete(b.subs, id)
			b.mu.Unlock()
			if live {
				close(s.done)
			}
		})
	}
}

// Origin identifies this bus in relayed events.
func (b *Bus) Origin() string { return b.origin }

// Sequence returns the number of the last published event.
func (b *Bus) Sequence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close stops accepting events and waits for subscribers to drain their queues.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[int]*subscriber{}
	b.mu.Unlock()

	for _, s := range subs {
		close(s.done)
	}
	b.wg.Wait()
}

type subscriber struct {
	typ     models.EventType
	handler Handler

	mu      sync.Mutex
	pending []models.Event
	wake    chan struct{}
	done    chan struct{}
}

func (s *subscriber) enqueue(ev models.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) drain() {
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			s.handler(ev)
		}
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.done:
			s.drain()
			return
		}
	}
}
