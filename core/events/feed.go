package events

import (
	"sync"

	"swapledger/core/types"
)

// Feed fans committed events out to live subscribers. Publishing never blocks:
// a subscriber whose channel is full is evicted and its channel closed, so a
// consumer never sees a silent gap. Evicted consumers resume from the event
// log using the last sequence number they received.
type Feed struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]*subscription
	evicted uint64
}

type subscription struct {
	ch     chan types.LoggedEvent
	closed bool
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]*subscription)}
}

// Subscribe registers a subscriber with the given channel capacity. The
// returned cancel function closes the channel and is safe to call twice, also
// after an eviction.
func (f *Feed) Subscribe(capacity int) (<-chan types.LoggedEvent, func()) {
	if capacity <= 0 {
		capacity = 64
	}
	sub := &subscription{ch: make(chan types.LoggedEvent, capacity)}
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = sub
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.remove(id, sub)
	}
	return sub.ch, cancel
}

// remove must be called with f.mu held.
func (f *Feed) remove(id int, sub *subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(f.subs, id)
	close(sub.ch)
}

// Publish delivers evt to every subscriber and evicts those without room.
func (f *Feed) Publish(evt types.LoggedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, sub := range f.subs {
		select {
		case sub.ch <- evt:
		default:
			f.remove(id, sub)
			f.evicted++
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Evicted reports how many subscriptions were closed for falling behind.
func (f *Feed) Evicted() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evicted
}
