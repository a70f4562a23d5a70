// Package bus provides the in-process topic fabric connecting sensors, the
// costmap generator and the planner. Topics fan messages out to subscriber
// channels; slow subscribers drop messages rather than block publishers, and
// latched topics replay their last message to new subscribers.
package bus

import (
	"sync"
	"time"

	"github.com/banshee-data/navstack/internal/monitoring"
)

// Message is one published sample on a topic. Seq increases monotonically
// per topic.
type Message struct {
	Topic   string
	Seq     uint64
	Stamp   time.Time
	Payload interface{}
}

type subscriber struct {
	ch chan Message
}

type topic struct {
	mu      sync.Mutex
	name    string
	latched bool
	seq     uint64
	last    *Message
	subs    map[int]*subscriber
	nextSub int
	dropped uint64
}

// Bus is the topic registry. The zero value is not usable; call New.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string]*topic)}
}

// Latch marks a topic as latched before any publish: new subscribers will
// immediately receive the most recent message.
func (b *Bus) Latch(name string) {
	t := b.topic(name)
	t.mu.Lock()
	t.latched = true
	t.mu.Unlock()
}

func (b *Bus) topic(name string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = &topic{name: name, subs: make(map[int]*subscriber)}
		b.topics[name] = t
	}
	return t
}

// Publish stamps and fans a payload out to every subscriber of the topic.
// Subscribers whose buffer is full miss the message.
func (b *Bus) Publish(name string, stamp time.Time, payload interface{}) {
	t := b.topic(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	m := Message{Topic: name, Seq: t.seq, Stamp: stamp, Payload: payload}
	if t.latched {
		t.last = &m
	}
	for _, s := range t.subs {
		select {
		case s.ch <- m:
		default:
			t.dropped++
			if t.dropped%100 == 1 {
				monitoring.Logf("[bus] %s: dropped %d messages to slow subscribers", t.name, t.dropped)
			}
		}
	}
}

// Subscribe registers a buffered subscriber channel on a topic and returns it
// with a cancel function. For latched topics the last published message is
// delivered immediately.
func (b *Bus) Subscribe(name string, buffer int) (<-chan Message, func()) {
	if buffer < 1 {
		buffer = 1
	}
	t := b.topic(name)
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextSub
	t.nextSub++
	s := &subscriber{ch: make(chan Message, buffer)}
	t.subs[id] = s
	if t.latched && t.last != nil {
		s.ch <- *t.last
	}

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if _, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(s.ch)
		}
	}
	return s.ch, cancel
}

// Last returns the most recent message on a latched topic, if any.
func (b *Bus) Last(name string) (Message, bool) {
	t := b.topic(name)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Message{}, false
	}
	return *t.last, true
}
