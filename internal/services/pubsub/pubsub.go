// Package pubsub fans out endpoint events to interested consumers, such as
// WebSocket monitor sessions.
package pubsub

import (
	"sync"

	"github.com/lucsky/cuid"
)

// Topic names one event stream.
type Topic string

const (
	// TopicDMXReceived carries inbound ArtDMX frames.
	TopicDMXReceived Topic = "DMX_RECEIVED"
	// TopicNodeDiscovered carries node registry updates from ArtPollReply.
	TopicNodeDiscovered Topic = "NODE_DISCOVERED"
	// TopicRawData carries unrecognized datagrams.
	TopicRawData Topic = "RAW_DATA"
	// TopicTransportError carries non-fatal receive-path failures.
	TopicTransportError Topic = "TRANSPORT_ERROR"
)

// Subscription is one consumer's buffered view of a topic.
type Subscription struct {
	ID    string
	Topic Topic
	C     chan interface{}
}

// PubSub distributes messages per topic. Publishing never blocks: a
// subscriber that stops draining its channel misses messages instead of
// stalling the publisher.
type PubSub struct {
	mu     sync.RWMutex
	subs   map[Topic][]*Subscription
	closed bool
}

// New creates an empty PubSub.
func New() *PubSub {
	return &PubSub{subs: make(map[Topic][]*Subscription)}
}

// Subscribe registers a consumer for a topic with the given channel buffer.
// Returns nil after Close.
func (ps *PubSub) Subscribe(topic Topic, buffer int) *Subscription {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil
	}

	sub := &Subscription{
		ID:    cuid.New(),
		Topic: topic,
		C:     make(chan interface{}, buffer),
	}
	ps.subs[topic] = append(ps.subs[topic], sub)
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Unknown
// subscriptions are ignored.
func (ps *PubSub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()

	subs := ps.subs[sub.Topic]
	for i, s := range subs {
		if s.ID == sub.ID {
			close(s.C)
			ps.subs[sub.Topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers a message to every subscriber of the topic,
// non-blocking. The read lock is held across the sends: Unsubscribe and
// Close close subscriber channels under the write lock, so a send can
// never race a close. The sends themselves never block, so the lock is
// held only briefly.
func (ps *PubSub) Publish(topic Topic, message interface{}) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	for _, sub := range ps.subs[topic] {
		select {
		case sub.C <- message:
		default:
			// Subscriber lagging; drop rather than block the event path.
		}
	}
}

// SubscriberCount reports the subscribers on a topic.
func (ps *PubSub) SubscriberCount(topic Topic) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subs[topic])
}

// Close terminates every subscription. Further Subscribe calls return nil;
// further Publish calls are no-ops.
func (ps *PubSub) Close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return
	}
	ps.closed = true
	for topic, subs := range ps.subs {
		for _, sub := range subs {
			close(sub.C)
		}
		delete(ps.subs, topic)
	}
}
