package pubsub

import (
	"context"
	"sync"
)

// subscriberBuffer is the per-subscription channel depth. A subscriber that
// falls further behind than this starts losing messages rather than blocking
// the publisher.
const subscriberBuffer = 100

// PubSub fans published messages out to channel subscribers, one topic per
// notification channel.
type PubSub struct {
	subscribers map[string]map[*Subscription]bool
	mu          sync.RWMutex
	shutdown    chan struct{}
	shutdownMu  sync.Mutex
	isShutdown  bool
}

// Subscription is one subscriber's handle on a topic.
type Subscription struct {
	topic     string
	channel   chan any
	ps        *PubSub
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a new PubSub instance
func New() *PubSub {
	return &PubSub{
		subscribers: make(map[string]map[*Subscription]bool),
		shutdown:    make(chan struct{}),
	}
}

// Subscribe creates a new subscription to a topic. The subscription ends when
// the context is cancelled, Unsubscribe is called, or the bus shuts down.
func (ps *PubSub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return nil, ErrShutdown
	}
	ps.shutdownMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		topic:   topic,
		channel: make(chan any, subscriberBuffer),
		ps:      ps,
		ctx:     subCtx,
		cancel:  cancel,
	}

	ps.mu.Lock()
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*Subscription]bool)
	}
	ps.subscribers[topic][sub] = true
	ps.mu.Unlock()

	go func() {
		select {
		case <-subCtx.Done():
			sub.Unsubscribe()
		case <-ps.shutdown:
			sub.close()
		}
	}()

	return sub, nil
}

// Publish sends a message to every subscriber of a topic. Sends are
// non-blocking, a full subscriber loses the message. Returns the number of
// subscribers that missed it.
func (ps *PubSub) Publish(topic string, message any) int {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return 0
	}
	ps.shutdownMu.Unlock()

	// Snapshot the subscriber set under lock, channel sends happen outside
	// so a slow subscriber never holds the map lock.
	ps.mu.RLock()
	topicSubs := ps.subscribers[topic]
	if len(topicSubs) == 0 {
		ps.mu.RUnlock()
		return 0
	}
	subs := make([]*Subscription, 0, len(topicSubs))
	for sub := range topicSubs {
		subs = append(subs, sub)
	}
	ps.mu.RUnlock()

	dropped := 0
	for _, sub := range subs {
		select {
		case sub.channel <- message:
		default:
			dropped++
		}
	}
	return dropped
}

// SubscriberCount returns the number of subscribers for a topic
func (ps *PubSub) SubscriberCount(topic string) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.subscribers[topic])
}

// Shutdown closes every subscription and stops accepting new ones.
func (ps *PubSub) Shutdown() {
	ps.shutdownMu.Lock()
	if ps.isShutdown {
		ps.shutdownMu.Unlock()
		return
	}
	ps.isShutdown = true
	close(ps.shutdown)
	ps.shutdownMu.Unlock()

	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, subs := range ps.subscribers {
		for sub := range subs {
			sub.close()
		}
	}
	ps.subscribers = make(map[string]map[*Subscription]bool)
}

// Channel returns the receive side of the subscription.
func (s *Subscription) Channel() <-chan any {
	return s.channel
}

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe removes the subscription from the bus and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.ps.mu.Lock()
	if subs := s.ps.subscribers[s.topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.ps.subscribers, s.topic)
		}
	}
	s.ps.mu.Unlock()

	s.close()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.channel)
	})
}
