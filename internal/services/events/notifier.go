package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scriba/internal/interfaces"
)

// Event is one progress notification addressed to a channel (session id)
type Event struct {
	Channel   string                 `json:"channel"`
	Name      string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Subscriber receives events for one channel. Handlers run sequentially on a
// dedicated goroutine per subscription, so one subscriber sees events in
// publish order; a slow consumer fills its buffer and loses events rather
// than stalling a pipeline.
type Subscriber func(Event)

// subscriberBuffer bounds how far one consumer may lag before events drop
const subscriberBuffer = 64

type subscription struct {
	id     int
	events chan Event
}

// Service is an in-process pub/sub hub keyed by channel. Publishing is
// fire-and-forget with at-most-once delivery - progress events are a
// real-time UX aid, never a correctness dependency.
type Service struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string][]subscription
	logger arbor.ILogger
}

// NewService creates a progress event service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Compile-time assertion: Service implements ProgressNotifier
var _ interfaces.ProgressNotifier = (*Service)(nil)

// Publish queues an event for every subscriber of the channel. Each
// subscription has its own buffer; a full buffer drops the event for that
// subscriber only. Failures are invisible to the publisher.
func (s *Service) Publish(channelKey, event string, payload map[string]interface{}) {
	evt := Event{
		Channel:   channelKey,
		Name:      event,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	// Sends stay under the read lock so an unsubscribe cannot close a
	// channel mid-send.
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.subs[channelKey]
	if len(subs) == 0 {
		return
	}

	s.logger.Debug().
		Str("channel", channelKey).
		Str("event", event).
		Int("subscriber_count", len(subs)).
		Msg("Publishing progress event")

	for _, sub := range subs {
		select {
		case sub.events <- evt:
		default:
			s.logger.Debug().
				Str("channel", channelKey).
				Str("event", event).
				Int("subscriber_id", sub.id).
				Msg("Subscriber buffer full, event dropped")
		}
	}
}

// Subscribe registers a handler for one channel and returns an unsubscribe
// function. A dedicated goroutine drains the subscription's buffer, so the
// handler observes events in publish order.
func (s *Service) Subscribe(channelKey string, fn Subscriber) func() {
	sub := subscription{events: make(chan Event, subscriberBuffer)}

	s.mu.Lock()
	s.nextID++
	sub.id = s.nextID
	s.subs[channelKey] = append(s.subs[channelKey], sub)
	s.mu.Unlock()

	go func() {
		for evt := range sub.events {
			fn(evt)
		}
	}()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[channelKey]
		for i, candidate := range subs {
			if candidate.id == sub.id {
				s.subs[channelKey] = append(subs[:i], subs[i+1:]...)
				close(candidate.events)
				break
			}
		}
		if len(s.subs[channelKey]) == 0 {
			delete(s.subs, channelKey)
		}
	}
}
