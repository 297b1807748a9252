package alert

import (
	"sync"

	"github.com/rs/zerolog"
)

const DefaultHistorySize = 100

// Subscriber is an opaque delivery handle. Send must be safe to call from
// multiple goroutines; Disconnect tears down the underlying transport.
type Subscriber interface {
	Send(alert Alert) error
	Disconnect()
}

// Hub owns the connected subscriber set and a bounded ring of recent alerts.
// Broadcast never fails the caller: a subscriber whose delivery errors is
// removed and disconnected without affecting the others.
type Hub struct {
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	recent      []Alert
	start       int
	count       int
}

func NewHub(logger zerolog.Logger, historySize int) *Hub {
	if historySize < 1 {
		historySize = DefaultHistorySize
	}
	return &Hub{
		logger:      logger,
		subscribers: make(map[Subscriber]struct{}),
		recent:      make([]Alert, historySize),
	}
}

func (h *Hub) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	total := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Info().Int("subscribers", total).Msg("alert subscriber connected")
}

func (h *Hub) Unsubscribe(s Subscriber) {
	if s == nil {
		return
	}
	h.mu.Lock()
	_, present := h.subscribers[s]
	delete(h.subscribers, s)
	total := len(h.subscribers)
	h.mu.Unlock()

	if present {
		h.logger.Info().Int("subscribers", total).Msg("alert subscriber disconnected")
	}
}

// SubscriberCount reports the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast records the alert in the ring buffer and fans it out to every
// connected subscriber concurrently.
func (h *Hub) Broadcast(alert Alert) {
	h.mu.Lock()
	h.record(alert)
	targets := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, s := range targets {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Send(alert); err != nil {
				h.logger.Warn().Err(err).Str("level", string(alert.Level)).Msg("alert delivery failed, dropping subscriber")
				h.Unsubscribe(s)
				s.Disconnect()
			}
		}()
	}
	wg.Wait()
}

// Recent returns the retained alerts, oldest first. Late joiners pull this
// explicitly; history is never pushed on connect.
func (h *Hub) Recent() []Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Alert, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.recent[(h.start+i)%len(h.recent)])
	}
	return out
}

// record appends into the ring, evicting the oldest entry at capacity.
// Caller holds h.mu.
func (h *Hub) record(alert Alert) {
	capacity := len(h.recent)
	if h.count < capacity {
		h.recent[(h.start+h.count)%capacity] = alert
		h.count++
		return
	}
	h.recent[h.start] = alert
	h.start = (h.start + 1) % capacity
}
