// Package events keeps a bounded log of recent capture events and fans
// new ones out to subscribers.
package events

import (
	"sync"
	"time"
)

// Event types
const (
	TypeStatus        = "status"
	TypeFrameCaptured = "frame_captured"
	TypeCropHighlight = "crop_highlight"
	TypeDebugLog      = "debug_log"
)

// Event is one thing that happened to a capture session.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Store holds recent events in memory.
type Store struct {
	mu      sync.RWMutex
	entries []Event
	maxSize int
	buffer  int
	subs    map[chan Event]struct{}
	now     func() time.Time
}

// NewStore creates a store keeping maxEntries events. Each subscriber gets
// a channel buffered to subscriberBuffer.
func NewStore(maxEntries, subscriberBuffer int) *Store {
	return &Store{
		entries: make([]Event, 0, maxEntries),
		maxSize: maxEntries,
		buffer:  subscriberBuffer,
		subs:    make(map[chan Event]struct{}),
		now:     time.Now,
	}
}

// Emit stores the event and delivers it to subscribers without blocking.
// A subscriber whose buffer is full misses the event.
func (s *Store) Emit(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxSize {
		s.entries = s.entries[len(s.entries)-s.maxSize:]
	}

	for ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel of new events and a func to release it.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, s.buffer)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to n of the newest events, oldest first.
func (s *Store) Recent(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Event, n)
	copy(out, s.entries[len(s.entries)-n:])
	return out
}

// Since returns the events newer than t.
func (s *Store) Since(t time.Time) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.entries {
		if e.Timestamp.After(t) {
			out = append(out, e)
		}
	}
	return out
}
