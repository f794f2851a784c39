package service

import "time"

// EventType enumerates the lifecycle hooks the service emits.
type EventType string

const (
	EventCacheHit     EventType = "cache_hit"
	EventCacheMiss    EventType = "cache_miss"
	EventSyncStart    EventType = "sync_start"
	EventSyncComplete EventType = "sync_complete"
	EventSyncError    EventType = "sync_error"
	EventTokenNew     EventType = "token_new"
	EventTokenUpdated EventType = "token_updated"
)

// Event is an observability hook payload. Events are emitted synchronously
// and are purely informational; no service behaviour depends on listeners.
type Event struct {
	Type   EventType
	Source string
	Symbol string
	Err    error
	At     time.Time
}

// Listener receives service lifecycle events.
type Listener func(Event)

// Subscribe registers a lifecycle listener. Listener panics are caught and
// logged so a broken hook can never fail the emitting operation.
func (s *Service) Subscribe(listener Listener) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *Service) emit(event Event) {
	event.At = s.now()

	s.listenerMu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.RUnlock()

	for _, listener := range listeners {
		s.safeInvoke(listener, event)
	}
}

func (s *Service) safeInvoke(listener Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("event", string(event.Type)).Msg("event listener panicked")
		}
	}()
	listener(event)
}
