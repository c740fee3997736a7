package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Event is one progress mutation or flush as seen by stream subscribers.
type Event struct {
	Type      string `json:"type"`
	Subject   string `json:"subject"`
	ItemKey   string `json:"itemKey,omitempty"`
	Value     string `json:"value,omitempty"`
	Timestamp string `json:"timestamp"`
}

const (
	eventItemCheckbox = "item.checkbox"
	eventItemRag      = "item.rag"
	eventMode         = "mode"
	eventScan         = "checklist.scan"
)

type eventHub struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subscribers: map[chan Event]struct{}{}}
}

func (h *eventHub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// publish fans the event out without blocking: a subscriber that cannot keep
// up misses events rather than stalling mutation handlers.
func (h *eventHub) publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	events, cancel := s.events.subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-events:
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}
