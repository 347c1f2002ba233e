package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/netviz/internal/logging"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/observability"
)

// Message is one live feed frame.
type Message struct {
	Type       domain.EventType   `json:"type"`
	CycleID    string             `json:"cycle_id,omitempty"`
	Op         string             `json:"op,omitempty"`
	Generation uint64             `json:"generation,omitempty"`
	Nodes      int                `json:"nodes,omitempty"`
	Links      int                `json:"links,omitempty"`
	Groups     int                `json:"groups,omitempty"`
	Key        string             `json:"key,omitempty"`
	Kind       string             `json:"kind,omitempty"`
	Error      string             `json:"error,omitempty"`
	Fact       *domain.Fact       `json:"fact,omitempty"`
	Ticks      int                `json:"ticks,omitempty"`
	Routes     []domain.EdgeRoute `json:"routes,omitempty"`
}

// EventConnected is the first frame every subscriber receives.
const EventConnected domain.EventType = "connected"

// Feed fans lifecycle events out to live subscribers.
// Slow subscribers miss frames instead of blocking the graph.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
	buffer      int
	logger      *slog.Logger
}

// NewFeed creates a feed. A nil logger discards output.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Feed{
		subscribers: make(map[chan []byte]struct{}),
		buffer:      32,
		logger:      logger,
	}
}

// Subscribe registers a subscriber. The returned func unregisters it and closes
// the channel.
func (f *Feed) Subscribe() (<-chan []byte, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan []byte, f.buffer)
	f.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subscribers, ch)
			close(ch)
		})
	}
}

// Len returns the number of subscribers.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Broadcast sends msg to every subscriber.
func (f *Feed) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		f.logger.Error("Feed: encode failed", "type", msg.Type, "err", err)
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for ch := range f.subscribers {
		select {
		case ch <- payload:
		default:
			f.logger.Warn("Feed: subscriber buffer full, dropping frame", "type", msg.Type)
		}
	}
}

// Hooks returns lifecycle hooks that broadcast graph events.
func (f *Feed) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStructuralChange: func(_ context.Context, e *domain.CycleEvent) {
			f.Broadcast(Message{Type: e.Type, CycleID: e.CycleID, Op: e.Op, Generation: e.Generation})
		},
		OnReprojected: func(_ context.Context, e *domain.CycleEvent) {
			f.Broadcast(Message{
				Type:       e.Type,
				CycleID:    e.CycleID,
				Op:         e.Op,
				Generation: e.Generation,
				Nodes:      e.Nodes,
				Links:      e.Links,
				Groups:     e.Groups,
			})
		},
		OnRejected: func(_ context.Context, e *domain.RejectEvent) {
			msg := Message{Type: e.Type, Op: e.Op, Key: e.Key, Kind: observability.KindOf(e.Err)}
			if e.Err != nil {
				msg.Error = e.Err.Error()
			}
			f.Broadcast(msg)
		},
		OnDanglingFact: func(_ context.Context, e *domain.DanglingEvent) {
			fact := e.Fact
			f.Broadcast(Message{Type: e.Type, CycleID: e.CycleID, Fact: &fact})
		},
		OnLayoutSettled: func(_ context.Context, e *domain.LayoutEvent) {
			f.Broadcast(Message{
				Type:       e.Type,
				CycleID:    e.CycleID,
				Generation: e.Generation,
				Ticks:      e.Ticks,
				Routes:     e.Routes,
			})
		},
	}
}
