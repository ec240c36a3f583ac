package proctor

import (
	"context"
	"sync"
	"time"
)

// SignalKind is a raw browser signal observed on the exam page.
type SignalKind string

const (
	SignalVisibilityChange SignalKind = "visibilitychange"
	SignalBlur             SignalKind = "blur"
	SignalContextMenu      SignalKind = "contextmenu"
	SignalCopy             SignalKind = "copy"
	SignalPaste            SignalKind = "paste"
	SignalKeyDown          SignalKind = "keydown"
	SignalBeforeUnload     SignalKind = "beforeunload"
)

// Signal is one occurrence of a browser event.
type Signal struct {
	Kind   SignalKind `json:"kind"`
	Hidden bool       `json:"hidden,omitempty"` // visibilitychange: document.hidden
	Key    string     `json:"key,omitempty"`    // keydown
	Ctrl   bool       `json:"ctrl,omitempty"`
	Shift  bool       `json:"shift,omitempty"`
	At     time.Time  `json:"-"`
}

// EventSource delivers browser signals to a controller.
// Subscribe installs the listeners; calling the returned function removes them.
// After unsubscribe no further signal is delivered on the channel.
type EventSource interface {
	Subscribe() (<-chan Signal, func())
}

// ChannelSource is an EventSource fed by Publish, typically from a WebSocket reader.
type ChannelSource struct {
	ch       chan Signal
	closed   chan struct{}
	once     sync.Once
	mu       sync.Mutex
	attached bool
}

// NewChannelSource creates a source with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		ch:     make(chan Signal, buffer),
		closed: make(chan struct{}),
	}
}

// Subscribe implements EventSource. A ChannelSource supports a single subscriber.
func (s *ChannelSource) Subscribe() (<-chan Signal, func()) {
	s.mu.Lock()
	s.attached = true
	s.mu.Unlock()
	return s.ch, func() {
		s.once.Do(func() {
			s.mu.Lock()
			s.attached = false
			s.mu.Unlock()
			close(s.closed)
		})
	}
}

// Attached reports whether a subscriber currently listens.
func (s *ChannelSource) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Publish hands a signal to the subscriber. It blocks while the buffer is full
// and returns false once the subscriber has unsubscribed or ctx is done.
func (s *ChannelSource) Publish(ctx context.Context, sig Signal) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.ch <- sig:
		return true
	case <-s.closed:
		return false
	case <-ctx.Done():
		return false
	}
}
