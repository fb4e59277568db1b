package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"Danni-Agent/pkg/logger"
)

// Stream forwards events to a buffered channel. Events are dropped when the
// reader falls behind by more than the buffer.
type Stream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewStream creates a Stream with the given buffer size.
func NewStream(bufSize int) *Stream {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Stream{ch: make(chan Event, bufSize)}
}

func (s *Stream) Handle(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
	}
}

// C returns the receive side of the stream.
func (s *Stream) C() <-chan Event { return s.ch }

// Close stops delivery and closes the channel.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// forwarder decouples a network sink from the publishing goroutine. It keeps
// a bounded queue and a single sender; overflow is dropped and logged.
// Events handled after close are discarded.
type forwarder struct {
	name    string
	queue   chan Event
	send    func(context.Context, Event) error
	timeout time.Duration
	logger  *slog.Logger
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func newForwarder(name string, bufSize int, timeout time.Duration, send func(context.Context, Event) error) *forwarder {
	if bufSize <= 0 {
		bufSize = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	f := &forwarder{
		name:    name,
		queue:   make(chan Event, bufSize),
		send:    send,
		timeout: timeout,
		logger:  logger.Named("tracker"),
		done:    make(chan struct{}),
	}
	go f.loop()
	return f
}

func (f *forwarder) Handle(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		f.logger.Debug("event forwarder closed, dropping event",
			slog.String("sink", f.name),
			slog.String("event", string(e.Kind)))
		return
	}
	select {
	case f.queue <- e:
	default:
		f.logger.Warn("event forwarder queue full, dropping event",
			slog.String("sink", f.name),
			slog.String("event", string(e.Kind)))
	}
}

func (f *forwarder) loop() {
	defer close(f.done)
	for e := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		if err := f.send(ctx, e); err != nil {
			f.logger.Warn("forward event failed",
				slog.String("sink", f.name),
				slog.String("event", string(e.Kind)),
				slog.Any("error", err))
		}
		cancel()
	}
}

// close drains pending events and stops the sender.
func (f *forwarder) close() {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()
	<-f.done
}
