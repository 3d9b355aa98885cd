// Package sink bridges the service layer to a live connection: services
// consume into a buffered channel, the transport's write loop drains it.
package sink

import (
	"context"
	"sync"

	"whisper/domain/event"
	"whisper/errors"
)

type Sink struct {
	events    chan event.DomainEvent
	done      chan struct{}
	closeOnce sync.Once
}

func New(bufferSize int) *Sink {
	return &Sink{
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume hands an event to the connection's write loop. It never
// blocks the caller: a full buffer drops the event, matching the
// no-backpressure contract of the live channel.
func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.done:
		return errors.ErrSinkClosed
	default:
	}

	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errors.ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Buffer full: the receiver recovers through a history fetch.
		return nil
	}
}

// Events is drained by exactly one write loop.
func (s *Sink) Events() <-chan event.DomainEvent { return s.events }

// Done signals the write loop that the sink was closed, typically
// because a newer session replaced this one.
func (s *Sink) Done() <-chan struct{} { return s.done }

func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
