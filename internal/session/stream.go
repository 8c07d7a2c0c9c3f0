package session

import (
	"context"
	"sync"

	"github.com/scribed/scribed/internal/asr"
)

// Stream is the consumer side of the event bridge. Closing it cancels the
// session token; this is the sole mechanism by which a disappearing
// consumer tears down audio capture and the backend connection, so every
// exit path of the consumer must defer Close.
type Stream struct {
	events    <-chan asr.Result
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newStream(events <-chan asr.Result, cancel context.CancelFunc) *Stream {
	return &Stream{events: events, cancel: cancel}
}

// Events delivers relay output in adapter order. The channel closes when
// the session ends, whatever the reason.
func (s *Stream) Events() <-chan asr.Result {
	return s.events
}

// Close cancels the session. Safe to call multiple times and concurrently
// with delivery; it does not wait for teardown.
func (s *Stream) Close() {
	s.closeOnce.Do(s.cancel)
}
