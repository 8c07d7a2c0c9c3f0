// Package session owns the single-flight transcription session: one
// guarded cancellation token, one relay goroutine wiring audio capture into
// an ASR backend client, and the bounded event bridge to the RPC layer.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/scribed/scribed/internal/asr"
	"github.com/scribed/scribed/internal/audio"
)

// bridgeCapacity absorbs brief consumer slowness without reordering or
// batching; a consumer that is gone for good is detected via cancellation,
// not via the buffer.
const bridgeCapacity = 32

// Resolver looks up a backend client by profile name.
type Resolver interface {
	Resolve(name string) (asr.Client, bool)
}

// token is one session's cancellation handle. Cancelling is idempotent and
// broadcast: capture, the adapter connection, and the relay loop all watch
// the same context.
type token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *token) cancelled() bool { return t.ctx.Err() != nil }

// Orchestrator guarantees at most one active session. The token is the only
// state shared across the RPC entry points; the mutex is held only for
// check/replace, never across I/O.
type Orchestrator struct {
	mu     sync.Mutex
	active *token

	resolver Resolver
	recorder audio.Recorder
	logger   *log.Logger
}

func New(resolver Resolver, recorder audio.Recorder) *Orchestrator {
	return &Orchestrator{
		resolver: resolver,
		recorder: recorder,
		logger:   log.With("component", "session"),
	}
}

// Start installs a fresh session token and spawns the relay. It fails with
// ErrAlreadyActive while a non-cancelled token is installed (a cancelled
// one whose relay has not yet exited counts as free and is replaced), and
// with an invalid_argument error for unknown profiles. Errors after this
// point — capture failure, backend connect failure, protocol errors — are
// delivered through the returned stream.
func (o *Orchestrator) Start(profileName string) (*Stream, error) {
	o.mu.Lock()
	busy := o.active != nil && !o.active.cancelled()
	o.mu.Unlock()
	if busy {
		return nil, ErrAlreadyActive
	}

	client, ok := o.resolver.Resolve(profileName)
	if !ok {
		return nil, &Error{
			Code:    CodeInvalidArgument,
			Message: fmt.Sprintf("profile not found: %q", profileName),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	tok := &token{ctx: ctx, cancel: cancel}

	// Re-check under the lock so two racing Start calls cannot both
	// install.
	o.mu.Lock()
	if o.active != nil && !o.active.cancelled() {
		o.mu.Unlock()
		cancel()
		return nil, ErrAlreadyActive
	}
	o.active = tok
	o.mu.Unlock()

	o.logger.Info("session started", "profile", profileName)

	bridge := make(chan asr.Result, bridgeCapacity)
	go o.relay(tok, profileName, client, bridge)

	return newStream(bridge, cancel), nil
}

// Stop cancels the installed token, if any, and reports whether a session
// was actually stopped. It never blocks on the relay's teardown.
func (o *Orchestrator) Stop() bool {
	o.mu.Lock()
	tok := o.active
	o.active = nil
	o.mu.Unlock()

	if tok == nil {
		o.logger.Warn("stop: no session running")
		return false
	}
	tok.cancel()
	o.logger.Info("stop: session stopped")
	return true
}

// Active reports whether a non-cancelled session token is installed.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil && !o.active.cancelled()
}

// relay exclusively owns the audio source and the backend client for the
// session's lifetime. Whatever way it ends, it closes the bridge and frees
// the session slot.
func (o *Orchestrator) relay(tok *token, profileName string, client asr.Client, bridge chan<- asr.Result) {
	defer close(bridge)
	defer o.clear(tok)

	chunks, err := o.recorder.Record(tok.ctx)
	if err != nil {
		bridge <- asr.Result{Err: &Error{
			Code:    CodeInternal,
			Message: fmt.Sprintf("failed to record: %v", err),
		}}
		return
	}

	results, err := client.Connect(tok.ctx, chunks)
	if err != nil {
		bridge <- asr.Result{Err: &Error{
			Code:    CodeInternal,
			Message: fmt.Sprintf("backend connect failed: %v", err),
		}}
		return
	}

	for r := range results {
		select {
		case bridge <- r:
		case <-tok.ctx.Done():
			// Consumer gone or session stopped; not an error, just the
			// end of the session.
			return
		}
	}
	o.logger.Info("session finished", "profile", profileName)
}

// clear cancels the token (idempotent) and frees the slot, but only if the
// slot still belongs to this relay's token.
func (o *Orchestrator) clear(tok *token) {
	tok.cancel()
	o.mu.Lock()
	if o.active == tok {
		o.active = nil
	}
	o.mu.Unlock()
}
