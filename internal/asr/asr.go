package asr

import (
	"context"

	"github.com/scribed/scribed/internal/audio"
)

// Event is a single transcription result from a backend.
type Event struct {
	Text        string `json:"text"`
	BeginTime   int64  `json:"begin_time"` // ms from session start
	SentenceEnd bool   `json:"sentence_end"`
}

// Result carries either an event or a terminal stream error.
type Result struct {
	Event Event
	Err   error
}

// Client is one configured ASR backend. Connect opens the duplex connection,
// runs the backend handshake, and returns a lazy single-pass sequence of
// results. The sequence drains audio from source while the backend allows
// streaming, and ends on backend completion, a terminal error, or context
// cancellation. The channel is always closed when the sequence ends.
// Protocol and connection errors are terminal; an audio capture error is
// surfaced as an error result but the backend close handshake still runs,
// so trailing results may follow it.
type Client interface {
	Connect(ctx context.Context, source <-chan audio.Chunk) (<-chan Result, error)
}
