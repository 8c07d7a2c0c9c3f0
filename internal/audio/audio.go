package audio

import "context"

// Fixed capture profile. Both ASR backends expect 16 kHz mono 16-bit PCM,
// so there is no format negotiation anywhere in the pipeline.
const (
	SampleRate = 16000
	Channels   = 1
	Format     = "s16le"

	// BytesPerSecond for the fixed profile (2 bytes per sample, mono).
	BytesPerSecond = SampleRate * 2
)

// Chunk is an opaque slice of PCM bytes from a capture backend. Chunk
// boundaries carry no framing meaning; only ordering matters. A non-nil Err
// is terminal for the sequence: the recorder closes the channel after it.
type Chunk struct {
	Data []byte
	Err  error
}

// Recorder produces a cancellable lazy sequence of audio chunks. The
// returned channel is closed when capture ends, the context is cancelled, or
// a terminal error chunk has been emitted. Implementations must not panic on
// capture-process failure.
type Recorder interface {
	Record(ctx context.Context) (<-chan Chunk, error)
}
