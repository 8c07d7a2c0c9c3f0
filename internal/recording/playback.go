package recording

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/scribed/scribed/internal/audio"
)

const (
	wavHeaderSize = 44
	chunkMillis   = 100
)

// Playback streams a prerecorded PCM file in real-time paced chunks, as if
// it were a microphone. Useful for development and for exercising backends
// without audio hardware.
type Playback struct {
	path string
}

func NewPlayback(path string) *Playback {
	return &Playback{path: path}
}

func (p *Playback) Record(ctx context.Context) (<-chan audio.Chunk, error) {
	pcm, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read playback file: %w", err)
	}
	if bytes.HasPrefix(pcm, []byte("RIFF")) {
		if len(pcm) <= wavHeaderSize {
			return nil, fmt.Errorf("playback file %s: wav payload is empty", p.path)
		}
		pcm = pcm[wavHeaderSize:]
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("playback file %s is empty", p.path)
	}

	chunkSize := audio.BytesPerSecond * chunkMillis / 1000

	ch := make(chan audio.Chunk)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(chunkMillis * time.Millisecond)
		defer ticker.Stop()

		for offset := 0; offset < len(pcm); {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			end := offset + chunkSize
			if end > len(pcm) {
				end = len(pcm)
			}
			chunk := make([]byte, end-offset)
			copy(chunk, pcm[offset:end])
			offset = end

			select {
			case ch <- audio.Chunk{Data: chunk}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
