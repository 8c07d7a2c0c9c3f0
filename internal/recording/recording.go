// Package recording provides the audio capture backends. They are external
// collaborators as far as the session core is concerned: each one just
// produces a cancellable sequence of PCM chunks.
package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scribed/scribed/internal/audio"
	"github.com/scribed/scribed/internal/config"
)

// New selects a recorder from the recording config.
func New(cfg config.RecordingConfig) (audio.Recorder, error) {
	switch cfg.Backend {
	case config.RecordingPwRecord:
		return NewPwRecorder(cfg), nil
	case config.RecordingPlayback:
		return NewPlayback(cfg.PlaybackFile), nil
	default:
		return nil, fmt.Errorf("unknown recording backend %q", cfg.Backend)
	}
}

// PwRecorder captures microphone audio through a pw-record subprocess in
// the fixed 16 kHz mono s16le profile.
type PwRecorder struct {
	cfg    config.RecordingConfig
	logger *log.Logger
}

func NewPwRecorder(cfg config.RecordingConfig) *PwRecorder {
	return &PwRecorder{
		cfg:    cfg,
		logger: log.With("component", "recording"),
	}
}

// CheckPipeWireAvailable verifies pw-record exists and PipeWire answers.
func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(checkCtx, "pw-cli", "info").Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (r *PwRecorder) Record(ctx context.Context) (<-chan audio.Chunk, error) {
	if err := CheckPipeWireAvailable(ctx); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "pw-record", r.buildArgs()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pw-record: %w", err)
	}

	// Surface capture diagnostics without mixing them into the chunk
	// stream.
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			r.logger.Warn("pw-record", "stderr", scanner.Text())
		}
	}()

	ch := make(chan audio.Chunk, r.cfg.ChannelBufferSize)
	go r.captureLoop(ctx, cmd, stdout, ch)
	return ch, nil
}

func (r *PwRecorder) captureLoop(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, ch chan<- audio.Chunk) {
	defer func() {
		close(ch)
		// Reap the child; CommandContext has already killed it on
		// cancellation.
		_ = cmd.Wait()
	}()

	buffer := make([]byte, r.cfg.BufferSize)
	for {
		n, readErr := stdout.Read(buffer)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buffer[:n])
			select {
			case ch <- audio.Chunk{Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || ctx.Err() != nil {
				return
			}
			// Capture-process failure is a terminal error chunk, never a
			// panic.
			select {
			case ch <- audio.Chunk{Err: fmt.Errorf("read audio: %w", readErr)}:
			case <-ctx.Done():
			}
			return
		}
	}
}

func (r *PwRecorder) buildArgs() []string {
	args := []string{
		"--format", audio.Format,
		"--rate", strconv.Itoa(audio.SampleRate),
		"--channels", strconv.Itoa(audio.Channels),
	}
	if r.cfg.Device != "" {
		args = append(args, "--target", r.cfg.Device)
	}
	return append(args, "-")
}
