// Package paraformer implements the ASR backend client for DashScope's
// paraformer-realtime-v2 recognition task. Audio is streamed as raw binary
// websocket frames; control messages and results are JSON text frames.
package paraformer

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/scribed/scribed/internal/asr"
	"github.com/scribed/scribed/internal/audio"
)

const defaultURL = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

// ackTimeout bounds the waits for task-started and task-finished. Past it
// the connection is force-closed and a timeout error ends the sequence.
const ackTimeout = 10 * time.Second

type Config struct {
	APIKey                   string
	LanguageHints            []string
	DisfluencyRemoval        *bool
	SemanticPunctuation      *bool
	MaxSentenceSilence       *int
	PunctuationPrediction    *bool
	InverseTextNormalization *bool

	// URL overrides the backend endpoint. Tests point it at a local server.
	URL string
}

// Client is cheap to construct; no I/O happens before Connect.
type Client struct {
	cfg    Config
	logger *log.Logger
}

func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		logger: log.With("component", "paraformer"),
	}
}

// Connection stage. Exactly one of the two select arms is gated on it: audio
// may only flow while streaming.
type stage int

const (
	stageHandshaking stage = iota // run-task sent, awaiting task-started
	stageStreaming                // forwarding audio, awaiting results
	stageFinishing                // finish-task sent, awaiting task-finished
)

func (s stage) String() string {
	switch s {
	case stageHandshaking:
		return "handshaking"
	case stageStreaming:
		return "streaming"
	case stageFinishing:
		return "finishing"
	}
	return "unknown"
}

// Connect dials the backend, sends run-task, and returns the result
// sequence. The synchronous part fails on dial or handshake-send errors;
// everything after that is reported through the sequence.
func (c *Client) Connect(ctx context.Context, source <-chan audio.Chunk) (<-chan asr.Result, error) {
	url := c.cfg.URL
	if url == "" {
		url = defaultURL
	}

	conn, err := asr.Dial(ctx, url, c.cfg.APIKey)
	if err != nil {
		return nil, err
	}

	req := newRunTaskRequest(c.cfg)
	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send run-task: %w", err)
	}
	c.logger.Debug("run-task sent", "task_id", req.Header.TaskID)

	out := make(chan asr.Result)
	go c.run(ctx, conn, source, out, req.Header.TaskID)
	return out, nil
}

type inbound struct {
	msgType int
	data    []byte
	err     error
}

// readMessages pumps websocket reads into a channel so the run loop can
// select over them. Pings are answered by gorilla's default ping handler
// inside ReadMessage, never surfaced. The channel closes after the first
// read error, which closing the connection forces promptly.
func readMessages(conn *websocket.Conn) <-chan inbound {
	ch := make(chan inbound)
	go func() {
		defer close(ch)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				ch <- inbound{err: err}
				return
			}
			ch <- inbound{msgType: msgType, data: data}
		}
	}()
	return ch
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, source <-chan audio.Chunk, out chan<- asr.Result, taskID string) {
	msgs := readMessages(conn)
	defer close(out)
	// Closing the connection unblocks the reader; draining lets it exit.
	defer func() {
		for range msgs {
		}
	}()
	defer conn.Close()

	st := stageHandshaking
	ackTimer := time.NewTimer(ackTimeout)
	defer ackTimer.Stop()

	for {
		// Arm gating: audio is only eligible while streaming, the ack timer
		// only while an acknowledgement is pending. Among ready arms Go's
		// select picks uniformly at random, so neither arm starves.
		var audioCh <-chan audio.Chunk
		var timeoutCh <-chan time.Time
		if st == stageStreaming {
			audioCh = source
		} else {
			timeoutCh = ackTimer.C
		}

		select {
		case <-ctx.Done():
			c.logger.Debug("session cancelled", "stage", st)
			return

		case <-timeoutCh:
			c.emit(ctx, out, asr.Result{Err: fmt.Errorf("paraformer: timed out waiting for %s acknowledgement", st)})
			return

		case chunk, ok := <-audioCh:
			if !ok {
				if err := conn.WriteJSON(newFinishTaskRequest(taskID)); err != nil {
					c.emit(ctx, out, asr.Result{Err: fmt.Errorf("send finish-task: %w", err)})
					return
				}
				st = stageFinishing
				ackTimer.Reset(ackTimeout)
				continue
			}
			if chunk.Err != nil {
				// Capture failure. Surface it but keep the connection up;
				// the recorder closes the channel next, which starts the
				// normal finish handshake.
				c.emit(ctx, out, asr.Result{Err: fmt.Errorf("audio capture: %w", chunk.Err)})
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk.Data); err != nil {
				c.emit(ctx, out, asr.Result{Err: fmt.Errorf("send audio: %w", err)})
				return
			}

		case in, ok := <-msgs:
			if !ok {
				return
			}
			if in.err != nil {
				if websocket.IsCloseError(in.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				c.emit(ctx, out, asr.Result{Err: fmt.Errorf("connection: %w", in.err)})
				return
			}
			if in.msgType != websocket.TextMessage {
				c.emit(ctx, out, asr.Result{Err: fmt.Errorf("paraformer: unexpected %d message from server", in.msgType)})
				return
			}
			if done := c.handleServerMessage(ctx, in.data, &st, ackTimer, conn, out); done {
				return
			}
		}
	}
}

// handleServerMessage advances the stage machine for one inbound text
// frame. Returns true when the sequence is over.
func (c *Client) handleServerMessage(ctx context.Context, data []byte, st *stage, ackTimer *time.Timer, conn *websocket.Conn, out chan<- asr.Result) bool {
	ev, err := parseServerEvent(data)
	if err != nil {
		// Fail fast on anything unparseable rather than guessing at
		// protocol drift.
		c.emit(ctx, out, asr.Result{Err: fmt.Errorf("malformed server message: %w", err)})
		return true
	}

	switch ev.Header.Event {
	case eventTaskFailed:
		c.emit(ctx, out, asr.Result{Err: &TaskError{Code: ev.Header.ErrorCode, Message: ev.Header.ErrorMessage}})
		return true

	case eventTaskStarted:
		if *st == stageHandshaking {
			c.logger.Debug("task started", "task_id", ev.Header.TaskID)
			*st = stageStreaming
			if !ackTimer.Stop() {
				<-ackTimer.C
			}
		}
		return false

	case eventResultGenerated:
		// Results are valid while streaming and while the finish
		// acknowledgement is pending; a trailing final often lands after
		// finish-task is sent. Before task-started nothing real can exist.
		if *st == stageHandshaking {
			return false
		}
		s := ev.Payload.Output.Sentence
		c.emit(ctx, out, asr.Result{Event: asr.Event{
			Text:        s.Text,
			BeginTime:   s.BeginTime,
			SentenceEnd: s.SentenceEnd,
		}})
		return false

	case eventTaskFinished:
		if *st == stageFinishing {
			c.logger.Debug("task finished")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return true
		}
		return false

	default:
		c.emit(ctx, out, asr.Result{Err: fmt.Errorf("paraformer: unexpected server event %q", ev.Header.Event)})
		return true
	}
}

func (c *Client) emit(ctx context.Context, out chan<- asr.Result, r asr.Result) {
	select {
	case out <- r:
	case <-ctx.Done():
	}
}
