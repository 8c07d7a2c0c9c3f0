// Package qwen implements the ASR backend client for DashScope's
// qwen3-asr-flash-realtime model. The wire protocol is the realtime event
// dialect: JSON text frames both ways, audio base64-encoded inside
// input_audio_buffer.append events. The backend emits interim transcripts
// as deltas of the current utterance, so the client keeps a per-utterance
// accumulator to stamp results with the utterance start time.
package qwen

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/scribed/scribed/internal/asr"
	"github.com/scribed/scribed/internal/audio"
)

const defaultURL = "wss://dashscope.aliyuncs.com/api-ws/v1/realtime?model=qwen3-asr-flash-realtime"

const ackTimeout = 10 * time.Second

type TurnDetection struct {
	Threshold         float64
	SilenceDurationMs int
}

type Config struct {
	APIKey        string
	Language      string
	TurnDetection *TurnDetection

	// URL overrides the backend endpoint. Tests point it at a local server.
	URL string
}

type Client struct {
	cfg    Config
	logger *log.Logger
}

func New(cfg Config) *Client {
	return &Client{
		cfg:    cfg,
		logger: log.With("component", "qwen"),
	}
}

type stage int

const (
	stageHandshaking stage = iota // awaiting session.created, session.update not yet sent
	stageStreaming                // session.update sent, audio may flow
	stageFinishing                // session.finish sent, awaiting session.finished
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

// utterance tracks the interim state of the spoken sentence currently being
// recognized: opened on speech_started, cleared on the final transcript.
// At most one is open at a time; anything else is a protocol violation.
type utterance struct {
	startTime int64
	text      string
}

func (c *Client) Connect(ctx context.Context, source <-chan audio.Chunk) (<-chan asr.Result, error) {
	url := c.cfg.URL
	if url == "" {
		url = defaultURL
	}

	conn, err := asr.Dial(ctx, url, c.cfg.APIKey)
	if err != nil {
		return nil, err
	}

	out := make(chan asr.Result)
	go c.run(ctx, conn, source, out)
	return out, nil
}

type inbound struct {
	msgType int
	data    []byte
	err     error
}

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

func (c *Client) run(ctx context.Context, conn *websocket.Conn, source <-chan audio.Chunk, out chan<- asr.Result) {
	msgs := readMessages(conn)
	defer close(out)
	defer func() {
		for range msgs {
		}
	}()
	defer conn.Close()

	st := stageHandshaking
	eventCount := 0
	var utt *utterance

	ackTimer := time.NewTimer(ackTimeout)
	defer ackTimer.Stop()

	for {
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
			c.emit(ctx, out, asr.Result{Err: fmt.Errorf("qwen: timed out waiting for %s acknowledgement", st)})
			return

		case chunk, ok := <-audioCh:
			if !ok {
				if err := conn.WriteJSON(newSessionFinishRequest(eventCount)); err != nil {
					c.emit(ctx, out, asr.Result{Err: fmt.Errorf("send session.finish: %w", err)})
					return
				}
				eventCount++
				st = stageFinishing
				ackTimer.Reset(ackTimeout)
				continue
			}
			if chunk.Err != nil {
				c.emit(ctx, out, asr.Result{Err: fmt.Errorf("audio capture: %w", chunk.Err)})
				continue
			}
			if err := conn.WriteJSON(newAppendRequest(eventCount, chunk.Data)); err != nil {
				c.emit(ctx, out, asr.Result{Err: fmt.Errorf("send audio: %w", err)})
				return
			}
			eventCount++

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
				c.emit(ctx, out, asr.Result{Err: fmt.Errorf("qwen: unexpected %d message from server", in.msgType)})
				return
			}
			done, err := c.handleServerMessage(ctx, in.data, &st, &eventCount, &utt, ackTimer, conn, out)
			if err != nil {
				c.emit(ctx, out, asr.Result{Err: err})
				return
			}
			if done {
				return
			}
		}
	}
}

// handleServerMessage advances the stage machine and the utterance
// accumulator for one inbound event. A non-nil error ends the sequence.
func (c *Client) handleServerMessage(ctx context.Context, data []byte, st *stage, eventCount *int, utt **utterance, ackTimer *time.Timer, conn *websocket.Conn, out chan<- asr.Result) (bool, error) {
	ev, err := parseServerEvent(data)
	if err != nil {
		return true, fmt.Errorf("malformed server message: %w", err)
	}

	switch ev.Type {
	case typeError:
		if ev.Error != nil {
			return true, &BackendError{Code: ev.Error.Code, Message: ev.Error.Message}
		}
		return true, &BackendError{Message: "unspecified error"}

	case typeSessionCreated:
		if *st != stageHandshaking {
			return false, nil
		}
		if err := conn.WriteJSON(newSessionUpdateRequest(*eventCount, c.cfg)); err != nil {
			return true, fmt.Errorf("send session.update: %w", err)
		}
		*eventCount++
		*st = stageStreaming
		if !ackTimer.Stop() {
			<-ackTimer.C
		}
		c.logger.Debug("session created, streaming unlocked")
		return false, nil

	case typeSessionUpdated:
		c.logger.Debug("session updated")
		return false, nil

	case typeSpeechStarted:
		if *utt != nil {
			return true, fmt.Errorf("qwen: speech_started with an utterance already open")
		}
		*utt = &utterance{startTime: ev.AudioStartMs}
		return false, nil

	case typeTranscriptionText:
		if ev.Text == "" {
			return false, nil
		}
		if *utt == nil {
			return true, fmt.Errorf("qwen: interim transcript with no utterance open")
		}
		(*utt).text = ev.Text
		c.emit(ctx, out, asr.Result{Event: asr.Event{
			Text:        (*utt).text,
			BeginTime:   (*utt).startTime,
			SentenceEnd: false,
		}})
		return false, nil

	case typeTranscriptionCompleted:
		if *utt == nil {
			return true, fmt.Errorf("qwen: completed transcript with no utterance open")
		}
		c.emit(ctx, out, asr.Result{Event: asr.Event{
			Text:        ev.Transcript,
			BeginTime:   (*utt).startTime,
			SentenceEnd: true,
		}})
		*utt = nil
		return false, nil

	case typeSessionFinished:
		c.logger.Debug("session finished")
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return true, nil

	case typeSpeechStopped, typeBufferCommitted, typeItemCreated:
		// Acknowledged silently; the accumulator only cares about
		// speech_started and the transcript events.
		return false, nil

	default:
		return true, fmt.Errorf("qwen: unexpected server event %q", ev.Type)
	}
}

func (c *Client) emit(ctx context.Context, out chan<- asr.Result, r asr.Result) {
	select {
	case out <- r:
	case <-ctx.Done():
	}
}
