package qwen

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DashScope realtime protocol (OpenAI realtime dialect). Everything is a
// JSON text frame, audio included: chunks travel base64-encoded inside
// input_audio_buffer.append events.

const (
	typeSessionUpdate          = "session.update"
	typeSessionFinish          = "session.finish"
	typeInputAudioBufferAppend = "input_audio_buffer.append"

	typeSessionCreated         = "session.created"
	typeSessionUpdated         = "session.updated"
	typeSessionFinished        = "session.finished"
	typeError                  = "error"
	typeItemCreated            = "conversation.item.created"
	typeTranscriptionText      = "conversation.item.input_audio_transcription.text"
	typeTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	typeSpeechStarted          = "input_audio_buffer.speech_started"
	typeSpeechStopped          = "input_audio_buffer.speech_stopped"
	typeBufferCommitted        = "input_audio_buffer.committed"
)

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

type inputAudioTranscription struct {
	Language string `json:"language"`
}

type sessionSettings struct {
	InputAudioFormat        string                   `json:"input_audio_format"`
	SampleRate              int                      `json:"sample_rate"`
	InputAudioTranscription *inputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection           `json:"turn_detection,omitempty"`
}

type sessionUpdateRequest struct {
	EventID string          `json:"event_id"`
	Type    string          `json:"type"`
	Session sessionSettings `json:"session"`
}

func newSessionUpdateRequest(eventID int, cfg Config) sessionUpdateRequest {
	settings := sessionSettings{
		InputAudioFormat: "pcm",
		SampleRate:       16000,
	}
	if cfg.Language != "" {
		settings.InputAudioTranscription = &inputAudioTranscription{Language: cfg.Language}
	}
	if cfg.TurnDetection != nil {
		settings.TurnDetection = &turnDetection{
			Type:              "server_vad",
			Threshold:         cfg.TurnDetection.Threshold,
			SilenceDurationMs: cfg.TurnDetection.SilenceDurationMs,
		}
	}
	return sessionUpdateRequest{
		EventID: fmt.Sprintf("session_update_%d", eventID),
		Type:    typeSessionUpdate,
		Session: settings,
	}
}

type appendRequest struct {
	Type    string `json:"type"`
	EventID string `json:"event_id"`
	Audio   string `json:"audio"`
}

func newAppendRequest(eventID int, chunk []byte) appendRequest {
	return appendRequest{
		Type:    typeInputAudioBufferAppend,
		EventID: fmt.Sprintf("event_%d", eventID),
		Audio:   base64.StdEncoding.EncodeToString(chunk),
	}
}

type sessionFinishRequest struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

func newSessionFinishRequest(eventID int) sessionFinishRequest {
	return sessionFinishRequest{
		EventID: fmt.Sprintf("session_finish_req_%d", eventID),
		Type:    typeSessionFinish,
	}
}

type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// serverEvent is the superset of inbound event fields; Type selects which
// of them are meaningful.
type serverEvent struct {
	Type         string       `json:"type"`
	EventID      string       `json:"event_id"`
	Error        *serverError `json:"error"`
	ItemID       string       `json:"item_id"`
	AudioStartMs int64        `json:"audio_start_ms"`
	AudioEndMs   int64        `json:"audio_end_ms"`
	Text         string       `json:"text"`
	Transcript   string       `json:"transcript"`
}

func parseServerEvent(data []byte) (serverEvent, error) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return serverEvent{}, err
	}
	if ev.Type == "" {
		return serverEvent{}, fmt.Errorf("missing type")
	}
	return ev, nil
}

// BackendError is an error event reported by the backend.
type BackendError struct {
	Code    string
	Message string
}

func (e *BackendError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("qwen backend error: %s", e.Message)
	}
	return fmt.Sprintf("qwen backend error: %s: %s", e.Code, e.Message)
}
