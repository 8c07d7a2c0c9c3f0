package qwen

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scribed/scribed/internal/asr"
	"github.com/scribed/scribed/internal/audio"
)

func TestClient_ImplementsASRClient(t *testing.T) {
	var _ asr.Client = (*Client)(nil)
}

func TestSessionUpdateRequest_Settings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want func(t *testing.T, req sessionUpdateRequest)
	}{
		{
			name: "defaults",
			cfg:  Config{APIKey: "k"},
			want: func(t *testing.T, req sessionUpdateRequest) {
				if req.Session.InputAudioTranscription != nil {
					t.Error("language must be omitted when unset")
				}
				if req.Session.TurnDetection != nil {
					t.Error("turn_detection must be omitted when unset")
				}
			},
		},
		{
			name: "language",
			cfg:  Config{APIKey: "k", Language: "en"},
			want: func(t *testing.T, req sessionUpdateRequest) {
				if req.Session.InputAudioTranscription == nil ||
					req.Session.InputAudioTranscription.Language != "en" {
					t.Errorf("transcription settings = %+v", req.Session.InputAudioTranscription)
				}
			},
		},
		{
			name: "turn detection",
			cfg:  Config{APIKey: "k", TurnDetection: &TurnDetection{Threshold: 0.4, SilenceDurationMs: 600}},
			want: func(t *testing.T, req sessionUpdateRequest) {
				td := req.Session.TurnDetection
				if td == nil || td.Type != "server_vad" || td.Threshold != 0.4 || td.SilenceDurationMs != 600 {
					t.Errorf("turn_detection = %+v", td)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newSessionUpdateRequest(0, tt.cfg)
			if req.Type != "session.update" {
				t.Errorf("type = %q", req.Type)
			}
			if req.Session.InputAudioFormat != "pcm" || req.Session.SampleRate != 16000 {
				t.Errorf("audio format = %q/%d", req.Session.InputAudioFormat, req.Session.SampleRate)
			}
			tt.want(t, req)
		})
	}
}

// mockServer runs a websocket endpoint that checks auth, sends
// session.created, waits for session.update, and hands off to handler.
func mockServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(serverEvent{Type: typeSessionCreated, EventID: "evt_1"}); err != nil {
			return
		}

		var update sessionUpdateRequest
		if err := conn.ReadJSON(&update); err != nil {
			t.Logf("read session.update: %v", err)
			return
		}
		if update.Type != typeSessionUpdate {
			t.Errorf("first client event = %q, want session.update", update.Type)
			return
		}
		_ = conn.WriteJSON(serverEvent{Type: typeSessionUpdated, EventID: "evt_2"})

		handler(conn)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func collect(t *testing.T, results <-chan asr.Result) []asr.Result {
	t.Helper()
	var got []asr.Result
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return got
			}
			got = append(got, r)
		case <-timeout:
			t.Fatalf("timeout waiting for results, so far: %+v", got)
		}
	}
}

func TestClient_UtteranceAccumulation(t *testing.T) {
	server := mockServer(t, func(conn *websocket.Conn) {
		// read one audio append, check the base64 round-trip
		var app appendRequest
		if err := conn.ReadJSON(&app); err != nil {
			t.Logf("read append: %v", err)
			return
		}
		if app.Type != typeInputAudioBufferAppend {
			t.Errorf("append type = %q", app.Type)
		}
		decoded, err := base64.StdEncoding.DecodeString(app.Audio)
		if err != nil {
			t.Errorf("audio is not valid base64: %v", err)
		}
		if string(decoded) != "\x01\x02\x03" {
			t.Errorf("decoded audio = %v", decoded)
		}

		_ = conn.WriteJSON(serverEvent{Type: typeSpeechStarted, AudioStartMs: 1200})
		_ = conn.WriteJSON(serverEvent{Type: typeTranscriptionText, Text: "hello"})
		_ = conn.WriteJSON(serverEvent{Type: typeTranscriptionText, Text: "hello world"})
		_ = conn.WriteJSON(serverEvent{Type: typeSpeechStopped, AudioEndMs: 2400})
		_ = conn.WriteJSON(serverEvent{Type: typeTranscriptionCompleted, Transcript: "hello world."})

		// read session.finish
		var finish sessionFinishRequest
		if err := conn.ReadJSON(&finish); err != nil {
			t.Logf("read session.finish: %v", err)
			return
		}
		if finish.Type != typeSessionFinish {
			t.Errorf("finish type = %q", finish.Type)
		}
		_ = conn.WriteJSON(serverEvent{Type: typeSessionFinished})
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	source := make(chan audio.Chunk, 1)
	source <- audio.Chunk{Data: []byte{0x01, 0x02, 0x03}}

	client := New(Config{APIKey: "test-key", URL: wsURL(server)})
	results, err := client.Connect(context.Background(), source)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// close the source once the first interim arrives so the final lands
	// during the finish handshake
	var got []asr.Result
	timeout := time.After(2 * time.Second)
	closed := false
	for {
		var done bool
		select {
		case r, ok := <-results:
			if !ok {
				done = true
				break
			}
			got = append(got, r)
			if !closed {
				close(source)
				closed = true
			}
		case <-timeout:
			t.Fatalf("timeout, got so far: %+v", got)
		}
		if done {
			break
		}
	}

	if len(got) != 3 {
		t.Fatalf("got %d results, want 3: %+v", len(got), got)
	}
	for i, r := range got {
		if r.Err != nil {
			t.Fatalf("result %d has error: %v", i, r.Err)
		}
		if r.Event.BeginTime != 1200 {
			t.Errorf("result %d begin_time = %d, want the utterance start 1200", i, r.Event.BeginTime)
		}
	}
	if got[0].Event.Text != "hello" || got[0].Event.SentenceEnd {
		t.Errorf("first interim = %+v", got[0].Event)
	}
	if got[1].Event.Text != "hello world" || got[1].Event.SentenceEnd {
		t.Errorf("second interim = %+v", got[1].Event)
	}
	if got[2].Event.Text != "hello world." || !got[2].Event.SentenceEnd {
		t.Errorf("final = %+v", got[2].Event)
	}
}

func TestClient_EmptyInterimSkipped(t *testing.T) {
	server := mockServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(serverEvent{Type: typeSpeechStarted, AudioStartMs: 100})
		_ = conn.WriteJSON(serverEvent{Type: typeTranscriptionText, Text: ""})
		_ = conn.WriteJSON(serverEvent{Type: typeTranscriptionCompleted, Transcript: "ok"})

		var finish sessionFinishRequest
		_ = conn.ReadJSON(&finish)
		_ = conn.WriteJSON(serverEvent{Type: typeSessionFinished})
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	source := make(chan audio.Chunk)
	close(source)

	client := New(Config{APIKey: "test-key", URL: wsURL(server)})
	results, err := client.Connect(context.Background(), source)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := collect(t, results)
	if len(got) != 1 {
		t.Fatalf("got %d results, want only the final: %+v", len(got), got)
	}
	if got[0].Event.Text != "ok" || !got[0].Event.SentenceEnd {
		t.Errorf("final = %+v", got[0].Event)
	}
}

func TestClient_AccumulatorViolations(t *testing.T) {
	tests := []struct {
		name    string
		events  []serverEvent
		wantErr string
	}{
		{
			name: "double speech_started",
			events: []serverEvent{
				{Type: typeSpeechStarted, AudioStartMs: 100},
				{Type: typeSpeechStarted, AudioStartMs: 200},
			},
			wantErr: "already open",
		},
		{
			name: "interim without utterance",
			events: []serverEvent{
				{Type: typeTranscriptionText, Text: "orphan"},
			},
			wantErr: "no utterance open",
		},
		{
			name: "completed without utterance",
			events: []serverEvent{
				{Type: typeTranscriptionCompleted, Transcript: "orphan"},
			},
			wantErr: "no utterance open",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := mockServer(t, func(conn *websocket.Conn) {
				for _, ev := range tt.events {
					_ = conn.WriteJSON(ev)
				}
				_, _, _ = conn.ReadMessage()
			})
			defer server.Close()

			source := make(chan audio.Chunk)
			defer close(source)

			client := New(Config{APIKey: "test-key", URL: wsURL(server)})
			results, err := client.Connect(context.Background(), source)
			if err != nil {
				t.Fatalf("Connect() error = %v", err)
			}

			got := collect(t, results)
			if len(got) == 0 {
				t.Fatal("want an error result")
			}
			last := got[len(got)-1]
			if last.Err == nil || !strings.Contains(last.Err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want to contain %q", last.Err, tt.wantErr)
			}
		})
	}
}

func TestClient_BackendError(t *testing.T) {
	server := mockServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(serverEvent{
			Type:  typeError,
			Error: &serverError{Code: "invalid_api_key", Message: "bad key"},
		})
	})
	defer server.Close()

	source := make(chan audio.Chunk)
	defer close(source)

	client := New(Config{APIKey: "test-key", URL: wsURL(server)})
	results, err := client.Connect(context.Background(), source)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := collect(t, results)
	if len(got) != 1 || got[0].Err == nil {
		t.Fatalf("want a single error result, got %+v", got)
	}
	var backendErr *BackendError
	if !errors.As(got[0].Err, &backendErr) {
		t.Fatalf("error = %v, want *BackendError", got[0].Err)
	}
	if backendErr.Code != "invalid_api_key" {
		t.Errorf("code = %q", backendErr.Code)
	}
}

func TestClient_MalformedMessageIsFatal(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event_id":"evt_1"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	source := make(chan audio.Chunk)
	defer close(source)

	client := New(Config{APIKey: "test-key", URL: wsURL(server)})
	results, err := client.Connect(context.Background(), source)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := collect(t, results)
	if len(got) != 1 || got[0].Err == nil {
		t.Fatalf("want a single error result, got %+v", got)
	}
	if !strings.Contains(got[0].Err.Error(), "malformed") {
		t.Errorf("error = %v", got[0].Err)
	}
}
