package paraformer

import (
	"context"
	"encoding/json"
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

func TestRunTaskRequest_Framing(t *testing.T) {
	yes := true
	silence := 800
	cfg := Config{
		APIKey:              "test-key",
		LanguageHints:       []string{"en", "ja"},
		SemanticPunctuation: &yes,
		MaxSentenceSilence:  &silence,
	}

	req := newRunTaskRequest(cfg)
	if req.Header.Action != "run-task" {
		t.Errorf("action = %q, want run-task", req.Header.Action)
	}
	if req.Header.Streaming != "duplex" {
		t.Errorf("streaming = %q, want duplex", req.Header.Streaming)
	}
	if req.Header.TaskID == "" {
		t.Error("task_id must be set")
	}
	if req.Payload.Model != "paraformer-realtime-v2" {
		t.Errorf("model = %q", req.Payload.Model)
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		`"format":"pcm"`,
		`"sample_rate":16000`,
		`"language_hints":["en","ja"]`,
		`"semantic_punctuation_enabled":true`,
		`"max_sentence_silence":800`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("request %s missing %s", body, want)
		}
	}
	for _, absent := range []string{"disfluency", "punctuation_prediction", "inverse_text"} {
		if strings.Contains(body, absent) {
			t.Errorf("unset option %q must be omitted, got %s", absent, body)
		}
	}
}

// mockServer runs a websocket endpoint that checks auth, reads the run-task
// request, and hands the connection to handler.
func mockServer(t *testing.T, handler func(conn *websocket.Conn, taskID string)) *httptest.Server {
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

		var req runTaskRequest
		if err := conn.ReadJSON(&req); err != nil {
			t.Logf("read run-task error: %v", err)
			return
		}
		if req.Header.Action != "run-task" {
			t.Errorf("first message action = %q, want run-task", req.Header.Action)
			return
		}

		handler(conn, req.Header.TaskID)
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func writeEvent(conn *websocket.Conn, event, taskID string, s *sentence) error {
	var ev serverEvent
	ev.Header.TaskID = taskID
	ev.Header.Event = event
	if s != nil {
		ev.Payload.Output.Sentence = *s
	}
	return conn.WriteJSON(ev)
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

func TestClient_FullSequence(t *testing.T) {
	server := mockServer(t, func(conn *websocket.Conn, taskID string) {
		_ = writeEvent(conn, eventTaskStarted, taskID, nil)

		// read two audio chunks
		for i := 0; i < 2; i++ {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				t.Logf("read audio: %v", err)
				return
			}
			if msgType != websocket.BinaryMessage {
				t.Errorf("audio message type = %d, want binary", msgType)
			}
			if len(data) == 0 {
				t.Error("empty audio frame")
			}
		}

		_ = writeEvent(conn, eventResultGenerated, taskID,
			&sentence{BeginTime: 170, Text: "好", SentenceEnd: false})
		_ = writeEvent(conn, eventResultGenerated, taskID,
			&sentence{BeginTime: 170, Text: "好，我", SentenceEnd: false})

		// read finish-task
		var finish finishTaskRequest
		if err := conn.ReadJSON(&finish); err != nil {
			t.Logf("read finish-task: %v", err)
			return
		}
		if finish.Header.Action != "finish-task" {
			t.Errorf("finish action = %q", finish.Header.Action)
		}
		if finish.Header.TaskID != taskID {
			t.Errorf("finish task_id = %q, want %q", finish.Header.TaskID, taskID)
		}

		// a result may still arrive after finish-task
		_ = writeEvent(conn, eventResultGenerated, taskID,
			&sentence{BeginTime: 170, Text: "好，我知道了", SentenceEnd: true})
		_ = writeEvent(conn, eventTaskFinished, taskID, nil)

		// wait for the client's close frame
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	source := make(chan audio.Chunk, 2)
	source <- audio.Chunk{Data: []byte{0x01, 0x02}}
	source <- audio.Chunk{Data: []byte{0x03, 0x04}}
	close(source)

	client := New(Config{APIKey: "test-key", URL: wsURL(server)})
	results, err := client.Connect(context.Background(), source)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := collect(t, results)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3: %+v", len(got), got)
	}
	for i, r := range got {
		if r.Err != nil {
			t.Fatalf("result %d has error: %v", i, r.Err)
		}
	}
	if got[0].Event.Text != "好" || got[0].Event.SentenceEnd {
		t.Errorf("first interim = %+v", got[0].Event)
	}
	if got[1].Event.Text != "好，我" || got[1].Event.SentenceEnd {
		t.Errorf("second interim = %+v", got[1].Event)
	}
	final := got[2].Event
	if final.Text != "好，我知道了" || !final.SentenceEnd || final.BeginTime != 170 {
		t.Errorf("final = %+v", final)
	}
}

// Results produced before task-started is seen are dropped: audio cannot
// have flowed yet, so they cannot be real.
func TestClient_ResultBeforeStartedIgnored(t *testing.T) {
	server := mockServer(t, func(conn *websocket.Conn, taskID string) {
		_ = writeEvent(conn, eventResultGenerated, taskID,
			&sentence{Text: "phantom"})
		_ = writeEvent(conn, eventTaskStarted, taskID, nil)

		var finish finishTaskRequest
		_ = conn.ReadJSON(&finish)
		_ = writeEvent(conn, eventTaskFinished, taskID, nil)
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

	for _, r := range collect(t, results) {
		if r.Event.Text == "phantom" {
			t.Error("result before task-started must be dropped")
		}
	}
}

func TestClient_TaskFailed(t *testing.T) {
	server := mockServer(t, func(conn *websocket.Conn, taskID string) {
		var ev serverEvent
		ev.Header.TaskID = taskID
		ev.Header.Event = eventTaskFailed
		ev.Header.ErrorCode = "InvalidParameter"
		ev.Header.ErrorMessage = "bad model"
		_ = conn.WriteJSON(ev)
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
	var taskErr *TaskError
	if !errors.As(got[0].Err, &taskErr) {
		t.Fatalf("error = %v, want *TaskError", got[0].Err)
	}
	if taskErr.Code != "InvalidParameter" || taskErr.Message != "bad model" {
		t.Errorf("task error = %+v", taskErr)
	}
}

func TestClient_MalformedMessageIsFatal(t *testing.T) {
	server := mockServer(t, func(conn *websocket.Conn, taskID string) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"payload":{}}`))
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
	if len(got) != 1 || got[0].Err == nil {
		t.Fatalf("want a single error result, got %+v", got)
	}
	if !strings.Contains(got[0].Err.Error(), "malformed") {
		t.Errorf("error = %v, want malformed server message", got[0].Err)
	}
}

// Capture errors are surfaced but do not tear the connection down; the
// finish handshake still runs once the source closes.
func TestClient_CaptureErrorThenCleanFinish(t *testing.T) {
	server := mockServer(t, func(conn *websocket.Conn, taskID string) {
		_ = writeEvent(conn, eventTaskStarted, taskID, nil)

		var finish finishTaskRequest
		if err := conn.ReadJSON(&finish); err != nil {
			t.Logf("read finish-task: %v", err)
			return
		}
		_ = writeEvent(conn, eventTaskFinished, taskID, nil)
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	source := make(chan audio.Chunk, 1)
	source <- audio.Chunk{Err: errors.New("device unplugged")}
	close(source)

	client := New(Config{APIKey: "test-key", URL: wsURL(server)})
	results, err := client.Connect(context.Background(), source)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	got := collect(t, results)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1: %+v", len(got), got)
	}
	if got[0].Err == nil || !strings.Contains(got[0].Err.Error(), "device unplugged") {
		t.Errorf("capture error = %v", got[0].Err)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := mockServer(t, func(conn *websocket.Conn, taskID string) {
		_ = writeEvent(conn, eventTaskStarted, taskID, nil)
		close(started)
		// hold the connection open until the client drops it
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	source := make(chan audio.Chunk)
	defer close(source)

	ctx, cancel := context.WithCancel(context.Background())
	client := New(Config{APIKey: "test-key", URL: wsURL(server)})
	results, err := client.Connect(ctx, source)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	<-started
	cancel()

	select {
	case _, ok := <-results:
		if ok {
			// drain whatever raced in before the cancel
			for range results {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for results channel to close after cancel")
	}
}
