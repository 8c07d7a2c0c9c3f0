package paraformer

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// DashScope inference protocol. Client control messages are JSON text
// frames; audio travels as raw binary frames on the same connection.

const (
	actionRunTask    = "run-task"
	actionFinishTask = "finish-task"

	eventTaskStarted     = "task-started"
	eventResultGenerated = "result-generated"
	eventTaskFinished    = "task-finished"
	eventTaskFailed      = "task-failed"
)

type emptyObj struct{}

type requestHeader struct {
	Action    string `json:"action"`
	TaskID    string `json:"task_id"`
	Streaming string `json:"streaming"`
}

type runTaskParameters struct {
	Format                          string   `json:"format"`
	SampleRate                      int      `json:"sample_rate"`
	LanguageHints                   []string `json:"language_hints,omitempty"`
	DisfluencyRemovalEnabled        *bool    `json:"disfluency_removal_enabled,omitempty"`
	SemanticPunctuationEnabled      *bool    `json:"semantic_punctuation_enabled,omitempty"`
	MaxSentenceSilence              *int     `json:"max_sentence_silence,omitempty"`
	PunctuationPredictionEnabled    *bool    `json:"punctuation_prediction_enabled,omitempty"`
	InverseTextNormalizationEnabled *bool    `json:"inverse_text_normalization_enabled,omitempty"`
}

type runTaskPayload struct {
	TaskGroup  string            `json:"task_group"`
	Task       string            `json:"task"`
	Function   string            `json:"function"`
	Model      string            `json:"model"`
	Parameters runTaskParameters `json:"parameters"`
	Input      emptyObj          `json:"input"`
}

type runTaskRequest struct {
	Header  requestHeader  `json:"header"`
	Payload runTaskPayload `json:"payload"`
}

func newRunTaskRequest(cfg Config) runTaskRequest {
	return runTaskRequest{
		Header: requestHeader{
			Action:    actionRunTask,
			TaskID:    uuid.NewString(),
			Streaming: "duplex",
		},
		Payload: runTaskPayload{
			TaskGroup: "audio",
			Task:      "asr",
			Function:  "recognition",
			Model:     "paraformer-realtime-v2",
			Parameters: runTaskParameters{
				Format:                          "pcm",
				SampleRate:                      16000,
				LanguageHints:                   cfg.LanguageHints,
				DisfluencyRemovalEnabled:        cfg.DisfluencyRemoval,
				SemanticPunctuationEnabled:      cfg.SemanticPunctuation,
				MaxSentenceSilence:              cfg.MaxSentenceSilence,
				PunctuationPredictionEnabled:    cfg.PunctuationPrediction,
				InverseTextNormalizationEnabled: cfg.InverseTextNormalization,
			},
		},
	}
}

type finishTaskPayload struct {
	Input emptyObj `json:"input"`
}

type finishTaskRequest struct {
	Header  requestHeader     `json:"header"`
	Payload finishTaskPayload `json:"payload"`
}

func newFinishTaskRequest(taskID string) finishTaskRequest {
	return finishTaskRequest{
		Header: requestHeader{
			Action:    actionFinishTask,
			TaskID:    taskID,
			Streaming: "duplex",
		},
	}
}

type sentence struct {
	BeginTime   int64  `json:"begin_time"`
	EndTime     *int64 `json:"end_time"`
	Text        string `json:"text"`
	Heartbeat   bool   `json:"heartbeat"`
	SentenceEnd bool   `json:"sentence_end"`
}

type serverEvent struct {
	Header struct {
		TaskID       string `json:"task_id"`
		Event        string `json:"event"`
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"header"`
	Payload struct {
		Output struct {
			Sentence sentence `json:"sentence"`
		} `json:"output"`
	} `json:"payload"`
}

func parseServerEvent(data []byte) (serverEvent, error) {
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return serverEvent{}, err
	}
	if ev.Header.Event == "" {
		return serverEvent{}, fmt.Errorf("missing header.event")
	}
	return ev, nil
}

// TaskError is a backend-reported task failure.
type TaskError struct {
	Code    string
	Message string
}

func (e *TaskError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("paraformer task failed: %s", e.Message)
	}
	return fmt.Sprintf("paraformer task failed: %s: %s", e.Code, e.Message)
}
