package config

// Backend kinds a profile may select.
const (
	BackendParaformerV2 = "paraformer-v2"
	BackendQwenV3       = "qwen-v3"
)

// Recording backends.
const (
	RecordingPwRecord = "pw-record"
	RecordingPlayback = "playback"
)

type Config struct {
	Recording RecordingConfig          `toml:"recording"`
	Profiles  map[string]ProfileConfig `toml:"profiles"`
}

type RecordingConfig struct {
	Backend           string `toml:"backend"`
	Device            string `toml:"device"`
	BufferSize        int    `toml:"buffer_size"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
	PlaybackFile      string `toml:"playback_file"` // only for the playback backend
}

// ProfileConfig selects a backend kind and its options. Optional fields use
// pointers so that "unset" is distinguishable from an explicit zero value and
// is omitted from the backend handshake.
type ProfileConfig struct {
	Backend string `toml:"backend"`
	APIKey  string `toml:"api_key"`

	// paraformer-v2 options
	LanguageHints            []string `toml:"language_hints"`
	DisfluencyRemoval        *bool    `toml:"disfluency_removal"`
	SemanticPunctuation      *bool    `toml:"semantic_punctuation"`
	MaxSentenceSilence       *int     `toml:"max_sentence_silence"`
	PunctuationPrediction    *bool    `toml:"punctuation_prediction"`
	InverseTextNormalization *bool    `toml:"inverse_text_normalization"`

	// qwen-v3 options
	Language      string               `toml:"language"`
	TurnDetection *TurnDetectionConfig `toml:"turn_detection"`
}

type TurnDetectionConfig struct {
	Threshold         float64 `toml:"threshold"`
	SilenceDurationMs int     `toml:"silence_duration_ms"`
}
