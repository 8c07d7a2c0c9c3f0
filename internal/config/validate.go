package config

import (
	"fmt"
	"sort"
)

// Language hints accepted by paraformer-realtime-v2.
var paraformerLanguages = map[string]bool{
	"zh": true, "en": true, "ja": true, "yue": true,
	"ko": true, "de": true, "fr": true, "ru": true,
}

// Languages accepted by qwen3-asr-flash-realtime.
var qwenLanguages = map[string]bool{
	"zh": true, "yue": true, "en": true, "ja": true, "de": true, "ko": true,
	"ru": true, "fr": true, "pt": true, "ar": true, "it": true, "es": true,
	"hi": true, "id": true, "th": true, "tr": true, "uk": true, "vi": true,
	"cs": true, "da": true, "fil": true, "fi": true, "is": true, "ms": true,
	"no": true, "pl": true, "sv": true,
}

// ParaformerLanguages returns the accepted language hint codes, sorted.
func ParaformerLanguages() []string {
	return sortedKeys(paraformerLanguages)
}

// QwenLanguages returns the accepted language codes, sorted.
func QwenLanguages() []string {
	return sortedKeys(qwenLanguages)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) Validate() error {
	switch c.Recording.Backend {
	case RecordingPwRecord:
	case RecordingPlayback:
		if c.Recording.PlaybackFile == "" {
			return fmt.Errorf("recording: playback backend requires playback_file")
		}
	default:
		return fmt.Errorf("recording: unknown backend %q", c.Recording.Backend)
	}

	// Deterministic error order for tests and users.
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := c.Profiles[name].validate(); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
	}
	return nil
}

func (p ProfileConfig) validate() error {
	if p.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}

	switch p.Backend {
	case BackendParaformerV2:
		seen := make(map[string]bool)
		for _, hint := range p.LanguageHints {
			if !paraformerLanguages[hint] {
				return fmt.Errorf("unsupported language hint %q", hint)
			}
			if seen[hint] {
				return fmt.Errorf("duplicate language hint %q", hint)
			}
			seen[hint] = true
		}
		if p.MaxSentenceSilence != nil {
			if ms := *p.MaxSentenceSilence; ms < 200 || ms > 6000 {
				return fmt.Errorf("max_sentence_silence %d out of range [200, 6000]", ms)
			}
		}
		if p.Language != "" || p.TurnDetection != nil {
			return fmt.Errorf("language and turn_detection are qwen-v3 options")
		}

	case BackendQwenV3:
		if p.Language != "" && !qwenLanguages[p.Language] {
			return fmt.Errorf("unsupported language %q", p.Language)
		}
		if td := p.TurnDetection; td != nil {
			if td.Threshold < 0 || td.Threshold > 1 {
				return fmt.Errorf("turn_detection threshold %v out of range [0, 1]", td.Threshold)
			}
			if td.SilenceDurationMs <= 0 {
				return fmt.Errorf("turn_detection silence_duration_ms must be positive")
			}
		}
		if len(p.LanguageHints) > 0 {
			return fmt.Errorf("language_hints is a paraformer-v2 option")
		}

	case "":
		return fmt.Errorf("backend is required")
	default:
		return fmt.Errorf("unknown backend %q", p.Backend)
	}
	return nil
}
