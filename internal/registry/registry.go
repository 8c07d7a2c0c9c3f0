// Package registry maps profile names to constructed ASR backend clients.
package registry

import (
	"fmt"
	"sort"

	"github.com/scribed/scribed/internal/asr"
	"github.com/scribed/scribed/internal/asr/paraformer"
	"github.com/scribed/scribed/internal/asr/qwen"
	"github.com/scribed/scribed/internal/config"
)

// Registry holds one client per configured profile. Construction is
// side-effect-free; nothing touches the network until Connect. Backend
// dispatch is closed: adding a backend means one more case in newClient and
// one more client package, not changes to existing ones.
type Registry struct {
	clients map[string]asr.Client
}

// New builds clients for every configured profile. Config validation has
// already rejected unknown backend kinds, so hitting one here is reported
// rather than skipped.
func New(profiles map[string]config.ProfileConfig) (*Registry, error) {
	clients := make(map[string]asr.Client, len(profiles))
	for name, p := range profiles {
		client, err := newClient(p)
		if err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		clients[name] = client
	}
	return &Registry{clients: clients}, nil
}

func newClient(p config.ProfileConfig) (asr.Client, error) {
	switch p.Backend {
	case config.BackendParaformerV2:
		return paraformer.New(paraformer.Config{
			APIKey:                   p.APIKey,
			LanguageHints:            p.LanguageHints,
			DisfluencyRemoval:        p.DisfluencyRemoval,
			SemanticPunctuation:      p.SemanticPunctuation,
			MaxSentenceSilence:       p.MaxSentenceSilence,
			PunctuationPrediction:    p.PunctuationPrediction,
			InverseTextNormalization: p.InverseTextNormalization,
		}), nil

	case config.BackendQwenV3:
		cfg := qwen.Config{
			APIKey:   p.APIKey,
			Language: p.Language,
		}
		if td := p.TurnDetection; td != nil {
			cfg.TurnDetection = &qwen.TurnDetection{
				Threshold:         td.Threshold,
				SilenceDurationMs: td.SilenceDurationMs,
			}
		}
		return qwen.New(cfg), nil

	default:
		return nil, fmt.Errorf("unknown backend %q", p.Backend)
	}
}

// Resolve is a pure lookup.
func (r *Registry) Resolve(name string) (asr.Client, bool) {
	client, ok := r.clients[name]
	return client, ok
}

// Names returns the configured profile names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
