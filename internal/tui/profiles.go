package tui

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/scribed/scribed/internal/config"
	"github.com/scribed/scribed/internal/language"
)

// maskAPIKey returns a masked version of an API key for display
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// editProfiles handles the profiles section with an add/edit/remove submenu
func editProfiles(cfg *config.Config) error {
	for {
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		var options []huh.Option[string]
		for _, name := range names {
			p := cfg.Profiles[name]
			options = append(options, huh.NewOption(fmt.Sprintf("%s [%s]", name, p.Backend), name))
		}
		options = append(options,
			huh.NewOption("+ Add profile", "__add"),
			huh.NewOption("- Remove profile", "__remove"),
			huh.NewOption("Done", "__back"),
		)

		var selected string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("Transcription Profiles").
					Description("Select a profile to edit").
					Options(options...).
					Value(&selected),
			),
		).WithTheme(getTheme())

		if err := form.Run(); err != nil {
			return err
		}

		switch selected {
		case "__back":
			return nil
		case "__add":
			if err := addProfile(cfg); err != nil {
				continue
			}
		case "__remove":
			if err := removeProfile(cfg, names); err != nil {
				continue
			}
		default:
			if err := editProfile(cfg, selected); err != nil {
				continue
			}
		}
	}
}

func addProfile(cfg *config.Config) error {
	var name string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Profile Name").
				Description("Name used with 'scribed transcribe <profile>'").
				Value(&name).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("profile name is required")
					}
					if _, exists := cfg.Profiles[s]; exists {
						return fmt.Errorf("profile %q already exists", s)
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	return editProfile(cfg, name)
}

func removeProfile(cfg *config.Config, names []string) error {
	if len(names) == 0 {
		return nil
	}

	var options []huh.Option[string]
	for _, name := range names {
		options = append(options, huh.NewOption(name, name))
	}
	options = append(options, huh.NewOption("Cancel", "__cancel"))

	var selected string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Remove Profile").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	if selected != "__cancel" {
		delete(cfg.Profiles, selected)
	}
	return nil
}

func editProfile(cfg *config.Config, name string) error {
	profile := cfg.Profiles[name]

	backend := profile.Backend
	if backend == "" {
		backend = config.BackendParaformerV2
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Backend").
				Options(
					huh.NewOption("Paraformer v2 (multilingual, language hints)", config.BackendParaformerV2),
					huh.NewOption("Qwen3 ASR Flash (realtime, turn detection)", config.BackendQwenV3),
				).
				Value(&backend),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	// Switching backend drops options that no longer apply.
	if backend != profile.Backend {
		profile = config.ProfileConfig{Backend: backend, APIKey: profile.APIKey}
	}

	apiKey, err := inputAPIKey(profile.APIKey)
	if err != nil {
		return err
	}
	if apiKey != "" {
		profile.APIKey = apiKey
	}

	switch backend {
	case config.BackendParaformerV2:
		err = editParaformerOptions(&profile)
	case config.BackendQwenV3:
		err = editQwenOptions(&profile)
	}
	if err != nil {
		return err
	}

	cfg.Profiles[name] = profile
	return nil
}

func inputAPIKey(existing string) (string, error) {
	if existing != "" {
		var update bool
		confirmForm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("DashScope API Key").
					Description(fmt.Sprintf("Current: %s", maskAPIKey(existing))).
					Affirmative("Update key").
					Negative("Keep current").
					Value(&update),
			),
		).WithTheme(getTheme())

		if err := confirmForm.Run(); err != nil {
			return "", err
		}
		if !update {
			return "", nil
		}
	}

	var apiKey string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("DashScope API Key").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("API key is required")
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return apiKey, nil
}

func editParaformerOptions(profile *config.ProfileConfig) error {
	hints := profile.LanguageHints

	var hintOptions []huh.Option[string]
	for _, code := range config.ParaformerLanguages() {
		hintOptions = append(hintOptions, huh.NewOption(language.Display(code), code))
	}

	disfluency := boolOr(profile.DisfluencyRemoval, false)
	semantic := boolOr(profile.SemanticPunctuation, false)
	silence := ""
	if profile.MaxSentenceSilence != nil {
		silence = strconv.Itoa(*profile.MaxSentenceSilence)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Language Hints").
				Description("Bias recognition toward these languages (empty = auto)").
				Options(hintOptions...).
				Value(&hints),
			huh.NewConfirm().
				Title("Disfluency Removal").
				Description("Strip filler words from results").
				Value(&disfluency),
			huh.NewConfirm().
				Title("Semantic Punctuation").
				Description("Split sentences on semantics instead of pauses").
				Value(&semantic),
			huh.NewInput().
				Title("Max Sentence Silence (ms)").
				Description("Pause that ends a sentence, 200-6000 (empty = default)").
				Value(&silence).
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					ms, err := strconv.Atoi(s)
					if err != nil {
						return fmt.Errorf("must be a number")
					}
					if ms < 200 || ms > 6000 {
						return fmt.Errorf("must be between 200 and 6000")
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	profile.LanguageHints = hints
	profile.DisfluencyRemoval = &disfluency
	profile.SemanticPunctuation = &semantic
	if silence == "" {
		profile.MaxSentenceSilence = nil
	} else {
		ms, _ := strconv.Atoi(silence)
		profile.MaxSentenceSilence = &ms
	}
	return nil
}

func editQwenOptions(profile *config.ProfileConfig) error {
	languageOptions := []huh.Option[string]{huh.NewOption(language.Auto.Name, "")}
	for _, code := range config.QwenLanguages() {
		languageOptions = append(languageOptions, huh.NewOption(language.Display(code), code))
	}

	language := profile.Language
	turnDetection := profile.TurnDetection != nil

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Language").
				Options(languageOptions...).
				Value(&language),
			huh.NewConfirm().
				Title("Tune Turn Detection").
				Description("Override server-side voice activity detection").
				Value(&turnDetection),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	profile.Language = language

	if !turnDetection {
		profile.TurnDetection = nil
		return nil
	}
	return editTurnDetection(profile)
}

func editTurnDetection(profile *config.ProfileConfig) error {
	threshold := "0.5"
	silence := "800"
	if td := profile.TurnDetection; td != nil {
		threshold = strconv.FormatFloat(td.Threshold, 'f', -1, 64)
		silence = strconv.Itoa(td.SilenceDurationMs)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("VAD Threshold").
				Description("0.0 (sensitive) to 1.0 (strict)").
				Value(&threshold).
				Validate(func(s string) error {
					v, err := strconv.ParseFloat(s, 64)
					if err != nil || v < 0 || v > 1 {
						return fmt.Errorf("must be a number between 0 and 1")
					}
					return nil
				}),
			huh.NewInput().
				Title("Silence Duration (ms)").
				Description("Silence that ends an utterance").
				Value(&silence).
				Validate(func(s string) error {
					ms, err := strconv.Atoi(s)
					if err != nil || ms <= 0 {
						return fmt.Errorf("must be a positive number")
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	v, _ := strconv.ParseFloat(threshold, 64)
	ms, _ := strconv.Atoi(silence)
	profile.TurnDetection = &config.TurnDetectionConfig{Threshold: v, SilenceDurationMs: ms}
	return nil
}

func boolOr(p *bool, fallback bool) bool {
	if p == nil {
		return fallback
	}
	return *p
}
