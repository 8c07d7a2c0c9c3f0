package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/scribed/scribed/internal/config"
)

// editRecording edits the capture backend settings
func editRecording(cfg *config.Config) error {
	backend := cfg.Recording.Backend
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Recording Backend").
				Description("How audio is captured for transcription").
				Options(
					huh.NewOption("PipeWire (pw-record)", config.RecordingPwRecord),
					huh.NewOption("File playback (replay a recorded PCM/WAV file)", config.RecordingPlayback),
				).
				Value(&backend),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Recording.Backend = backend

	switch backend {
	case config.RecordingPwRecord:
		return editPwRecordOptions(cfg)
	case config.RecordingPlayback:
		return editPlaybackOptions(cfg)
	}
	return nil
}

func editPwRecordOptions(cfg *config.Config) error {
	device := cfg.Recording.Device
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Capture Device").
				Description("PipeWire target node (leave empty for the default source)").
				Value(&device),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Recording.Device = device
	return nil
}

func editPlaybackOptions(cfg *config.Config) error {
	path := cfg.Recording.PlaybackFile
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Playback File").
				Description("Path to a 16 kHz mono s16le PCM or WAV file").
				Value(&path).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("playback file is required")
					}
					if _, err := os.Stat(s); err != nil {
						return fmt.Errorf("cannot read %s", s)
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Recording.PlaybackFile = path
	return nil
}
