// Package notify sends desktop notifications about session lifecycle.
package notify

import (
	"fmt"
	"os/exec"

	"github.com/charmbracelet/log"
)

type Notifier interface {
	SessionStarted(profile string)
	SessionEnded(profile string)
	Error(msg string)
}

type Desktop struct{}

func (Desktop) SessionStarted(profile string) {
	send(fmt.Sprintf("Transcribing with profile %q", profile))
}

func (Desktop) SessionEnded(profile string) {
	send(fmt.Sprintf("Transcription finished (%s)", profile))
}

func (Desktop) Error(msg string) {
	cmd := exec.Command("notify-send", "-a", "Scribed", "-u", "critical", msg)
	if err := cmd.Run(); err != nil {
		log.Warn("failed to send error notification", "error", err)
	}
}

func send(msg string) {
	cmd := exec.Command("notify-send", "-a", "Scribed", msg)
	if err := cmd.Run(); err != nil {
		log.Warn("failed to send notification", "error", err)
	}
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) SessionStarted(profile string) {}
func (Nop) SessionEnded(profile string)   {}
func (Nop) Error(msg string)              {}
