// Package deps probes the external tools the daemon shells out to.
package deps

import (
	"os/exec"
	"strings"
)

// Status represents the installation status of a dependency
type Status struct {
	Name      string
	Installed bool
	Path      string
	Version   string
	Optional  bool
}

// CheckPwRecord checks the PipeWire capture tool that backs the default
// recording backend.
func CheckPwRecord() Status {
	return check("pw-record", "--version", false)
}

// CheckPwCli checks the PipeWire CLI used to probe that the sound server
// answers.
func CheckPwCli() Status {
	return check("pw-cli", "--version", false)
}

// CheckNotifySend checks the desktop notification tool. Missing it only
// silences notifications.
func CheckNotifySend() Status {
	return check("notify-send", "--version", true)
}

// All runs every dependency probe.
func All() []Status {
	return []Status{
		CheckPwRecord(),
		CheckPwCli(),
		CheckNotifySend(),
	}
}

func check(name, versionFlag string, optional bool) Status {
	status := Status{Name: name, Optional: optional}

	path, err := exec.LookPath(name)
	if err != nil {
		return status
	}
	status.Installed = true
	status.Path = path

	// first output line is the version banner
	output, err := exec.Command(path, versionFlag).Output()
	if err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}
	return status
}
