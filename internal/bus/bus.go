// Package bus carries the daemon control protocol over a local unix socket:
// single-line requests, line-oriented replies, and an EVENT line stream for
// transcription sessions.
package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/scribed/scribed/internal/asr"
)

const SockName = "control.sock"
const PidName = "scribed.pid"
const ProtoVer = "0.1"

// Commands. A request is one line: the command byte, then an optional
// argument.
const (
	CmdTranscribe = 't' // t <profile> -> EVENT lines, then END or ERR
	CmdStop       = 'x' // -> OK stopped=<bool>
	CmdStatus     = 's' // -> STATUS active=<bool>
	CmdVersion    = 'v' // -> STATUS proto=<ver>
	CmdQuit       = 'q' // -> OK quitting
)

// ~/.cache/scribed/control.sock
func SockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scribed", SockName), nil
}

// ~/.cache/scribed/scribed.pid
func PidPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scribed", PidName), nil
}

func Listen() (net.Listener, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(sp) // stale socket from last run
	return net.Listen("unix", sp)
}

func Dial() (net.Conn, error) {
	sp, err := SockPath()
	if err != nil {
		return nil, err
	}
	return net.Dial("unix", sp)
}

// SendCommand sends a one-line request and returns the single reply line.
// Not usable for transcribe, which streams; see Transcribe.
func SendCommand(line string) (string, error) {
	c, err := Dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	if _, err := fmt.Fprintf(c, "%s\n", line); err != nil {
		return "", err
	}
	return bufio.NewReader(c).ReadString('\n')
}

// Transcribe starts a session for the profile and invokes handler for every
// event until the stream ends. Cancelling the context closes the connection,
// which the daemon observes as the consumer going away and turns into
// session cancellation.
func Transcribe(ctx context.Context, profile string, handler func(asr.Event)) error {
	c, err := Dial()
	if err != nil {
		return err
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	if _, err := fmt.Fprintf(c, "%c %s\n", CmdTranscribe, profile); err != nil {
		return err
	}

	scanner := bufio.NewScanner(c)
	// EVENT lines carry whole transcripts; the default 64K token cap is too
	// small for a long utterance.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "END":
			return nil
		case strings.HasPrefix(line, "ERR "):
			return fmt.Errorf("%s", strings.TrimPrefix(line, "ERR "))
		case strings.HasPrefix(line, "EVENT "):
			var event asr.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "EVENT ")), &event); err != nil {
				return fmt.Errorf("malformed event line: %w", err)
			}
			handler(event)
		default:
			return fmt.Errorf("unexpected reply: %q", line)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("connection closed mid-stream")
}

func CheckExistingDaemon() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	pidData, err := os.ReadFile(pidPath)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil {
		return nil // invalid pid file, assume stale
	}

	// Check if process exists
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	// kill -0: delivers nothing, fails if the process is gone
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil // process not alive, stale pid file
	}

	return fmt.Errorf("daemon already running with PID %d", pid)
}

func CreatePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(pidPath), 0o700); err != nil {
		return err
	}

	pid := os.Getpid()
	return os.WriteFile(pidPath, []byte(strconv.Itoa(pid)), 0o600)
}

func RemovePidFile() error {
	pidPath, err := PidPath()
	if err != nil {
		return err
	}
	return os.Remove(pidPath)
}
