// Package daemon runs the control socket server: it accepts connections,
// parses single-line commands, and streams transcription events back to
// clients.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/scribed/scribed/internal/asr"
	"github.com/scribed/scribed/internal/bus"
	"github.com/scribed/scribed/internal/notify"
	"github.com/scribed/scribed/internal/session"
)

type Daemon struct {
	orchestrator *session.Orchestrator
	notifier     notify.Notifier
	logger       *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(orchestrator *session.Orchestrator, n notify.Notifier) *Daemon {
	if n == nil {
		n = notify.Desktop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		orchestrator: orchestrator,
		notifier:     n,
		logger:       log.With("component", "daemon"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		d.logger.Info("received signal, shutting down gracefully", "signal", sig)
		d.cancel()
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	d.logger.Info("daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				d.logger.Info("shutdown requested")
				d.orchestrator.Stop()
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		d.logger.Warn("client read error", "error", err)
		fmt.Fprintf(c, "ERR %s: %v\n", session.CodeInternal, err)
		return
	}
	line = strings.TrimRight(line, "\n")
	if len(line) == 0 {
		fmt.Fprintf(c, "ERR %s: empty command\n", session.CodeInvalidArgument)
		return
	}

	switch line[0] {
	case bus.CmdTranscribe:
		d.transcribe(c, strings.TrimSpace(line[1:]))
	case bus.CmdStop:
		stopped := d.orchestrator.Stop()
		fmt.Fprintf(c, "OK stopped=%t\n", stopped)
	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS active=%t\n", d.orchestrator.Active())
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		d.logger.Warn("unknown command", "command", string(line[0]))
		fmt.Fprintf(c, "ERR %s: unknown command %q\n", session.CodeInvalidArgument, line[0])
	}
}

// transcribe streams session events to the client as EVENT lines. The client
// going away tears the session down: either a write fails, or the hangup
// watcher fires while the backend is silent.
func (d *Daemon) transcribe(c net.Conn, profile string) {
	if profile == "" {
		fmt.Fprintf(c, "ERR %s: missing profile name\n", session.CodeInvalidArgument)
		return
	}

	stream, err := d.orchestrator.Start(profile)
	if err != nil {
		fmt.Fprintf(c, "ERR %s: %v\n", session.CodeOf(err), err)
		return
	}
	defer stream.Close()
	go d.notifier.SessionStarted(profile)
	defer func() { go d.notifier.SessionEnded(profile) }()

	// The client sends nothing after the command line, so a read only
	// returns when it hangs up. Without this the disconnect would go
	// unnoticed until the next event, which may never come.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		buf := make([]byte, 1)
		for {
			if _, err := c.Read(buf); err != nil {
				return
			}
		}
	}()

	events := stream.Events()
	for {
		var r asr.Result
		var ok bool
		select {
		case <-gone:
			d.logger.Info("client disconnected mid-stream", "profile", profile)
			return
		case r, ok = <-events:
		}
		if !ok {
			fmt.Fprint(c, "END\n")
			return
		}
		if r.Err != nil {
			go d.notifier.Error(r.Err.Error())
			fmt.Fprintf(c, "ERR %s: %v\n", session.CodeOf(r.Err), r.Err)
			return
		}
		payload, err := json.Marshal(r.Event)
		if err != nil {
			fmt.Fprintf(c, "ERR %s: %v\n", session.CodeInternal, err)
			return
		}
		if _, err := fmt.Fprintf(c, "EVENT %s\n", payload); err != nil {
			d.logger.Info("client disconnected mid-stream", "profile", profile)
			return
		}
	}
}
