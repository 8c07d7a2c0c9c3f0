package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scribed/scribed/internal/bus"
	"github.com/scribed/scribed/internal/config"
	"github.com/scribed/scribed/internal/daemon"
	"github.com/scribed/scribed/internal/deps"
	"github.com/scribed/scribed/internal/recording"
	"github.com/scribed/scribed/internal/registry"
	"github.com/scribed/scribed/internal/session"
	"github.com/scribed/scribed/internal/tui"

	"github.com/scribed/scribed/internal/asr"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "scribed",
	Short:         "Streaming speech-to-text daemon",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		transcribeCmd(),
		stopCmd(),
		statusCmd(),
		versionCmd(),
		quitCmd(),
		configureCmd(),
		profilesCmd(),
		doctorCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			recorder, err := recording.New(cfg.Recording)
			if err != nil {
				return fmt.Errorf("failed to set up recording: %w", err)
			}
			reg, err := registry.New(cfg.Profiles)
			if err != nil {
				return fmt.Errorf("failed to build profile registry: %w", err)
			}
			orchestrator := session.New(reg, recorder)

			return daemon.New(orchestrator, nil).Run()
		},
	}
}

func transcribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <profile>",
		Short: "Start a transcription session and print events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return bus.Transcribe(cmd.Context(), args[0], func(ev asr.Event) {
				if ev.SentenceEnd {
					fmt.Printf("[%dms] %s\n", ev.BeginTime, ev.Text)
				} else {
					fmt.Printf("[%dms] %s ...\n", ev.BeginTime, ev.Text)
				}
			})
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active transcription session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(string(bus.CmdStop))
			if err != nil {
				return fmt.Errorf("failed to stop session: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a session is active",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(string(bus.CmdStatus))
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(string(bus.CmdVersion))
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func quitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Shut down the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(string(bus.CmdQuit))
			if err != nil {
				return fmt.Errorf("failed to shut down daemon: %w", err)
			}
			fmt.Print(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration wizard for scribed.
This will guide you through setting up:
- Recording backend (pw-record or file playback)
- Transcription profiles and backend API keys
- Per-backend recognition options`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	result, err := tui.Run(cfg)
	if err != nil {
		return fmt.Errorf("configuration wizard error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		return err
	}

	if err := result.Config.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
	return nil
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tool dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			var missing bool
			for _, status := range deps.All() {
				mark := "[x]"
				if !status.Installed {
					mark = "[ ]"
					if !status.Optional {
						missing = true
					}
				}
				line := fmt.Sprintf("%s %s", mark, status.Name)
				if status.Version != "" {
					line += " - " + status.Version
				}
				if status.Optional {
					line += " (optional)"
				}
				fmt.Println(line)
			}
			if missing {
				return fmt.Errorf("required dependencies missing")
			}
			return nil
		},
	}
}

func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List configured transcription profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			reg, err := registry.New(cfg.Profiles)
			if err != nil {
				return fmt.Errorf("failed to build profile registry: %w", err)
			}
			names := reg.Names()
			if len(names) == 0 {
				fmt.Println("No profiles configured. Run 'scribed configure' to add one.")
				return nil
			}
			for _, name := range names {
				profile := cfg.Profiles[name]
				var opts []string
				if len(profile.LanguageHints) > 0 {
					opts = append(opts, "hints="+strings.Join(profile.LanguageHints, ","))
				}
				if profile.Language != "" {
					opts = append(opts, "language="+profile.Language)
				}
				line := fmt.Sprintf("  %s [%s]", name, profile.Backend)
				if len(opts) > 0 {
					line += " " + strings.Join(opts, " ")
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
