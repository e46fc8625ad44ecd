package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ashureev/shsh-chat/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app holds state shared by every subcommand.
type app struct {
	configPath string
	verbose    bool
	logOutput  io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logOutput: os.Stderr}

	root := &cobra.Command{
		Use:   "chatwidget",
		Short: "Chat widget session client and development backend",
		Long: `chatwidget drives the chat widget's session client from a terminal.

  chatwidget chat                 # talk to the configured backend
  chatwidget backend              # serve a protocol-compatible echo backend
  chatwidget transcript <id>      # print a stored transcript

Configuration comes from an optional YAML file (--config), then .env and
environment variables such as CHAT_URL and SUGGESTED_QUESTIONS.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newChatCmd(a),
		newBackendCmd(a),
		newTranscriptCmd(a),
	)
	return root
}

func (a *app) setup() error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(a.logger)

	if err := godotenv.Load(); err != nil {
		a.logger.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.cfg = cfg
	return nil
}
