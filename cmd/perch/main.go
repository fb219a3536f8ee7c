// Copyright 2026 The Perch Authors
// SPDX-License-Identifier: Apache-2.0

// Command perch is a terminal Matrix chat client.
//
// It logs in to a homeserver, runs the /sync loop, translates protocol
// traffic into canonical UI events, and renders a chat transcript with
// Markdown messages in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/perch-chat/perch/client"
	"github.com/perch-chat/perch/lib/config"
	"github.com/perch-chat/perch/lib/ref"
	"github.com/perch-chat/perch/lib/version"
	"github.com/perch-chat/perch/stream"
	"github.com/perch-chat/perch/ui"
)

// passwordEnvVar is consulted before prompting interactively.
const passwordEnvVar = "PERCH_PASSWORD"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "perch: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		homeserver  string
		username    string
		showVersion bool
	)
	pflag.StringVar(&configPath, "config", "", "path to the config file (default: $"+config.EnvVar+")")
	pflag.StringVar(&homeserver, "homeserver", "", "homeserver base URL (overrides the config file)")
	pflag.StringVar(&username, "user", "", "login username (overrides the config file)")
	pflag.BoolVar(&showVersion, "version", false, "print version and exit")
	pflag.Parse()

	if showVersion {
		version.Print("perch")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if homeserver != "" {
		cfg.Homeserver = homeserver
	}
	if username != "" {
		cfg.Username = username
	}
	if cfg.Homeserver == "" {
		return fmt.Errorf("no homeserver configured; pass --homeserver or set it in the config file")
	}
	if cfg.Username == "" {
		return fmt.Errorf("no username configured; pass --user or set it in the config file")
	}

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	password, err := resolvePassword()
	if err != nil {
		return err
	}

	exitKey, err := ui.ParseKeyName(cfg.UI.ExitKey)
	if err != nil {
		return fmt.Errorf("ui.exit_key: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	chat, err := client.New(client.Config{
		Homeserver: cfg.Homeserver,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	if err := chat.Login(ctx, cfg.Username, password); err != nil {
		return err
	}
	logger.Info("logged in",
		"homeserver", cfg.Homeserver,
		"user_id", chat.UserID(),
	)

	width, height := 80, 24
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width, height = w, h
	}

	theme := ui.DefaultTheme()
	ingestor := stream.NewIngestor(stream.IngestorConfig{
		Capacity:     cfg.Events.ChannelCapacity,
		Logger:       logger,
		MessageTypes: cfg.Events.MessageTypes,
		Formatter: func(body, _ string) string {
			return ui.RenderMarkdown(body, theme, width)
		},
		// A send that fails after close means the pipeline is already
		// torn; unwind the rest of the process gracefully.
		OnFailure: func(err error) {
			logger.Error("event stream failed, shutting down", "error", err)
			cancel()
		},
	})
	defer ingestor.Close()

	syncDone := make(chan error, 1)
	go func() { syncDone <- chat.Run(ctx, ingestor) }()

	restore, err := enterRawMode()
	if err != nil {
		return err
	}
	defer restore()

	mux, err := ui.StartMux(ui.MuxConfig{
		ExitKey:      exitKey,
		TickInterval: cfg.UI.TickInterval.Std(),
		Source:       ui.NewTerminalSource(os.Stdin),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer mux.Shutdown()

	app, err := ui.NewApp(ui.AppConfig{
		Conversation: conversation{MatrixClient: chat, sink: ingestor},
		Ingestor:     ingestor,
		Mux:          mux,
		Theme:        theme,
		Width:        width,
		Height:       height,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	runErr := app.Run(ctx)
	cancel()
	// Close before joining the sync goroutine: a dispatch blocked on
	// the full event channel only unblocks when the ingestor closes.
	ingestor.Close()

	if err := <-syncDone; err != nil && !isShutdownError(err) {
		return err
	}
	if runErr != nil && !isShutdownError(runErr) {
		return runErr
	}
	return nil
}

// conversation adapts the sync client to the app's outbound interface,
// binding Backfill to the ingestor so replayed history flows through
// the same translation path as live events.
type conversation struct {
	*client.MatrixClient
	sink client.NotificationSink
}

func (c conversation) Backfill(ctx context.Context, roomID ref.RoomID) error {
	return c.MatrixClient.Backfill(ctx, roomID, c.sink)
}

func loadConfig(flagValue string) (*config.Config, error) {
	path, found := config.Locate(flagValue)
	if !found {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newLogger builds the slog logger from config. A TUI owns the
// terminal, so records go to a file as JSON when one is configured;
// otherwise stderr, as text when stderr is a terminal.
func newLogger(cfg config.LogConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	options := &slog.HandlerOptions{Level: level}

	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("log.output: %w", err)
		}
		logger := slog.New(slog.NewJSONHandler(file, options))
		return logger, func() { file.Close() }, nil
	}

	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler), func() {}, nil
}

func resolvePassword() (string, error) {
	if password := os.Getenv(passwordEnvVar); password != "" {
		return password, nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty password; set $%s or type one at the prompt", passwordEnvVar)
	}
	return string(raw), nil
}

// enterRawMode puts stdin into raw mode for keystroke-at-a-time input
// and returns the restore function. Restoring twice is harmless.
func enterRawMode() (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("entering raw mode: %w", err)
	}
	return func() { term.Restore(fd, state) }, nil
}

// isShutdownError reports whether err is the expected result of our
// own cancellation rather than a failure worth surfacing.
func isShutdownError(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
