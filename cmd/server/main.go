package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	duochat "github.com/MegaGrindStone/duochat"
	"github.com/MegaGrindStone/duochat/internal/chat"
	"github.com/MegaGrindStone/duochat/internal/handlers"
	"github.com/MegaGrindStone/duochat/internal/services"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFilePath string

	rootCmd := &cobra.Command{
		Use:   "duochat",
		Short: "Chat with a basic and a RAG-enhanced model side by side",
		Long: `duochat serves a two-pane chat page. Every message is sent to a basic
completions endpoint and then to a retrieval-augmented one, and both
answers stream into their own pane.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFilePath)
			if err != nil {
				return err
			}
			serve(cfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFilePath, "config", defaultConfigPath(), "Path to the config file")
	rootCmd.AddCommand(newHealthCmd(&cfgFilePath))

	return rootCmd
}

func newHealthCmd(cfgFilePath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the health URLs of both endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*cfgFilePath)
			if err != nil {
				return err
			}

			logger := newLogger(cfg, io.Discard)
			basic, rag := newEndpoints(cfg, logger)

			results, healthy := handlers.CheckHealth(cmd.Context(), []handlers.HealthChecker{basic, rag})
			printHealth(cmd.OutOrStdout(), results)
			if !healthy {
				return fmt.Errorf("endpoints unavailable")
			}
			return nil
		},
	}
}

func printHealth(w io.Writer, results []handlers.HealthResult) {
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "%s: %s (%s)\n", r.Endpoint, r.Status, r.Error)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", r.Endpoint, r.Status)
	}
}

func defaultConfigPath() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(cfgDir, "duochat", "config.yaml")
}

func newLogger(cfg config, w io.Writer) *slog.Logger {
	// validate has already rejected unknown levels.
	level, _ := parseLogLevel(cfg.LogLevel)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newEndpoints(cfg config, logger *slog.Logger) (services.Endpoint, services.Endpoint) {
	basic := services.NewEndpoint(string(chat.PaneBasic), cfg.Basic.URL, cfg.Basic.HealthURL, nil, logger)
	rag := services.NewEndpoint(string(chat.PaneRAG), cfg.RAG.URL, cfg.RAG.HealthURL, nil, logger)
	return basic, rag
}

func serve(cfg config) {
	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	md := services.NewMarkdown("")
	basic, rag := newEndpoints(cfg, logger)

	opts := handlers.Options{
		Probes:           []handlers.HealthChecker{basic, rag},
		SubmitsPerMinute: cfg.SubmitsPerMinute,
	}

	var recorder chat.Recorder
	if cfg.TranscriptPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.TranscriptPath), 0755); err != nil {
			log.Fatal(fmt.Errorf("error creating transcript directory: %w", err))
		}
		boltDB, err := services.NewBoltDB(cfg.TranscriptPath)
		if err != nil {
			log.Fatal(err)
		}
		defer boltDB.Close()

		recorder = boltDB
		opts.Transcript = boltDB
	}

	broadcaster, err := handlers.NewBroadcaster(logger)
	if err != nil {
		log.Fatal(err)
	}

	session, err := chat.NewSession(chat.Config{
		Basic:           chat.Endpoint{LLM: basic, SystemPrompt: cfg.Basic.SystemPrompt},
		RAG:             chat.Endpoint{LLM: rag, SystemPrompt: cfg.RAG.SystemPrompt},
		View:            broadcaster,
		Renderer:        md,
		Recorder:        recorder,
		Params:          cfg.requestParams(),
		DisplayInterval: cfg.DisplayInterval,
		NewScheduler: func() chat.Scheduler {
			return chat.NewFrames(cfg.FrameInterval)
		},
		Logger: logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	m, err := handlers.NewMain(session, broadcaster, md, opts, logger)
	if err != nil {
		log.Fatal(err)
	}

	// Serve static files
	staticFS, err := fs.Sub(duochat.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("/", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("/sse", m.HandleSSE)
	mux.HandleFunc("/health", m.HandleHealth)
	mux.HandleFunc("/transcript", m.HandleTranscript)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Turns must have returned before the transcript is closed by the deferred Close.
	handlersDone := make(chan struct{})
	shutdownHandlers := func() {
		defer close(handlersDone)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown handlers", slog.String("err", err.Error()))
		}
	}
	srv.RegisterOnShutdown(shutdownHandlers)

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))
		shutdownHandlers()

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
		<-handlersDone
	}
}
