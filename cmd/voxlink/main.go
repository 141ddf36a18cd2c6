// Command voxlink runs a duplex voice session against the Gemini Live API
// using the local microphone and speaker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/voxlink/internal/app"
	"github.com/MrWong99/voxlink/internal/config"
	"github.com/MrWong99/voxlink/internal/health"
	"github.com/MrWong99/voxlink/internal/observe"
	"github.com/MrWong99/voxlink/internal/resilience"
	"github.com/MrWong99/voxlink/pkg/audio/capture"
	"github.com/MrWong99/voxlink/pkg/audio/playback"
	"github.com/MrWong99/voxlink/pkg/audio/portaudio"
	"github.com/MrWong99/voxlink/pkg/live"
	"github.com/MrWong99/voxlink/pkg/live/websocket"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxlink: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxlink: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := newLogger(cfg.Server.LogFormat, &level)
	slog.SetDefault(logger)

	slog.Info("voxlink starting",
		"version", version,
		"config", *configPath,
		"model", cfg.Provider.Model,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Audio devices ─────────────────────────────────────────────────────────
	host, err := portaudio.New(
		portaudio.WithInputDevice(cfg.Audio.InputDevice),
		portaudio.WithOutputDevice(cfg.Audio.OutputDevice),
	)
	if err != nil {
		slog.Error("failed to initialise audio host", "err", err)
		return 1
	}
	defer host.Close()

	speaker, err := playback.New(ctx, host.Sink(),
		playback.WithSampleRate(cfg.Audio.OutputRate),
		playback.WithIdleSuspend(cfg.Audio.IdleSuspend),
		playback.WithLogger(logger.With("component", "playback")),
	)
	if err != nil {
		slog.Error("failed to open speaker", "err", err)
		return 1
	}
	mic := capture.New(host,
		capture.WithSampleRate(cfg.Audio.InputRate),
		capture.WithDeviceSampleRate(cfg.Audio.DeviceInputRate),
		capture.WithFrameDuration(cfg.Audio.FrameDuration()),
		capture.WithWorkers(cfg.Audio.EncoderWorkers),
		capture.WithLogger(logger.With("component", "capture")),
	)

	// ── Live session ──────────────────────────────────────────────────────────
	dialer := newDialer(cfg, logger.With("component", "dialer"))
	session := live.New(dialer, append(cfg.LiveOptions(),
		live.WithSink(app.NewSink(speaker, logger.With("component", "sink"))),
		live.WithMetrics(metrics),
		live.WithLogger(logger.With("component", "live")),
	)...)

	// ── Config hot reload ─────────────────────────────────────────────────────
	tmpl := newTemplateStore(cfg)
	if tmpl.err != nil {
		slog.Error("invalid session config", "err", tmpl.err)
		return 1
	}
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.Empty() {
			return
		}
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SessionChanged {
			if err := tmpl.update(new); err != nil {
				slog.Warn("ignoring session change", "err", err)
			} else {
				slog.Info("session template updated, applies on next connect", "fields", d.SessionFields)
			}
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config change requires restart", "sections", d.RestartRequired)
		}
	}, config.WithWatcherLogger(logger.With("component", "config")))
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	application := app.New(session, mic, speaker,
		app.WithTemplate(tmpl.get),
		app.WithEventHandler(printEvent),
		app.WithLogger(logger),
	)

	// ── Admin HTTP ────────────────────────────────────────────────────────────
	var srv *http.Server
	if cfg.Server.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", tel.Handler())
		health.New(health.Session(session), health.Endpoints(dialer)).Register(mux)
		srv = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           observe.Middleware(metrics, logger)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("admin server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("admin server error", "err", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	if err := application.Connect(ctx); err != nil {
		slog.Error("failed to connect", "err", err)
		stop()
	} else {
		slog.Info("session ready, press Ctrl+C to shut down", "session_id", session.ID())
	}

	exit := 0
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("admin server shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exit
}

// newDialer puts the primary endpoint and every fallback behind their own
// circuit breaker.
func newDialer(cfg *config.Config, log *slog.Logger) *resilience.Dialer {
	endpoint := func(base string) resilience.Endpoint {
		var opts []websocket.Option
		name := "default"
		if base != "" {
			opts = append(opts, websocket.WithBaseURL(base))
			name = base
		}
		return resilience.Endpoint{Name: name, Dialer: websocket.New(cfg.Provider.APIKey, opts...)}
	}
	endpoints := []resilience.Endpoint{endpoint(cfg.Provider.BaseURL)}
	for _, u := range cfg.Provider.FallbackURLs {
		endpoints = append(endpoints, endpoint(u))
	}
	return resilience.NewDialer(endpoints, resilience.BreakerConfig{
		MaxFailures:  cfg.Provider.Breaker.MaxFailures,
		ResetTimeout: cfg.Provider.Breaker.ResetTimeout,
		Logger:       log,
	})
}

// printEvent writes transcripts and model text to stdout.
func printEvent(ev live.Event) {
	switch ev.Kind {
	case live.EventTranscript:
		fmt.Printf("[%s] %s\n", ev.Source, ev.Text)
	case live.EventContent:
		var b strings.Builder
		for _, p := range ev.Parts {
			b.WriteString(p.Text)
		}
		if b.Len() > 0 {
			fmt.Printf("[model] %s\n", b.String())
		}
	case live.EventInterrupted:
		fmt.Println("[interrupted]")
	case live.EventClosed:
		fmt.Printf("[closed] %s (code %d)\n", ev.Reason, ev.Code)
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
