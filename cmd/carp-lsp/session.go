package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/antonkrylov/carplsp/internal/carp"
	cliconfig "github.com/antonkrylov/carplsp/internal/cli/config"
	"github.com/antonkrylov/carplsp/internal/health"
	"github.com/antonkrylov/carplsp/internal/repl"
	"github.com/antonkrylov/carplsp/internal/transcript"
)

// runtime is one REPL session plus the optional transcript and health
// endpoint hanging off it.
type runtime struct {
	logger     *slog.Logger
	session    *repl.Session
	client     *carp.Client
	transcript *transcript.Writer
	health     *health.Server
}

func openRuntime(ctx context.Context, settings *cliconfig.Settings, logger *slog.Logger) (*runtime, error) {
	id := uuid.NewString()
	rt := &runtime{logger: logger}
	opts := repl.Options{
		ID:             id,
		Launcher:       settings.Launch.Launcher(),
		Logger:         logger,
		CommandTimeout: settings.CommandTimeout,
		ExitGrace:      settings.ExitGrace,
	}

	if settings.Transcript != "" {
		w, err := transcript.Create(settings.Transcript, id)
		if err != nil {
			return nil, fmt.Errorf("transcript: %w", err)
		}
		rt.transcript = w
		opts.Recorder = w
	}

	if settings.HealthAddr != "" {
		hs := health.New(health.Config{ListenAddr: settings.HealthAddr, Logger: logger})
		if err := hs.Start(ctx); err != nil {
			rt.closeTranscript()
			return nil, fmt.Errorf("health: %w", err)
		}
		logger.Info("health endpoint listening", "addr", hs.Addr().String())
		rt.health = hs
		opts.OnStateChange = hs.Observe
	}

	rt.session = repl.New(opts)
	rt.client = carp.NewClient(rt.session, logger)
	return rt, nil
}

// start launches the REPL. A failed launch leaves the session terminated so
// every request fails fast instead of hanging.
func (r *runtime) start(ctx context.Context, settings *cliconfig.Settings) error {
	r.logger.Info("starting carp repl",
		"executable", settings.Launch.Executable,
		"profile", settings.ProfileName,
		"pty", settings.Launch.PTY,
		"session", r.session.ID(),
	)
	return r.session.Start(ctx)
}

func (r *runtime) Close() {
	if err := r.session.Close(); err != nil {
		r.logger.Debug("repl close", "err", err)
	}
	if r.health != nil {
		r.health.Stop()
	}
	r.closeTranscript()
}

func (r *runtime) closeTranscript() {
	if r.transcript == nil {
		return
	}
	if err := r.transcript.Close(); err != nil {
		r.logger.Warn("transcript close", "err", err)
	}
}
