//go:build !js

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/satindergrewal/stemsync/internal/config"
	"github.com/satindergrewal/stemsync/internal/control"
	"github.com/satindergrewal/stemsync/internal/engine"
	"github.com/satindergrewal/stemsync/internal/manifest"
	"github.com/satindergrewal/stemsync/internal/stem"
	"github.com/satindergrewal/stemsync/internal/stream"
	"github.com/satindergrewal/stemsync/internal/transport/native"
)

// loaded is one engine built from one version of the manifest.
type loaded struct {
	engine *engine.Engine
	cancel context.CancelFunc
	unsub  func()
}

func (l *loaded) shutdown(logger zerolog.Logger) {
	l.engine.StopAll()
	l.unsub()
	l.cancel()
	if err := l.engine.Close(); err != nil {
		logger.Warn().Err(err).Msg("Engine close failed")
	}
}

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().Str("manifest", cfg.Manifest).Msg("stemsync starting up...")

	// Broadcaster: fan-out engine events to SSE and WebRTC listeners
	broadcaster := stream.NewBroadcaster(logger)
	api := control.NewServer(logger)
	webrtcHandler := stream.NewWebRTCHandler(broadcaster, api.Command)

	open := native.Opener(ctx, http.DefaultClient, logger)
	build := func() (*loaded, error) {
		m, err := manifest.Load(cfg.Manifest)
		if err != nil {
			return nil, err
		}
		reg := stem.Build(m.Configs(), logger)
		eng, err := engine.New(reg, open, cfg.EngineOptions(), logger)
		if err != nil {
			return nil, err
		}
		runCtx, runCancel := context.WithCancel(ctx)
		go eng.Run(runCtx)
		return &loaded{
			engine: eng,
			cancel: runCancel,
			unsub:  eng.Subscribe(broadcaster.Relay()),
		}, nil
	}

	var mu sync.Mutex
	current, err := build()
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot load stems")
	}
	api.SetEngine(current.engine)

	// Manifest hot reload (optional)
	if cfg.Watch {
		watcher, err := manifest.NewWatcher(cfg.Manifest)
		if err != nil {
			logger.Warn().Err(err).Msg("Manifest watch unavailable")
		} else {
			defer watcher.Close()
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case err, ok := <-watcher.Errors:
						if !ok {
							return
						}
						logger.Warn().Err(err).Msg("Manifest watch error")
					case _, ok := <-watcher.Events:
						if !ok {
							return
						}
						next, err := build()
						if err != nil {
							logger.Error().Err(err).Msg("Manifest reload failed, keeping current stems")
							continue
						}
						mu.Lock()
						old := current
						current = next
						api.SetEngine(next.engine)
						mu.Unlock()
						old.shutdown(logger)
						logger.Info().Int("stems", next.engine.Registry().UsableCount()).Msg("Manifest reloaded")
					}
				}
			}()
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: api.Handler(stream.NewHTTPHandler(broadcaster), webrtcHandler),
	}

	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutting down...")
		server.Close()
	}()

	logger.Info().Str("addr", addr).Msg("stemsync live")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("HTTP server error")
	}
	mu.Lock()
	current.shutdown(logger)
	mu.Unlock()
}
