package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sayless-Digital/WP-POS-sub005/internal/config"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/infra"
	"github.com/Sayless-Digital/WP-POS-sub005/internal/offline"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// The agent runs next to the POS terminal. It owns the durable offline queue
// and drains it to the backend whenever connectivity allows. The terminal
// process enqueues orders into the same queue directory; the agent is the
// only writer of sync state transitions.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	queue, err := offline.NewFileQueue(cfg.QueueDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open offline queue")
	}

	client := offline.NewHTTPClient(cfg.ServerURL, cfg.AgentToken, time.Duration(cfg.SyncTimeoutSec)*time.Second)

	// The breaker stops hammering a server that is down: after a few
	// consecutive failures the drain loop sits out until the cooldown lapses.
	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		OpenTimeout:      30 * time.Second,
	})

	engineCfg := offline.DefaultEngineConfig()
	if cfg.SyncMaxAttempts > 0 {
		engineCfg.MaxAttempts = cfg.SyncMaxAttempts
	}
	engine, err := offline.NewEngine(queue, client, cb, engineCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start sync engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := time.Duration(cfg.SyncIntervalSec) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			// Cheap probe before a drain pass — skip the whole pass while
			// offline instead of burning attempt counts on every record.
			if !client.Ping(ctx) {
				log.Debug().Msg("server unreachable, skipping drain pass")
				continue
			}

			sum, err := engine.SyncAll(ctx)
			if err != nil {
				log.Error().Err(err).Msg("drain pass aborted")
				continue
			}
			if sum.Synced+sum.Duplicate+sum.Conflict+sum.Failed > 0 {
				log.Info().
					Int("synced", sum.Synced).
					Int("duplicate", sum.Duplicate).
					Int("conflict", sum.Conflict).
					Int("failed", sum.Failed).
					Int("skipped", sum.Skipped).
					Msg("drain pass complete")
			}

			if n, err := engine.Prune(7 * 24 * time.Hour); err == nil && n > 0 {
				log.Debug().Int("pruned", n).Msg("old synced records removed")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("agent shutting down…")
	cancel()
}
