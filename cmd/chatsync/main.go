// Command chatsync runs the conversation synchronization engine as a
// long-lived process: it connects the push channel, bootstraps the
// conversation directory and keeps the in-memory store synchronized until
// terminated.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"gigline/chat-engine/internal/config"
	"gigline/chat-engine/internal/domain/retry"
	"gigline/chat-engine/internal/engine"
	"gigline/chat-engine/internal/infrastructure/logger"
	"gigline/chat-engine/internal/infrastructure/push"
	"gigline/chat-engine/internal/infrastructure/rest"
	"gigline/chat-engine/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.MaxDelay = cfg.RetryMaxDelay

	api := rest.New(cfg.APIBaseURL, cfg.AuthToken, cfg.HTTPTimeout, policy)
	channel := push.NewWebsocketChannel(cfg.PushURL, cfg.AuthToken)
	sessions := session.NewStore(cfg.FloatingSessionPath)

	eng := engine.New(api, channel, sessions, nil, engine.Options{
		LocalUserID:           cfg.LocalUserID,
		PageSize:              cfg.PageSize,
		TypingTTL:             cfg.TypingTTL,
		TypingDebounce:        cfg.TypingDebounce,
		BootstrapRetryDelay:   cfg.BootstrapRetryDelay,
		BootstrapMaxAttempts:  cfg.BootstrapMaxAttempts,
		UnreadRefreshInterval: cfg.UnreadRefreshInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start chat engine")
	}
	log.Info().
		Str("api", cfg.APIBaseURL).
		Str("push", cfg.PushURL).
		Int64("user_id", cfg.LocalUserID).
		Msg("chat engine running")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if err := eng.Teardown(); err != nil {
		log.Error().Err(err).Msg("teardown failed")
		os.Exit(1)
	}
}
