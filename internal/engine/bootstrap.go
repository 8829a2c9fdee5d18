package engine

import (
	"context"
	"errors"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"gigline/chat-engine/internal/domain/chat"
	"gigline/chat-engine/internal/infrastructure/metrics"
	"gigline/chat-engine/internal/infrastructure/rest"
	"gigline/chat-engine/internal/wire"
)

// onConnected triggers the initial load once the session is both
// authenticated (assumed) and channel-connected.
func (e *Engine) onConnected() {
	e.mu.Lock()
	already := e.bootstrapped
	e.mu.Unlock()
	if already || e.closed.Load() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.setRetryCancel(cancel)
	go e.runBootstrap(ctx)
}

// onDisconnected cancels any pending bootstrap retry; a fresh attempt starts
// on the next connect.
func (e *Engine) onDisconnected() {
	e.cancelBootstrapRetry()
}

func (e *Engine) setRetryCancel(cancel context.CancelFunc) {
	e.retryCancelMu.Lock()
	if e.retryCancel != nil {
		e.retryCancel()
	}
	e.retryCancel = cancel
	e.retryCancelMu.Unlock()
}

func (e *Engine) cancelBootstrapRetry() {
	e.retryCancelMu.Lock()
	if e.retryCancel != nil {
		e.retryCancel()
		e.retryCancel = nil
	}
	e.retryCancelMu.Unlock()
}

// runBootstrap fetches the conversation list and the global unread count
// concurrently, retrying transient failures a bounded number of times with a
// fixed delay, and only while the directory is still empty. Each run carries
// a generation token; a superseded run's result is ignored at completion
// rather than cancelled, since the transport may not support cancellation.
func (e *Engine) runBootstrap(ctx context.Context) {
	gen := e.bootstrapGen.Add(1)

	attempt := func() error {
		e.mu.Lock()
		populated := e.directory.Len() > 0
		e.mu.Unlock()
		if populated || e.bootstrapGen.Load() != gen {
			return nil
		}

		metrics.BootstrapAttemptsTotal.Inc()

		var (
			list  []chat.Conversation
			count int
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			list, err = e.api.Conversations(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			count, err = e.api.UnreadCount(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			if !isTransient(err) {
				if errors.Is(err, rest.ErrUnauthorized) {
					e.notifier.SessionInvalid()
				}
				return backoff.Permanent(err)
			}
			log.Warn().Err(err).Msg("bootstrap attempt failed")
			return err
		}

		if e.bootstrapGen.Load() != gen {
			// A newer bootstrap superseded this one; drop the result.
			return nil
		}
		e.applyBootstrap(ctx, list, count)
		return nil
	}

	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(e.opts.BootstrapRetryDelay),
		uint64(e.opts.BootstrapMaxAttempts-1),
	)
	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		// Non-critical read path: leave the directory empty rather than
		// surfacing an error screen.
		log.Error().Err(err).Msg("bootstrap gave up, directory left empty")
	}
}

func (e *Engine) applyBootstrap(ctx context.Context, list []chat.Conversation, unreadCount int) {
	e.mu.Lock()
	e.directory.ReplaceAll(list)
	e.unread.SetGlobal(unreadCount)
	e.bootstrapped = true
	ids := e.directory.IDs()
	e.mu.Unlock()

	for _, id := range ids {
		e.emitIntent(ctx, wire.IntentConversationJoin, id)
	}

	e.restoreFloatingSession()
	e.notifier.UnreadChanged(unreadCount)
	e.notifySubscribers()
	log.Info().Int("conversations", len(ids)).Int("unread", unreadCount).Msg("bootstrap complete")
}

// isTransient classifies an error per the retry taxonomy: rate limiting and
// network-level failures are retryable, auth and other client errors are not.
func isTransient(err error) bool {
	if errors.Is(err, rest.ErrUnauthorized) {
		return false
	}
	var httpErr *rest.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	// Transport-level failure.
	return true
}
