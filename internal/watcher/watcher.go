// Package watcher runs the Timeout Watcher: it periodically force-refunds
// matches whose join window expired with no second player.
package watcher

import (
	"context"
	"time"

	"github.com/klingon-exchange/wagerd/internal/apperr"
	"github.com/klingon-exchange/wagerd/internal/store"
	"github.com/klingon-exchange/wagerd/pkg/logging"
)

// maxPerTick bounds per-iteration work so the watcher never stalls behind
// a slow sweep.
const maxPerTick = 25

var log = logging.Component("timeout-watcher")

// Worker periodically enqueues force_refund jobs for expired, unjoined
// matches.
type Worker struct {
	store        *store.Store
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Worker.
func New(st *store.Store, pollInterval time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{store: st, pollInterval: pollInterval, ctx: ctx, cancel: cancel}
}

// Start runs the worker loop in a background goroutine.
func (w *Worker) Start() {
	go w.run()
	log.Info("timeout watcher started", "poll_interval", w.pollInterval)
}

// Stop signals the loop to exit at its next tick.
func (w *Worker) Stop() {
	w.cancel()
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Worker) tick() {
	candidates, err := w.store.DueForJoinTimeout(w.ctx, maxPerTick)
	if err != nil {
		log.Warn("failed to query join-timeout candidates", "error", err)
		return
	}

	for _, m := range candidates {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		if err := w.store.EnqueueJoinTimeoutRefund(w.ctx, m.MatchID); err != nil {
			if apperr.KindOf(err) == apperr.Conflict {
				log.Debug("join-timeout enqueue conflict, will retry next tick", "match_id", m.MatchID, "error", err)
				continue
			}
			log.Warn("failed to enqueue join-timeout refund", "match_id", m.MatchID, "error", err)
			if setErr := w.store.SetMatchError(w.ctx, m.MatchID, err.Error()); setErr != nil {
				log.Warn("failed to record match error", "match_id", m.MatchID, "error", setErr)
			}
			continue
		}
		log.Info("enqueued join-timeout force_refund", "match_id", m.MatchID)
	}
}
