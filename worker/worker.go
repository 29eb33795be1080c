// Package worker drains the delivery queue and fans activities out to
// remote inboxes.
package worker

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fedinode/fedinode/delivery"
	"github.com/fedinode/fedinode/store"
)

var tracer = otel.Tracer("worker")

type Worker struct {
	store    *store.Store
	delivery *delivery.Service
	queue    *delivery.Queue
}

func NewWorker(store *store.Store, deliverySvc *delivery.Service, queue *delivery.Queue) *Worker {
	return &Worker{
		store:    store,
		delivery: deliverySvc,
		queue:    queue,
	}
}

// Run consumes jobs until ctx is cancelled. Each job is one activity and
// its target inboxes; per-inbox outcomes are aggregated and logged, never
// retried.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("delivery worker started")
	for {
		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("delivery worker stopped")
				return
			}
			slog.Error("dequeue failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *delivery.Job) {
	ctx, span := tracer.Start(ctx, "Worker.Process")
	defer span.End()

	actor, err := w.store.GetActorByID(ctx, job.ActorID)
	if err != nil || actor == nil {
		slog.Error("delivery job references unknown actor",
			slog.String("activity", job.ActivityID),
			slog.String("actor", job.ActorID))
		return
	}

	results := w.delivery.DeliverAll(ctx, job.Inboxes, job.Activity, *actor)
	analysis := delivery.Analyze(results)

	slog.Info("delivery batch finished",
		slog.String("activity", job.ActivityID),
		slog.Int("total", analysis.Total),
		slog.Int("successful", analysis.Successful),
		slog.Int("failed", analysis.Failed),
		slog.Float64("successRate", analysis.SuccessRate))

	for _, e := range analysis.Errors {
		slog.Warn("delivery failed", slog.String("detail", e))
	}
}
