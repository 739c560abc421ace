package processor

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/metrics"
	"github.com/trussle/expense/pkg/models"
	"github.com/trussle/expense/pkg/store"
)

// Clock returns the current time.
type Clock func() time.Time

// Handler turns a storage location into a persisted receipt record.
type Handler struct {
	store     store.Store
	clock     Clock
	processed metrics.Counter
	failed    metrics.Counter
	logger    log.Logger
}

// New creates a Handler writing to the store.
func New(
	store store.Store,
	processed, failed metrics.Counter,
	logger log.Logger,
) *Handler {
	return &Handler{
		store:     store,
		clock:     time.Now,
		processed: processed,
		failed:    failed,
		logger:    logger,
	}
}

// WithClock replaces the clock used to stamp records.
func (h *Handler) WithClock(clock Clock) *Handler {
	h.clock = clock
	return h
}

// Handle builds the record for the input and writes it unconditionally.
// Nothing is validated; absent fields become "unknown". A store failure is
// the only error; it is wrapped with "persist record" and never retried.
func (h *Handler) Handle(ctx context.Context, input models.Input) (models.Response, error) {
	record := models.NewRecord(input, h.clock())

	level.Debug(h.logger).Log("state", "processing", "bucket", record.Bucket, "key", record.ObjectKey)

	if err := h.store.Put(ctx, record); err != nil {
		h.failed.Inc()
		level.Error(h.logger).Log("state", "persist", "pk", record.PK, "err", err)
		return models.Response{}, errors.Wrap(err, "persist record")
	}
	h.processed.Inc()

	level.Info(h.logger).Log("state", "processed", "pk", record.PK)

	return models.NewResponse(record)
}
