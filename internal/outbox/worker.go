package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"pulse-analytics/internal/platform/metrics"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// Producer is the subset of the Kafka client the worker needs.
type Producer interface {
	ProduceSync(ctx context.Context, records ...*kgo.Record) kgo.ProduceResults
}

// Worker polls the outbox and publishes entries to Kafka. Entries are marked
// published only after the broker acknowledges them, so delivery is
// at-least-once and consumers must tolerate duplicates.
type Worker struct {
	store    Store
	producer Producer
	topic    string
	breaker  *CircuitBreaker
	metrics  *metrics.Metrics
	logger   *slog.Logger

	batchSize    int
	pollInterval time.Duration
}

func NewWorker(store Store, producer Producer, topic string, m *metrics.Metrics, logger *slog.Logger) *Worker {
	return &Worker{
		store:        store,
		producer:     producer,
		topic:        topic,
		breaker:      NewCircuitBreaker(5, 30*time.Second),
		metrics:      m,
		logger:       logger,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
}

// Run polls until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !w.breaker.Allow() {
				continue
			}
			if err := w.publishBatch(ctx); err != nil {
				w.breaker.RecordFailure()
				if w.metrics != nil {
					w.metrics.OutboxFailures.Inc()
				}
				w.logger.ErrorContext(ctx, "outbox publish batch failed", "error", err.Error())
			}
		}
	}
}

func (w *Worker) publishBatch(ctx context.Context) error {
	entries, err := w.store.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		w.breaker.RecordSuccess()
		return nil
	}

	records := make([]*kgo.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, &kgo.Record{
			Topic: w.topic,
			// Key by aggregate so one user's events stay ordered per partition.
			Key:   []byte(e.AggregateID),
			Value: e.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "event_type", Value: []byte(e.EventType)},
			},
		})
	}

	if err := w.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if err := w.store.MarkPublished(ctx, ids); err != nil {
		// The records reached the broker; failing to stamp them means a later
		// poll republishes, which at-least-once consumers absorb.
		return err
	}

	w.breaker.RecordSuccess()
	if w.metrics != nil {
		w.metrics.OutboxPublished.Add(float64(len(entries)))
	}
	return nil
}
