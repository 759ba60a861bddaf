package workers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
	"github.com/Guyuepp/pretty-like/internal/metrics"
)

// receiveRetryDelay is the pause after a failed receive.
const receiveRetryDelay = time.Second

// StreamWorker merges batches of like events into the database.
type StreamWorker struct {
	consumer domain.EventConsumer
	db       domain.LikeDBRepository
}

func NewStreamWorker(consumer domain.EventConsumer, db domain.LikeDBRepository) *StreamWorker {
	return &StreamWorker{consumer: consumer, db: db}
}

// Start blocks until ctx is done.
func (w *StreamWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logrus.Info("shutting down stream worker")
			return
		default:
		}

		msgs, err := w.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logrus.Errorf("failed to receive like events: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(receiveRetryDelay):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		w.process(ctx, msgs)
	}
}

// process applies one batch. Undecodable messages are dead-lettered at once.
// When the merged batch fails, each pair is retried alone so one bad pair
// only delays its own messages.
func (w *StreamWorker) process(ctx context.Context, msgs []domain.Message) {
	var poison, valid []domain.Message
	for _, m := range msgs {
		if m.Event == nil {
			poison = append(poison, m)
		} else {
			valid = append(valid, m)
		}
	}
	if len(poison) > 0 {
		for _, m := range poison {
			logrus.Warnf("%v: dead-lettering undecodable event %s", domain.ErrPoisonMessage, m.ID)
		}
		if err := w.consumer.DeadLetter(ctx, poison...); err != nil {
			logrus.Errorf("failed to dead-letter %d events: %v", len(poison), err)
		} else {
			metrics.DeadLettered.Add(float64(len(poison)))
		}
	}
	if len(valid) == 0 {
		return
	}

	groups := groupEvents(valid)
	changes := groupChanges(groups)
	if changes.Empty() {
		w.ack(ctx, valid)
		return
	}

	start := time.Now()
	delta, err := w.db.ApplyLikeChanges(ctx, changes)
	if err == nil {
		metrics.MergedBatches.WithLabelValues("applied").Inc()
		logrus.Infof("merged %d events into %d items in %v", len(valid), len(delta), time.Since(start))
		w.ack(ctx, valid)
		return
	}
	metrics.MergedBatches.WithLabelValues("failed").Inc()
	logrus.Errorf("failed to merge batch of %d events, retrying per pair: %v", len(valid), err)

	for _, g := range groups {
		single := groupChanges([]eventGroup{g})
		if !single.Empty() {
			if _, err := w.db.ApplyLikeChanges(ctx, single); err != nil {
				logrus.Errorf("failed to apply user %d item %d: %v", g.key.userID, g.key.itemID, err)
				if nerr := w.consumer.Nack(ctx, g.msgs...); nerr != nil {
					logrus.Errorf("failed to nack %d events: %v", len(g.msgs), nerr)
				}
				continue
			}
		}
		w.ack(ctx, g.msgs)
	}
}

func (w *StreamWorker) ack(ctx context.Context, msgs []domain.Message) {
	if err := w.consumer.Ack(ctx, msgs...); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Errorf("failed to ack %d events: %v", len(msgs), err)
	}
}
