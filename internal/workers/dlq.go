package workers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/pretty-like/domain"
)

// DeadLetterListener logs every dead-lettered event for manual handling.
type DeadLetterListener struct {
	consumer domain.EventConsumer
}

func NewDeadLetterListener(consumer domain.EventConsumer) *DeadLetterListener {
	return &DeadLetterListener{consumer: consumer}
}

func (l *DeadLetterListener) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logrus.Info("shutting down dead letter listener")
			return
		default:
		}

		msgs, err := l.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logrus.Errorf("failed to receive dead letters: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(receiveRetryDelay):
			}
			continue
		}
		l.handle(ctx, msgs)
	}
}

func (l *DeadLetterListener) handle(ctx context.Context, msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	for _, m := range msgs {
		fields := logrus.Fields{"id": m.ID, "payload": m.Payload}
		if m.Event != nil {
			fields["user_id"] = m.Event.UserID
			fields["item_id"] = m.Event.ItemID
			fields["action"] = m.Event.Action.String()
		}
		logrus.WithFields(fields).Warn("dead-lettered like event needs manual handling")
	}
	if err := l.consumer.Ack(ctx, msgs...); err != nil {
		logrus.Errorf("failed to ack %d dead letters: %v", len(msgs), err)
	}
}
