package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// replayIdleTimeout bounds how long Replay waits for the next buffered
// message before concluding the stream has been fully drained. It only
// matters for backends (gochannel) that deliver a finite backlog and then
// go quiet; a broker-backed topic with ongoing writers would need a
// sequence-number watermark instead, which is out of scope here.
const replayIdleTimeout = 200 * time.Millisecond

// WatermillJournal is a Journal backed by a watermill publisher/subscriber
// pair, one topic per persistence id. Constructed with a
// "github.com/ThreeDotsLabs/watermill/pubsub/gochannel" GoChannel
// (Persistent: true) it behaves like a real replayable log without a
// broker; constructed with "github.com/ThreeDotsLabs/watermill-amqp/v3" it
// durably journals across process restarts.
type WatermillJournal struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

// NewWatermillJournal wraps pub/sub as a Journal. Both arguments are
// typically the same GoChannel or AMQP client, which implements both
// interfaces.
func NewWatermillJournal(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillJournal {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatermillJournal{publisher: pub, subscriber: sub, logger: logger}
}

func (j *WatermillJournal) Append(ctx context.Context, persistenceId string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("journal: marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := j.publisher.Publish(persistenceId, msg); err != nil {
		return fmt.Errorf("journal: publish to %s: %w", persistenceId, err)
	}
	return nil
}

func (j *WatermillJournal) Replay(ctx context.Context, persistenceId string, handle func(Event) error) error {
	messages, err := j.subscriber.Subscribe(ctx, persistenceId)
	if err != nil {
		return fmt.Errorf("journal: subscribe to %s: %w", persistenceId, err)
	}

	idle := time.NewTimer(replayIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			idle.Reset(replayIdleTimeout)

			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				j.logger.Error("JOURNAL_REPLAY_DECODE_FAILED", "persistence_id", persistenceId, "msg_id", msg.UUID, "err", err)
				msg.Ack()
				continue
			}

			if err := handle(ev); err != nil {
				msg.Nack()
				return err
			}
			msg.Ack()
		case <-idle.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
