package trigger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

// AttrConfigID duplicates the config id as a message attribute so
// subscriptions can filter without decoding the body.
const AttrConfigID = "config_id"

// =============================================================================
// PUBLISHER
// =============================================================================

// PubSubPublisher emits events to a Cloud Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	logger  logrus.FieldLogger
	timeout time.Duration
}

func NewPubSubPublisher(client *pubsub.Client, topicID string, logger logrus.FieldLogger) *PubSubPublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PubSubPublisher{
		topic:   client.Topic(topicID),
		logger:  logger,
		timeout: 10 * time.Second,
	}
}

// Emit publishes ev and waits for the server ack, so a lost event surfaces
// as an error to the emitting request rather than vanishing.
func (p *PubSubPublisher) Emit(ctx context.Context, ev Event) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{AttrConfigID: string(ev.ConfigID)},
	})
	id, err := res.Get(ctx)
	if err != nil {
		p.logger.WithField("config_id", ev.ConfigID).WithError(err).Error("failed to publish trigger event")
		return fmt.Errorf("publish trigger for config %q: %w", ev.ConfigID, err)
	}
	p.logger.WithFields(logrus.Fields{"config_id": ev.ConfigID, "message_id": id}).Debug("trigger event published")
	return nil
}

// Stop flushes pending publishes.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}

// =============================================================================
// SOURCE
// =============================================================================

// PubSubSource forwards subscription messages into a local Emitter (the Bus).
type PubSubSource struct {
	sub    *pubsub.Subscription
	sink   Emitter
	logger logrus.FieldLogger
}

func NewPubSubSource(client *pubsub.Client, subscriptionID string, sink Emitter, logger logrus.FieldLogger) *PubSubSource {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	sub := client.Subscription(subscriptionID)
	sub.ReceiveSettings.MaxOutstandingMessages = DefaultBufferSize
	return &PubSubSource{sub: sub, sink: sink, logger: logger}
}

// Run blocks receiving messages until ctx is canceled.
func (s *PubSubSource) Run(ctx context.Context) error {
	s.logger.WithField("subscription", s.sub.ID()).Info("pubsub trigger source started")
	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.Deliver(ctx, msg.ID, msg.Data) {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("receive trigger events: %w", err)
	}
	return nil
}

// Deliver decodes one message body and hands it to the sink. It reports
// whether the message should be acked. Undecodable messages are acked so
// they are not redelivered forever.
func (s *PubSubSource) Deliver(ctx context.Context, messageID string, data []byte) bool {
	log := s.logger.WithField("message_id", messageID)

	ev, err := Decode(data)
	if err != nil {
		log.WithError(err).Error("dropping malformed trigger message")
		return true
	}
	if err := s.sink.Emit(ctx, ev); err != nil {
		log.WithField("config_id", ev.ConfigID).WithError(err).Warn("could not enqueue trigger; requesting redelivery")
		return false
	}
	return true
}

var _ Emitter = (*PubSubPublisher)(nil)
