package trigger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/trigger"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newFakePubSub(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	client, err := pubsub.NewClient(ctx, "payroll-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	topic, err := client.CreateTopic(ctx, "payroll-triggers")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "payroll-generator", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	return client, srv
}

// =============================================================================
// PUBLISHER / SOURCE
// =============================================================================

func TestPubSub_PublishAndReceive(t *testing.T) {
	// GIVEN: A publisher on a topic and a source on its subscription
	// WHEN: An event is emitted
	// THEN: The source forwards it to the sink with the config id intact

	client, srv := newFakePubSub(t)
	logger, _ := logtest.NewNullLogger()

	publisher := trigger.NewPubSubPublisher(client, "payroll-triggers", logger)
	defer publisher.Stop()
	require.NoError(t, publisher.Emit(context.Background(), trigger.Event{ConfigID: "cfg-1"}))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "cfg-1", msgs[0].Attributes[trigger.AttrConfigID])

	sink := &recorder{}
	source := trigger.NewPubSubSource(client, "payroll-generator", sink, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- source.Run(ctx) }()

	require.Eventually(t, func() bool { return len(sink.seen()) == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, "cfg-1", string(sink.seen()[0].ConfigID))
}

func TestPubSubSource_Deliver(t *testing.T) {
	client, _ := newFakePubSub(t)
	logger, _ := logtest.NewNullLogger()
	ctx := context.Background()

	t.Run("valid message is acked", func(t *testing.T) {
		sink := &recorder{}
		source := trigger.NewPubSubSource(client, "payroll-generator", sink, logger)

		assert.True(t, source.Deliver(ctx, "m1", []byte(`{"config_id":"cfg-1"}`)))
		assert.Len(t, sink.seen(), 1)
	})

	t.Run("malformed message is acked and dropped", func(t *testing.T) {
		sink := &recorder{}
		source := trigger.NewPubSubSource(client, "payroll-generator", sink, logger)

		assert.True(t, source.Deliver(ctx, "m2", []byte(`garbage`)))
		assert.Empty(t, sink.seen())
	})

	t.Run("sink failure is nacked", func(t *testing.T) {
		sink := &recorder{err: errors.New("queue full")}
		source := trigger.NewPubSubSource(client, "payroll-generator", sink, logger)

		assert.False(t, source.Deliver(ctx, "m3", []byte(`{"config_id":"cfg-1"}`)))
	})
}

func TestPubSubPublisher_RejectsEmptyEvent(t *testing.T) {
	client, srv := newFakePubSub(t)
	publisher := trigger.NewPubSubPublisher(client, "payroll-triggers", nil)
	defer publisher.Stop()

	err := publisher.Emit(context.Background(), trigger.Event{})
	assert.ErrorIs(t, err, trigger.ErrEmptyConfigID)
	assert.Empty(t, srv.Messages())
}
