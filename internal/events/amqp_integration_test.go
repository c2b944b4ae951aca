package events_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/localnerve/librarydb/internal/devstack"
	"github.com/localnerve/librarydb/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"go.uber.org/zap"
)

func TestAMQPPublisher(t *testing.T) {
	img := os.Getenv("RABBITMQ_IMAGE")
	if testing.Short() || img == "" {
		t.Skip("RABBITMQ_IMAGE not set, skipping broker integration test")
	}

	ctx := context.Background()
	broker, url, err := devstack.StartBroker(ctx, img, "", t.Logf)
	testcontainers.CleanupContainer(t, broker)
	require.NoError(t, err)

	publisher, err := events.NewAMQPPublisher(url, zap.NewNop())
	require.NoError(t, err)
	defer publisher.Close()
	assert.True(t, publisher.IsHealthy())

	// Consumer bound to lending events only
	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "lending.#", "library.events", false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(ctx, events.CatalogBookCreated, map[string]interface{}{"book_id": 1}))
	require.NoError(t, publisher.Publish(ctx, events.LendingIssued, map[string]interface{}{"book_id": 1, "user_id": 2}))

	select {
	case d := <-deliveries:
		assert.Equal(t, events.LendingIssued, d.RoutingKey)
		assert.Equal(t, "application/json", d.ContentType)
		var ev events.Event
		require.NoError(t, json.Unmarshal(d.Body, &ev))
		assert.Equal(t, d.MessageId, ev.EventID)
		assert.EqualValues(t, 2, ev.Payload["user_id"])
	case <-time.After(10 * time.Second):
		t.Fatal("No lending event delivered")
	}

	require.NoError(t, publisher.Close())
	assert.False(t, publisher.IsHealthy())
}
