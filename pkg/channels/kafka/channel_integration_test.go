package kafka_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/dukex/courier/pkg/channels/kafka"
	"github.com/dukex/courier/pkg/eventbus"
	"github.com/dukex/courier/pkg/events"
	"github.com/dukex/courier/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func startBroker(t *testing.T) (context.Context, []string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Kafka integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("courier-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	admin, err := sarama.NewClusterAdmin(brokers, sarama.NewConfig())
	require.NoError(t, err)

	defer func() { _ = admin.Close() }()

	err = admin.CreateTopic(events.Topic, &sarama.TopicDetail{NumPartitions: 4, ReplicationFactor: 1}, false)
	require.NoError(t, err)

	return ctx, brokers
}

// Partitions are assigned to one member of a consumer group at a time, so a
// key that never changes partition is consumed by a single worker.
type received struct {
	key       string
	partition int32
	messageID string
}

func TestCreateChannel_SameKeySharesPartition(t *testing.T) {
	ctx, brokers := startBroker(t)

	publisher, subscriber, err := kafka.CreateChannel(watermill.NopLogger{}, brokers, "courier-test")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = publisher.Close()
		_ = subscriber.Close()
	})

	bus := eventbus.NewWatermillEventBus(publisher, subscriber, nil)

	keys := []string{"tenant-a", "tenant-b", "tenant-c", "tenant-d"}
	perKey := 5

	for i := range perKey {
		for _, key := range keys {
			request := events.NewDeliveryRequested("actions-webhook", models.Settings{}, models.Event{
				"messageId": key + "-" + strconv.Itoa(i),
			}, key)

			require.NoError(t, bus.Publish(ctx, key, request))
		}
	}

	messages, err := subscriber.Subscribe(ctx, events.Topic)
	require.NoError(t, err)

	var got []received

	for len(got) < len(keys)*perKey {
		select {
		case msg := <-messages:
			partition, ok := wmkafka.MessagePartitionFromCtx(msg.Context())
			require.True(t, ok)

			var request events.DeliveryRequested
			require.NoError(t, json.Unmarshal(msg.Payload, &request))

			got = append(got, received{
				key:       msg.Metadata.Get(events.EventMetadataKey),
				partition: partition,
				messageID: request.Event["messageId"].(string),
			})

			msg.Ack()
		case <-ctx.Done():
			require.FailNow(t, "timed out waiting for messages", "received %d", len(got))
		}
	}

	partitions := map[string]int32{}
	order := map[string][]string{}

	for _, r := range got {
		if partition, seen := partitions[r.key]; seen {
			assert.Equal(t, partition, r.partition, "key %s moved partitions", r.key)
		}

		partitions[r.key] = r.partition
		order[r.key] = append(order[r.key], r.messageID)
	}

	for _, key := range keys {
		want := make([]string, perKey)
		for i := range perKey {
			want[i] = key + "-" + strconv.Itoa(i)
		}

		assert.Equal(t, want, order[key], key)
	}
}
