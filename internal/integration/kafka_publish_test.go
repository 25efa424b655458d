//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/climate-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

const testTopic = "country-year-aggregates"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka launches a single-node Kafka container and returns its broker
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestPublishRoundTrip verifies the Writer delivers aggregates to Kafka with
// the key and header contract intact.
func TestPublishRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
	}

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	records := []domain.AggregateRecord{
		{Country: "Malta", Year: 2020, TempC: 19.75, Fallback: true},
		{Country: "Chile", Year: 2020, TempC: 9.25},
		{Country: "Chile", Year: 2021, TempC: 9.5},
	}
	require.NoError(t, writer.Publish(ctx, records))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := map[string]domain.AggregateRecord{}
	headers := map[string]map[string]string{}
	for len(received) < len(records) {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from aggregates topic")

		var rec domain.AggregateRecord
		require.NoError(t, json.Unmarshal(msg.Value, &rec))
		received[string(msg.Key)] = rec

		hs := map[string]string{}
		for _, h := range msg.Headers {
			hs[h.Key] = string(h.Value)
		}
		headers[string(msg.Key)] = hs
	}

	require.Contains(t, received, "Malta|2020")
	assert.Equal(t, 19.75, received["Malta|2020"].TempC)
	assert.Equal(t, "true", headers["Malta|2020"]["fallback"])
	assert.Equal(t, "2020", headers["Malta|2020"]["year"])

	require.Contains(t, received, "Chile|2021")
	assert.Equal(t, 9.5, received["Chile|2021"].TempC)
	assert.Equal(t, "false", headers["Chile|2021"]["fallback"])
}

// TestPublishEmptyBatchIsNoop verifies no connection work happens for an
// empty batch.
func TestPublishEmptyBatchIsNoop(t *testing.T) {
	cfg := &config.Config{
		KafkaBrokers: []string{"localhost:1"},
		KafkaTopic:   testTopic,
	}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	assert.NoError(t, writer.Publish(context.Background(), nil))
}
