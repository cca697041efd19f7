package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinScan/internal/domain/models"
	pkgkafka "FinScan/pkg/kafka"
)

type captureWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaEventPublisher_PublishLifecycle(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaEventPublisher(pkgkafka.NewProducerWithWriter(w, "none"), "finscan.lifecycle")

	ev := models.LifecycleEvent{
		Type:             models.EventBroken,
		RecommendationID: "r1",
		Symbol:           "AAA",
		Strategy:         models.HorizonSwing,
		From:             models.StatusActive,
		To:               models.StatusBroken,
		ReturnPct:        -6.5,
		At:               time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
	}
	ctx := context.WithValue(context.Background(), pkgkafka.CtxTraceID, "trace-1")
	require.NoError(t, pub.PublishLifecycle(ctx, ev))
	require.NoError(t, pub.PublishLifecycle(context.Background(), ev))

	require.Len(t, w.msgs, 2)
	m := w.msgs[0]
	assert.Equal(t, "finscan.lifecycle", m.Topic)
	assert.Equal(t, "AAA", string(m.Key))
	assert.Equal(t, "trace-1", header(m, "trace_id"))
	assert.Equal(t, "broken", header(m, "event_type"))

	var got models.LifecycleEvent
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, ev, got)

	assert.NotEmpty(t, header(w.msgs[1], "trace_id"), "a trace id is generated when none is in context")

	require.NoError(t, pub.Close())
	assert.True(t, w.closed)
}
