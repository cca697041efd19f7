package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type countingHandler struct {
	topic string
	fail  error
	calls int
	trace string
}

func (h *countingHandler) Topic() string { return h.topic }
func (h *countingHandler) Handle(ctx context.Context, _ []byte) error {
	h.calls++
	h.trace = TraceID(ctx)
	return h.fail
}

func newTestConsumer(t *testing.T, h MessageHandler, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(1, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(nil, opts...)
	require.NoError(t, err)
	c.RegisterHandler(h)
	return c
}

func TestProducer_PublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip")

	type event struct {
		Symbol string `json:"symbol"`
	}
	require.NoError(t, p.Publish(context.Background(), "events", []byte("AAA"), event{Symbol: "AAA"}))
	require.NoError(t, p.Publish(context.Background(), "events", nil, "raw"))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "events", w.msgs[0].Topic)
	assert.Equal(t, []byte("AAA"), w.msgs[0].Key)
	assert.JSONEq(t, `{"symbol":"AAA"}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))

	w.err = errors.New("broker down")
	assert.ErrorIs(t, p.Publish(context.Background(), "events", nil, "x"), w.err)

	err := p.Publish(context.Background(), "events", nil, func() {})
	assert.Error(t, err)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
	_, err = NewConsumer(nil)
	assert.Error(t, err)
}

func TestConsumer_DispatchSuccess(t *testing.T) {
	h := &countingHandler{topic: "bars"}
	c := newTestConsumer(t, h)
	c.WithConsumerHook(TraceHook())

	ok := c.dispatch(kafka.Message{Topic: "bars", Value: []byte(`{}`), Headers: []kafka.Header{{Key: "trace_id", Value: []byte("t-1")}}})
	assert.True(t, ok)
	assert.Equal(t, 1, h.calls)
	assert.Equal(t, "t-1", h.trace)
}

func TestConsumer_DispatchRetriesThenDeadLetters(t *testing.T) {
	h := &countingHandler{topic: "bars", fail: errors.New("clickhouse down")}
	c := newTestConsumer(t, h)

	assert.False(t, c.dispatch(kafka.Message{Topic: "bars", Value: []byte(`{}`)}))
	assert.Equal(t, 2, h.calls)

	dlq := &fakeWriter{}
	c.cfg.DLQTopic = "bars.dlq"
	c.dlq = dlq
	assert.True(t, c.dispatch(kafka.Message{Topic: "bars", Key: []byte("AAA"), Value: []byte(`{}`)}))
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "bars.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, "source_topic", dlq.msgs[0].Headers[0].Key)
	assert.Equal(t, "bars", string(dlq.msgs[0].Headers[0].Value))
}

func TestConsumer_DispatchRecoversPanic(t *testing.T) {
	c := newTestConsumer(t, panicHandler{})
	assert.False(t, c.dispatch(kafka.Message{Topic: "boom", Value: []byte("x")}))
	assert.False(t, c.dispatch(kafka.Message{Topic: "unknown"}))
}

type panicHandler struct{}

func (panicHandler) Topic() string { return "boom" }
func (panicHandler) Handle(context.Context, []byte) error { panic("bad payload") }

func TestHookChain(t *testing.T) {
	var order []string
	var errs int
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
				order = append(order, "before:"+name)
				return ctx, km, append(data, name...), nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) {
				order = append(order, "after:"+name)
			},
			Err: func(context.Context, string, kafka.Message, []byte, error) { errs++ },
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))

	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(">"))
	require.NoError(t, err)
	assert.Equal(t, ">ab", string(data))
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, data, nil)
	assert.Equal(t, []string{"before:a", "before:b", "after:b", "after:a"}, order)

	boom := HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
		panic("hook bug")
	}}
	chain = NewHookChain(mk("a"), boom, EmptyPayloadHook())
	_, _, _, err = chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	var herr *HookError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "ERR_PANIC", herr.Code)
	assert.Equal(t, 1, errs)

	_, _, _, err = NewHookChain(EmptyPayloadHook()).BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, "ERR_EMPTY", herr.Code)
}

func TestBackoffWithJitter(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}
