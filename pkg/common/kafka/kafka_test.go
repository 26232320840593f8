package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/riskscore/pkg/common/models"
)

type recordingWriter struct {
	messages []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

type scriptedReader struct {
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

func TestPublishEventEnvelope(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, "risk-model-events")

	err := p.PublishEvent(context.Background(), models.EventTypeModelTrained, "training-service",
		map[string]interface{}{"model_version": "risk-v3-20260101000000"})
	require.NoError(t, err)
	require.Len(t, w.messages, 1)

	var event models.Event
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &event))
	assert.Equal(t, models.EventTypeModelTrained, event.Type)
	assert.Equal(t, "training-service", event.Source)
	assert.Equal(t, "risk-v3-20260101000000", event.Data["model_version"])
	assert.Equal(t, event.ID, string(w.messages[0].Key))
}

func TestConsumeRetriesThenSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good, _ := json.Marshal(NewEvent(models.EventTypeOutcome, "test", map[string]interface{}{"patient_id": "ok"}))
	failing, _ := json.Marshal(NewEvent(models.EventTypeOutcome, "test", map[string]interface{}{"patient_id": "retry"}))

	reader := &scriptedReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Offset: 1, Value: good},
			{Offset: 2, Value: []byte("not json")},
			{Offset: 3, Value: failing},
		},
	}

	var handled []string
	consumer := NewConsumerWithReader(reader).WithRetry(3, time.Millisecond)
	err := consumer.Consume(ctx, func(_ context.Context, e models.Event) error {
		id, _ := e.Data["patient_id"].(string)
		handled = append(handled, id)
		if id == "retry" {
			return errors.New("database unavailable")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"ok", "retry", "retry", "retry"}, handled)
	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
}

type flakyReader struct {
	failures int
	fetches  []time.Time
	cancel   context.CancelFunc
}

func (r *flakyReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.fetches = append(r.fetches, time.Now())
	if len(r.fetches) <= r.failures {
		return kafka.Message{}, errors.New("broker unavailable")
	}
	r.cancel()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *flakyReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func (r *flakyReader) Close() error { return nil }

func TestConsumeBacksOffOnFetchErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &flakyReader{failures: 3, cancel: cancel}
	c := NewConsumerWithReader(reader).WithRetry(3, 10*time.Millisecond)
	err := c.Consume(ctx, func(context.Context, models.Event) error {
		t.Fatal("handler must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, reader.fetches, 4)
	// 10ms, 20ms, then capped at 20ms.
	assert.GreaterOrEqual(t, reader.fetches[3].Sub(reader.fetches[0]), 50*time.Millisecond)
	assert.GreaterOrEqual(t, reader.fetches[2].Sub(reader.fetches[1]), 20*time.Millisecond)
}

func TestBackoffCapped(t *testing.T) {
	c := NewConsumerWithReader(&flakyReader{}).WithRetry(4, time.Second)
	assert.Equal(t, time.Second, c.backoff(1))
	assert.Equal(t, 2*time.Second, c.backoff(2))
	assert.Equal(t, 4*time.Second, c.backoff(3))
	assert.Equal(t, 4*time.Second, c.backoff(10))
}
