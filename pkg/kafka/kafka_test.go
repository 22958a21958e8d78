package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/resilience"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	if len(f.queue) > 0 {
		msg := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) commits() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.committed...)
}

func runConsumer(t *testing.T, r *fakeReader, handler MessageHandler, wantCommits int) {
	t.Helper()
	c := newConsumer(r, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.retry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	require.Eventually(t, func() bool { return len(r.commits()) == wantCommits }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.True(t, r.closed)
}

func TestToMessage_SetsTypeHeader(t *testing.T) {
	msg, err := toMessage(Event{Key: "42", Type: "listing.created", Value: map[string]int{"id": 42}})
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), msg.Key)
	assert.JSONEq(t, `{"id":42}`, string(msg.Value))
	assert.Equal(t, "listing.created", headerValue(msg.Headers, "event-type"))
}

func TestToMessage_RejectsUnencodable(t *testing.T) {
	_, err := toMessage(Event{Value: make(chan int)})
	assert.Error(t, err)
}

func TestHeaderValue_Missing(t *testing.T) {
	assert.Equal(t, "", headerValue([]kafka.Header{{Key: "other", Value: []byte("x")}}, "event-type"))
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		ID int `json:"id"`
	}
	got, err := DecodeJSON[payload]([]byte(`{"id":7}`))
	require.NoError(t, err)
	assert.Equal(t, 7, got.ID)

	_, err = DecodeJSON[payload]([]byte(`{`))
	assert.Error(t, err)
}

func TestConsumer_DispatchesAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Value: []byte(`{}`), Headers: []kafka.Header{{Key: "event-type", Value: []byte("search")}}},
		{Offset: 2, Value: []byte(`{}`)},
	}}
	var types []string
	runConsumer(t, r, func(_ context.Context, msg Message) error {
		types = append(types, msg.Type)
		return nil
	}, 2)
	assert.Equal(t, []string{"search", ""}, types)
	assert.Equal(t, []int64{1, 2}, r.commits())
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 7}}}
	calls := 0
	runConsumer(t, r, func(context.Context, Message) error {
		calls++
		if calls < 3 {
			return errors.New("postgres busy")
		}
		return nil
	}, 1)
	assert.Equal(t, 3, calls)
}

func TestConsumer_SkipsPermanentFailures(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Offset: 3, Value: []byte(`{`)}, {Offset: 4, Value: []byte(`{"id":1}`)}}}
	calls := 0
	runConsumer(t, r, func(_ context.Context, msg Message) error {
		calls++
		_, err := DecodeJSON[map[string]int](msg.Value)
		return err
	}, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int64{3, 4}, r.commits())
}
