package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
	"github.com/md-rashed-zaman/groombook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type published struct {
	table  string
	scopes []string
}

type fakePublisher struct {
	mu   sync.Mutex
	got  []published
	done chan struct{}
}

func (f *fakePublisher) Publish(table string, scopes []changefeed.Scope, _ json.RawMessage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := published{table: table}
	for _, s := range scopes {
		p.scopes = append(p.scopes, s.String())
	}
	f.got = append(f.got, p)
	if f.done != nil {
		close(f.done)
		f.done = nil
	}
	return len(scopes)
}

const appointmentInsert = `{"op":"INSERT","record":{"id":"a1","business_id":"biz-1","customer_id":"cust-1","pet_id":"p","service_id":"s",
"appointment_date":"2025-03-08","start_time":"10:00","end_time":"11:30","original_date":"2025-03-08","original_time":"10:00",
"status":"pending","reschedule_count":0,"service_name":"Full Groom","duration":90,"total_amount":"65.00"}}`

func TestRelayRoutesAppointmentChange(t *testing.T) {
	pub := &fakePublisher{}
	h := Relay(pub, discard)

	err := h(context.Background(), kafka.Message{Topic: changefeed.TopicAppointments, Value: []byte(appointmentInsert)})
	require.NoError(t, err)
	require.Len(t, pub.got, 1)
	assert.Equal(t, "appointments", pub.got[0].table)
	assert.ElementsMatch(t, []string{"business:biz-1", "customer:cust-1"}, pub.got[0].scopes)

	// The table header wins over the topic name.
	err = h(context.Background(), kafka.Message{
		Topic:   "appointments.changes.replay",
		Value:   []byte(appointmentInsert),
		Headers: kafkax.EventMeta{EventID: "e2", Table: changefeed.TableAppointments}.Headers(),
	})
	require.NoError(t, err)
	require.Len(t, pub.got, 2)
	assert.Equal(t, "appointments", pub.got[1].table)
}

func TestRelayRejectsMalformedChanges(t *testing.T) {
	pub := &fakePublisher{}
	h := Relay(pub, discard)

	err := h(context.Background(), kafka.Message{Topic: changefeed.TopicNotifications, Value: []byte(`{"op":"UPDATE","record":{"id":"n1"}}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, changefeed.ErrInvalidChange)

	err = h(context.Background(), kafka.Message{Topic: "billing.v1", Value: []byte(`{}`)})
	require.Error(t, err)
	assert.Empty(t, pub.got)
}

type scriptedReader struct {
	msgs   []kafka.Message
	closed bool
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *scriptedReader) Close() error {
	r.closed = true
	return nil
}

func TestRunSkipsBadMessagesAndStopsOnCancel(t *testing.T) {
	done := make(chan struct{})
	pub := &fakePublisher{done: done}
	reader := &scriptedReader{msgs: []kafka.Message{
		{Topic: changefeed.TopicAppointments, Value: []byte(`not json`)},
		{Topic: changefeed.TopicAppointments, Value: []byte(appointmentInsert)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		NewWithReader(discard, reader, Relay(pub, discard)).Run(ctx)
		close(stopped)
	}()

	<-done
	cancel()
	<-stopped

	assert.True(t, reader.closed)
	require.Len(t, pub.got, 1)
	assert.Equal(t, "appointments", pub.got[0].table)
}

func TestHandlerErrorIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	failing := func(context.Context, kafka.Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("boom")
	}
	reader := &scriptedReader{msgs: []kafka.Message{{Topic: "t"}, {Topic: "t"}}}
	NewWithReader(discard, reader, failing).Run(ctx)
	assert.Equal(t, 2, calls)
}

type brokenReader struct {
	failed chan struct{}
	once   sync.Once
	closed bool
}

func (r *brokenReader) ReadMessage(context.Context) (kafka.Message, error) {
	r.once.Do(func() { close(r.failed) })
	return kafka.Message{}, errors.New("broker unreachable")
}

func (r *brokenReader) Close() error {
	r.closed = true
	return nil
}

func TestRunStopsPromptlyWhileBackingOffReadErrors(t *testing.T) {
	reader := &brokenReader{failed: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		NewWithReader(discard, reader, func(context.Context, kafka.Message) error { return nil }).Run(ctx)
		close(stopped)
	}()

	<-reader.failed
	start := time.Now()
	cancel()
	select {
	case <-stopped:
	case <-time.After(readRetryDelay / 2):
		t.Fatal("Run kept waiting after cancel")
	}
	assert.Less(t, time.Since(start), readRetryDelay)
	assert.True(t, reader.closed)
}
