package kafkax

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Header keys carried on every change-feed message.
const (
	HeaderEventID    = "event_id"
	HeaderTable      = "table"
	HeaderOccurredAt = "occurred_at"
)

// EventMeta describes a change-feed message independently of its payload.
type EventMeta struct {
	EventID    string
	Table      string
	OccurredAt time.Time
}

func (m EventMeta) Headers() []kafka.Header {
	h := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(m.EventID)},
		{Key: HeaderTable, Value: []byte(m.Table)},
	}
	if !m.OccurredAt.IsZero() {
		h = append(h, kafka.Header{Key: HeaderOccurredAt, Value: []byte(m.OccurredAt.UTC().Format(time.RFC3339Nano))})
	}
	return h
}

// MetaFrom reads the metadata headers of msg. A message without an event id
// is identified by its log position instead.
func MetaFrom(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID: header(msg.Headers, HeaderEventID),
		Table:   header(msg.Headers, HeaderTable),
	}
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if ts, err := time.Parse(time.RFC3339Nano, header(msg.Headers, HeaderOccurredAt)); err == nil {
		meta.OccurredAt = ts
	}
	return meta
}

func header(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
