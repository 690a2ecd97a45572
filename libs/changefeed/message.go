package changefeed

import (
	"encoding/json"
	"fmt"
)

// Message is the frame pushed to realtime subscribers.
type Message struct {
	Table  string          `json:"table"`
	Scope  string          `json:"scope"`
	Change json.RawMessage `json:"change"`
}

// TableForTopic maps a Kafka topic to the table its events describe.
func TableForTopic(topic string) (string, bool) {
	switch topic {
	case TopicAppointments:
		return TableAppointments, true
	case TopicNotifications:
		return TableNotifications, true
	}
	return "", false
}

// Route decodes a raw change for table and returns the scopes it fans out to.
func Route(table string, raw []byte) ([]Scope, error) {
	switch table {
	case TableAppointments:
		c, err := DecodeAppointmentChange(raw)
		if err != nil {
			return nil, err
		}
		return c.Scopes(), nil
	case TableNotifications:
		c, err := DecodeNotificationChange(raw)
		if err != nil {
			return nil, err
		}
		return c.Scopes(), nil
	}
	return nil, fmt.Errorf("%w: unknown table %q", ErrInvalidChange, table)
}
