package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/md-rashed-zaman/groombook/libs/changefeed"
)

// Event is a row-change envelope written to the outbox table in the same
// transaction as the row it describes. Topic is the Kafka topic it ships to.
type Event struct {
	AggregateType string
	AggregateID   string
	Topic         string
	Payload       []byte
}

func AppointmentEvent(change changefeed.AppointmentChange) (Event, error) {
	if err := change.Validate(); err != nil {
		return Event{}, err
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return Event{}, fmt.Errorf("marshal appointment change: %w", err)
	}
	return Event{
		AggregateType: changefeed.TableAppointments,
		AggregateID:   change.Subject().ID,
		Topic:         changefeed.TopicAppointments,
		Payload:       payload,
	}, nil
}

func NotificationEvent(change changefeed.NotificationChange) (Event, error) {
	if err := change.Validate(); err != nil {
		return Event{}, err
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return Event{}, fmt.Errorf("marshal notification change: %w", err)
	}
	return Event{
		AggregateType: changefeed.TableNotifications,
		AggregateID:   change.Subject().ID,
		Topic:         changefeed.TopicNotifications,
		Payload:       payload,
	}, nil
}
