package kafkax

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck passes once any broker answers a metadata request for topics.
// With no brokers the check passes unless required is set; the outbox
// holds rows until a broker is configured.
func ReadyCheck(brokers []string, required bool, topics ...string) func(context.Context) error {
	return func(ctx context.Context) error {
		if len(brokers) == 0 {
			if required {
				return errors.New("kafka brokers not configured")
			}
			return nil
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		var errs []error
		for _, addr := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			_, err = conn.ReadPartitions(topics...)
			_ = conn.Close()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s metadata: %w", addr, err))
				continue
			}
			return nil
		}
		return errors.Join(errs...)
	}
}
