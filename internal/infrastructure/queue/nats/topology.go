package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/core/domain"
)

const (
	// StreamName is the primary stream; it captures every pipeline event
	// subject so routing happens on the subject suffix (the routing key).
	StreamName = "DOCFLOW"
	// DLQStreamName is the parallel dead-letter stream. Each consumer group g
	// dead-letters to its own subject under the DLQ prefix.
	DLQStreamName = "DOCFLOW_DLQ"

	eventSubjectPrefix = "docflow.event."
	dlqSubjectPrefix   = "docflow.dlq."
)

func subjectFor(key domain.RoutingKey) string {
	return eventSubjectPrefix + string(key)
}

func dlqSubjectFor(group string) string {
	return dlqSubjectPrefix + group
}

// ensureTopology declares both streams. Idempotent: an existing stream is
// updated in place so config changes roll out on restart.
func ensureTopology(js nats.JetStreamContext, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = 48 * time.Hour
	}

	streams := []*nats.StreamConfig{
		{
			Name:      StreamName,
			Subjects:  []string{eventSubjectPrefix + ">"},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			MaxAge:    maxAge,
		},
		{
			// Dead letters are kept longer: they require manual inspection.
			Name:      DLQStreamName,
			Subjects:  []string{dlqSubjectPrefix + ">"},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			MaxAge:    14 * 24 * time.Hour,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(cfg); err != nil {
			if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
				return fmt.Errorf("add stream %s: %w", cfg.Name, err)
			}
			if _, err := js.UpdateStream(cfg); err != nil {
				return fmt.Errorf("update stream %s: %w", cfg.Name, err)
			}
		}
	}
	return nil
}
