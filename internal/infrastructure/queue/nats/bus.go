package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
	"github.com/kirillkom/docflow/internal/observability/metrics"
)

const (
	headerMessageID   = "Docflow-Message-Id"
	headerDLQSubject  = "Docflow-Origin-Subject"
	headerDLQError    = "Docflow-Error"
	headerDLQAttempts = "Docflow-Attempts"
)

// Bus is the JetStream-backed message transport: durable routed delivery with
// per-consumer-group dead-letter subjects.
type Bus struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	executor *resilience.Executor
	policy   RedeliveryPolicy
	prefetch int
	ackWait  time.Duration
	stage    string
	metrics  *metrics.PipelineMetrics
}

type Options struct {
	// Stage labels this process in metrics ("api", "ocr", "summarize").
	Stage string

	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool

	// Prefetch bounds unacknowledged in-flight deliveries per consumer group.
	Prefetch int
	AckWait  time.Duration
	Policy   RedeliveryPolicy
	MaxAge   time.Duration

	ResilienceExecutor *resilience.Executor
	Metrics            *metrics.PipelineMetrics
}

func New(url string) (*Bus, error) {
	return NewWithOptions(url, Options{})
}

func NewWithOptions(url string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	prefetch := options.Prefetch
	if prefetch <= 0 {
		prefetch = 8
	}
	ackWait := options.AckWait
	if ackWait <= 0 {
		ackWait = 5 * time.Minute
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docflow"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := ensureTopology(js, options.MaxAge); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure topology: %w", err)
	}

	return &Bus{
		conn:     conn,
		js:       js,
		executor: options.ResilienceExecutor,
		policy:   options.Policy.normalize(),
		prefetch: prefetch,
		ackWait:  ackWait,
		stage:    options.Stage,
		metrics:  options.Metrics,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishDocumentCreated(ctx context.Context, event domain.DocumentCreated) error {
	return b.publish(ctx, domain.KeyDocumentCreated, event.MessageID, event)
}

func (b *Bus) PublishDocumentDeleted(ctx context.Context, event domain.DocumentDeleted) error {
	return b.publish(ctx, domain.KeyDocumentDeleted, event.MessageID, event)
}

func (b *Bus) PublishOcrResult(ctx context.Context, event domain.OcrResult) error {
	return b.publish(ctx, domain.KeyOcrResult, event.MessageID, event)
}

func (b *Bus) PublishSummaryResult(ctx context.Context, event domain.SummaryResult) error {
	return b.publish(ctx, domain.KeySummaryResult, event.MessageID, event)
}

// publish routes the event by key and waits for the broker acknowledgment.
// An unroutable or unacknowledged message is an error to the producer, never
// a silent drop.
func (b *Bus) publish(ctx context.Context, key domain.RoutingKey, messageID string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", key, err)
	}

	msg := nats.NewMsg(subjectFor(key))
	msg.Data = data
	msg.Header.Set(headerMessageID, messageID)
	msg.Header.Set(nats.MsgIdHdr, messageID)

	call := func(callCtx context.Context) error {
		if _, err := b.js.PublishMsg(msg, nats.Context(callCtx)); err != nil {
			return fmt.Errorf("jetstream publish %s: %w", msg.Subject, err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish."+string(key), call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Handler processes one decoded event payload.
type Handler func(ctx context.Context, data []byte) error

// Consume binds a durable queue-group consumer to one routing key and blocks
// until ctx is done. Delivery is at-least-once: handlers must be idempotent.
// A failing handler goes through the redelivery policy and ends up on the
// group's dead-letter subject once attempts are exhausted.
func (b *Bus) Consume(ctx context.Context, key domain.RoutingKey, group string, handler Handler) error {
	sub, err := b.js.QueueSubscribe(subjectFor(key), group, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		b.dispatch(ctx, group, msg, handler)
	},
		nats.Durable(group),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(b.ackWait),
		nats.MaxAckPending(b.prefetch),
		// One extra broker-side delivery beyond the policy bound so the
		// dead-letter copy itself can be retried if it races a crash.
		nats.MaxDeliver(b.policy.MaxAttempts+1),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s (%s): %w", subjectFor(key), group, err)
	}

	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription %s: %w", group, err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, group string, msg *nats.Msg, handler Handler) {
	delivered := uint64(1)
	if meta, err := msg.Metadata(); err == nil {
		delivered = meta.NumDelivered
		if b.metrics != nil {
			b.metrics.ObserveQueueLag(b.stage, group, time.Since(meta.Timestamp))
		}
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := handler(handlerCtx, msg.Data)
	if err == nil {
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("message_ack_failed", "subject", msg.Subject, "group", group, "error", ackErr)
		}
		return
	}

	action, delay := b.policy.Decide(delivered)
	switch action {
	case ActionRetry:
		slog.Warn("message_retry_scheduled",
			"subject", msg.Subject,
			"group", group,
			"attempt", delivered,
			"max_attempts", b.policy.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			slog.Error("message_nak_failed", "subject", msg.Subject, "group", group, "error", nakErr)
		}
	case ActionDeadLetter:
		b.deadLetter(group, msg, delivered, err)
	}
}

// deadLetter copies the poisoned message onto the group's DLQ subject, then
// terminates the original so the broker stops redelivering it.
func (b *Bus) deadLetter(group string, msg *nats.Msg, delivered uint64, cause error) {
	dlqMsg := nats.NewMsg(dlqSubjectFor(group))
	dlqMsg.Data = msg.Data
	for k, v := range msg.Header {
		dlqMsg.Header[k] = v
	}
	dlqMsg.Header.Set(headerDLQSubject, msg.Subject)
	dlqMsg.Header.Set(headerDLQError, cause.Error())
	dlqMsg.Header.Set(headerDLQAttempts, fmt.Sprintf("%d", delivered))
	// The original Nats-Msg-Id would dedup the DLQ copy against retries of
	// this same publish; the DLQ keeps every terminal failure.
	dlqMsg.Header.Del(nats.MsgIdHdr)

	if _, err := b.js.PublishMsg(dlqMsg); err != nil {
		slog.Error("dead_letter_publish_failed",
			"subject", msg.Subject,
			"group", group,
			"error", err,
		)
		// Leave the message unacked; the broker redelivers and the dead-letter
		// copy is attempted again.
		return
	}

	slog.Error("message_dead_lettered",
		"subject", msg.Subject,
		"dlq_subject", dlqMsg.Subject,
		"group", group,
		"attempts", delivered,
		"error", cause,
	)
	if b.metrics != nil {
		b.metrics.DeadLettered(group)
	}
	if termErr := msg.Term(); termErr != nil {
		slog.Error("message_term_failed", "subject", msg.Subject, "group", group, "error", termErr)
	}
}

// ConsumeJSON decodes messages into T before handing them to the handler.
// A payload that does not decode is dropped with a log line: it can never
// succeed and carries no identifiers to build a failure result from.
func ConsumeJSON[T any](
	ctx context.Context,
	bus *Bus,
	key domain.RoutingKey,
	group string,
	handler func(ctx context.Context, event T) error,
) error {
	return bus.Consume(ctx, key, group, func(handlerCtx context.Context, data []byte) error {
		var event T
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Error("malformed_payload_dropped",
				"routing_key", string(key),
				"group", group,
				"error", err,
			)
			return nil
		}
		return handler(handlerCtx, event)
	})
}
