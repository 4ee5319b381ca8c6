package nats

import "time"

// RedeliveryAction is the terminal decision for one failed delivery attempt.
type RedeliveryAction int

const (
	// ActionRetry redelivers the message after a backoff delay.
	ActionRetry RedeliveryAction = iota
	// ActionDeadLetter copies the message to the consumer's DLQ subject and
	// terminates the original delivery.
	ActionDeadLetter
)

// RedeliveryPolicy is the consumer-side retry state machine: a failed handler
// gets bounded retries with exponential backoff, then the message is
// dead-lettered instead of poisoning the queue.
type RedeliveryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRedeliveryPolicy() RedeliveryPolicy {
	return RedeliveryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

func (p RedeliveryPolicy) normalize() RedeliveryPolicy {
	def := DefaultRedeliveryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// Decide maps the broker's delivery count (1-based, from stream metadata) to
// the next action. Attempt p.MaxAttempts is the last one that runs a handler;
// its failure dead-letters the message.
func (p RedeliveryPolicy) Decide(delivered uint64) (RedeliveryAction, time.Duration) {
	if delivered >= uint64(p.MaxAttempts) {
		return ActionDeadLetter, 0
	}

	delay := p.BaseDelay
	for i := uint64(1); i < delivered; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return ActionRetry, p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return ActionRetry, delay
}
