// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
// The context carries request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Governance event subjects.
const (
	SubjectGovernorDecision  = "governor.decision"
	SubjectRunStarted        = "runs.started"
	SubjectRunCompleted      = "runs.completed"
	SubjectRunFailed         = "runs.failed"
	SubjectApprovalRequested = "approvals.requested"
	SubjectApprovalResolved  = "approvals.resolved"
	SubjectApprovalResolve   = "approvals.resolve" // inbound reviewer decisions
	SubjectBreakerTransition = "breakers.transition"
	SubjectIdentityViolation = "identities.violation"
)

// Subjects lists every subject carried by the governance stream.
var Subjects = []string{
	SubjectGovernorDecision,
	SubjectRunStarted,
	SubjectRunCompleted,
	SubjectRunFailed,
	SubjectApprovalRequested,
	SubjectApprovalResolved,
	SubjectApprovalResolve,
	SubjectBreakerTransition,
	SubjectIdentityViolation,
}
