// Package events publishes assignment lifecycle events to subscribers outside the service.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeAssignmentFinished  = "assignment.finished"
	TypeSubmissionEvaluated = "submission.evaluated"
	TypeSubmissionPublished = "submission.published"
)

// Event describes one state transition.
type Event struct {
	Type         string    `json:"type"`
	AssignmentID int64     `json:"assignmentId"`
	SubmissionID string    `json:"submissionId,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	Status       string    `json:"status"`
	Score        *float64  `json:"score,omitempty"`
	Forced       bool      `json:"forced,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Notifier delivers lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Noop drops every event.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, Event) error { return nil }

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes events as JSON on <prefix>.<type>.
type NATSNotifier struct {
	conn   publisher
	close  func()
	prefix string
	logger *zap.Logger
}

// Connect dials NATS and returns a notifier bound to the connection.
func Connect(url, prefix string, logger *zap.Logger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("lti-assignments-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	notifier := NewNATSNotifier(conn, prefix, logger)
	notifier.close = func() {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	return notifier, nil
}

// NewNATSNotifier wraps an established publisher such as *nats.Conn.
func NewNATSNotifier(conn publisher, prefix string, logger *zap.Logger) *NATSNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = "assignments"
	}
	return &NATSNotifier{conn: conn, prefix: prefix, logger: logger}
}

// Notify implements Notifier.
func (n *NATSNotifier) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := n.prefix + "." + event.Type
	if err := n.conn.Publish(subject, payload); err != nil {
		n.logger.Warn("event publish failed", zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the underlying connection when the notifier owns one.
func (n *NATSNotifier) Close() {
	if n.close != nil {
		n.close()
	}
}
