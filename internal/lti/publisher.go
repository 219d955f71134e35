// Package lti pushes grades back to the learning platform that launched an assignment.
package lti

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lti-assignments-api/internal/models"
)

// Outcome is one grade passback.
type Outcome struct {
	Consumer   models.Consumer
	Score      float64
	Maximum    float64
	ReturnID   string
	OutcomeURL string
}

// Publisher delivers an outcome to the platform. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, outcome Outcome) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, outcome Outcome) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}

// StatusError is returned when the platform answers with a non-2xx status.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: platform responded %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

func checkStatus(op string, res *http.Response) error {
	if res.StatusCode/100 != 2 {
		return &StatusError{Op: op, Status: res.StatusCode}
	}
	return nil
}

func defaultClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func nopLogger(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
