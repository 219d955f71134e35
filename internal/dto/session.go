package dto

import (
	"time"

	"github.com/noah-isme/lti-assignments-api/internal/models"
)

// LaunchContext is the verified launch a session token is issued for.
type LaunchContext struct {
	ConsumerID       string  `json:"consumerId" validate:"required"`
	CourseID         string  `json:"courseId" validate:"required"`
	UserID           string  `json:"userId" validate:"required"`
	Roles            string  `json:"roles" validate:"required"`
	ExtensionMinutes float64 `json:"extensionMinutes" validate:"gte=0"`
	ReturnID         string  `json:"returnId"`
}

// SessionToken is a signed session.
type SessionToken struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	Role      models.Role `json:"role"`
}
