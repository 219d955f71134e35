package models

import "github.com/golang-jwt/jwt/v5"

// Role is the launch role of the caller within a course.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleLearner    Role = "learner"
)

// Session is the validated launch context handed to every lifecycle operation.
type Session struct {
	ConsumerID       string  `json:"consumer_id"`
	CourseID         string  `json:"course_id"`
	UserID           string  `json:"user_id"`
	Role             Role    `json:"role"`
	ExtensionMinutes float64 `json:"extension_minutes,omitempty"`
	ReturnID         string  `json:"return_id,omitempty"`
}

// IsInstructor reports whether the caller launched as an instructor.
func (s Session) IsInstructor() bool {
	return s.Role == RoleInstructor
}

// SessionClaims represents the session token payload.
type SessionClaims struct {
	Session
	jwt.RegisteredClaims
}
