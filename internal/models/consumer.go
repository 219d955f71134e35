package models

import "time"

// ConsumerStatus marks whether a tool consumer may exchange grades.
type ConsumerStatus string

const (
	ConsumerStatusActive   ConsumerStatus = "ACTIVE"
	ConsumerStatusInactive ConsumerStatus = "INACTIVE"
)

// Consumer is a registered learning platform instance with its OAuth credentials.
type Consumer struct {
	ID        string         `db:"id" json:"id"`
	Key       string         `db:"consumer_key" json:"key"`
	Secret    string         `db:"consumer_secret" json:"-"`
	Name      *string        `db:"name" json:"name,omitempty"`
	Status    ConsumerStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}
