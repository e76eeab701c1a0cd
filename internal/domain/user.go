package domain

import "time"

// User is a music-service account that has logged in through the gateway.
type User struct {
	SubjectID   string
	DisplayName string
	Email       string
	LastLoginAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
