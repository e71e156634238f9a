package chat

import "time"

// Session captures a transient anonymous conversation.
type Session struct {
	ID          string    `json:"id"`
	ProductMode bool      `json:"productMode"`
	CreatedAt   time.Time `json:"createdAt"`
}
