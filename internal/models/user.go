// user.go

package models

import (
	"time"
)

// UserProfile 用户资料
type UserProfile struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"-"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
}
