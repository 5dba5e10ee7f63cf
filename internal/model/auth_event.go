package model

import "time"

const (
	AuthEventRegister       = "register"
	AuthEventLogin          = "login"
	AuthEventLogout         = "logout"
	AuthEventRefresh        = "refresh"
	AuthEventPasswordChange = "password_change"
)

// AuthEvent is an audit record of a session-affecting action.
type AuthEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Kind      string    `gorm:"size:32;not null;index" json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
}
