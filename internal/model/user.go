package model

import "time"

type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Username      string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email         string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	FullName      string    `gorm:"size:128;not null;index" json:"fullName"`
	AvatarURL     string    `gorm:"size:512;not null" json:"avatar"`
	CoverImageURL string    `gorm:"size:512" json:"coverImage"`
	PasswordHash  string    `gorm:"size:255;not null" json:"-"`
	RefreshToken  *string   `gorm:"size:1024" json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// PublicUserColumns are the columns safe to hand back to clients.
var PublicUserColumns = []string{
	"id", "username", "email", "full_name", "avatar_url", "cover_image_url", "created_at", "updated_at",
}
