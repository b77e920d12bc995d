package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an operator who signed in with a Google account of the allowed domain.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PictureURL string    `json:"picture_url,omitempty"`
	Domain     string    `json:"domain"`
	FirstLogin time.Time `json:"first_login"`
	LastLogin  time.Time `json:"last_login"`
	LoginCount int       `json:"login_count"`
	IsActive   bool      `json:"is_active"`
}

// UserPublic is User without bookkeeping fields for API responses.
type UserPublic struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	PictureURL string    `json:"picture_url,omitempty"`
	Domain     string    `json:"domain"`
	LastLogin  time.Time `json:"last_login"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		PictureURL: u.PictureURL,
		Domain:     u.Domain,
		LastLogin:  u.LastLogin,
	}
}
