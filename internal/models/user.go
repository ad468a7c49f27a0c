package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is the identity directory entry used to describe channel members
// and to map Firebase UIDs onto numeric ids.
type User struct {
	ID          uint      `json:"id" gorm:"primaryKey" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Email       string    `json:"email" gorm:"uniqueIndex" bson:"email"`
	FirebaseUID *string   `json:"firebase_uid,omitempty" gorm:"uniqueIndex" bson:"firebase_uid,omitempty"` // Link to Firebase User UID
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updated_at"`
}

// UserCompact is the small identity descriptor handed out as channel metadata
type UserCompact struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// ToCompact converts a user into its compact descriptor
func (u *User) ToCompact() UserCompact {
	return UserCompact{ID: u.ID, Name: u.Name}
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
