package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName      string             `bson:"full_name" json:"fullName" validate:"required"`
	Email         string             `bson:"email" json:"email" validate:"required,email"`
	Password      string             `bson:"password" json:"-"`
	ContactNumber string             `bson:"contact_number" json:"contactNumber" validate:"required,len=10,numeric"`
	Profession    string             `bson:"profession,omitempty" json:"profession,omitempty"`
	Location      GeoPoint           `bson:"location" json:"location"`
	Address       string             `bson:"address,omitempty" json:"address,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updatedAt"`
}

// UserRef is the read-only directory projection handed to the fan-out
// engine. It is a snapshot valid at query time; the directory owns the
// underlying document.
type UserRef struct {
	ID            primitive.ObjectID `bson:"_id" json:"id"`
	FullName      string             `bson:"full_name" json:"fullName"`
	ContactNumber string             `bson:"contact_number" json:"contactNumber"`
	Location      GeoPoint           `bson:"location" json:"location"`
}

// AuthUser is the shape returned to clients after login/registration.
type AuthUser struct {
	ID            string `json:"id"`
	FullName      string `json:"fullName"`
	Email         string `json:"email"`
	ContactNumber string `json:"contactNumber"`
}
