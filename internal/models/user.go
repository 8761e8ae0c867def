package models

import "time"

// User is a roster entry. Identity and credentials live with the auth service;
// this record only carries what the chat views render.
type User struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Username     string    `json:"username,omitempty"`
	ProfileImage string    `json:"profileImage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
