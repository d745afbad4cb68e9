package model

import (
	"time"
)

// Profile is a marketplace user's public profile.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Listing is a classified listing. The messaging service only reads listings
// to label conversations; listing lifecycle is owned elsewhere.
type Listing struct {
	ID        string    `json:"id"`
	SellerID  string    `json:"seller_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
