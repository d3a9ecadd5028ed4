package domain

import (
	"time"
)

// GuestUsername tags orders placed before the user set a name.
const GuestUsername = "Guest"

// OrderRecord is a price-complete order derived from an assistant
// confirmation. Records are never mutated after creation.
type OrderRecord struct {
	Username     string    `json:"username"`
	MedicineName string    `json:"medicine_name"`
	Quantity     int       `json:"quantity"`
	UnitPrice    float64   `json:"unit_price"`
	TotalPrice   float64   `json:"total_price"`
	OrderedAt    time.Time `json:"ordered_at"`
}

// Profile is the locally persisted identity of the person using the client.
type Profile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Phone    string `json:"phone"`
}

// DisplayName returns the username, or GuestUsername when none is set.
func (p Profile) DisplayName() string {
	if p.Username == "" {
		return GuestUsername
	}
	return p.Username
}
