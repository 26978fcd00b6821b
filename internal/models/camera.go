package models

import "time"

// Camera is an entry in the camera registry. Producers must reference a
// known, active camera; the normalizer rejects everything else.
type Camera struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Location  string    `json:"location,omitempty" db:"location"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
