package users

import "time"

// User is an account the engine makes decisions about. This service does
// not own user lifecycle; the directory exists so admin tooling can target
// assignments and audit rows can carry identity metadata.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
