package auth

import "time"

// ServiceToken authenticates an internal caller. The secret is stored
// bcrypt-hashed; the plaintext is shown once at issue time in the form
// "<id>.<secret>".
type ServiceToken struct {
	ID         string
	Name       string
	SecretHash string
	UserID     int64
	CreatedAt  time.Time
	RevokedAt  *time.Time
}
