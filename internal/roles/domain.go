package roles

import "time"

// Role is a named bundle of permissions. Code is the stable identifier used
// in inheritance declarations; Level orders roles by authority. A nil
// TenantID marks a platform-wide role.
type Role struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Level       int32     `json:"level"`
	TenantID    *int64    `json:"tenant_id,omitempty"`
	Inherits    []string  `json:"inherits"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
