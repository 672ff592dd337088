package models

import (
	"time"

	"github.com/google/uuid"
)

// LegacyRole is the fixed role enum that predates the dynamic Role/Permission model.
type LegacyRole string

const (
	LegacyRoleEmployee LegacyRole = "EMPLOYEE"
	LegacyRoleManager  LegacyRole = "MANAGER"
	LegacyRoleAdmin    LegacyRole = "ADMIN"
	LegacyRoleHQAdmin  LegacyRole = "HQ_ADMIN"
)

func (r LegacyRole) Valid() bool {
	switch r {
	case LegacyRoleEmployee, LegacyRoleManager, LegacyRoleAdmin, LegacyRoleHQAdmin:
		return true
	}
	return false
}

// IsSuperuser reports whether the legacy role grants every permission.
// ADMIN and HQ_ADMIN are deliberately not distinguished here.
func (r LegacyRole) IsSuperuser() bool {
	return r == LegacyRoleAdmin || r == LegacyRoleHQAdmin
}

type User struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Email      string     `json:"email" db:"email"`
	AzureAdID  *string    `json:"azure_ad_id,omitempty" db:"azure_ad_id"`
	Name       string     `json:"name" db:"name"`
	LegacyRole LegacyRole `json:"role" db:"role"`
	RoleID     *uuid.UUID `json:"role_id,omitempty" db:"role_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
