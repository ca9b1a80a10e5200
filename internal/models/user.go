package models

import "time"

type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleCourier   UserRole = "courier"   // courier company staff
	RoleEcommerce UserRole = "ecommerce" // ecommerce client attached to a sede
	RoleRider     UserRole = "rider"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleCourier, RoleEcommerce, RoleRider:
		return true
	}
	return false
}

type User struct {
	ID           uint `gorm:"primaryKey"`
	CourierID    *uint
	Courier      *Courier
	SedeID       *uint
	Sede         *Sede
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
