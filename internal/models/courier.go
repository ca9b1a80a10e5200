package models

import "time"

// Courier is a courier company. Sedes and riders hang from it.
type Courier struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;not null;unique"`
	TaxID     string `gorm:"size:20"` // RUC
	Phone     string `gorm:"size:50"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Sedes []Sede
}

// Sede is a branch of a courier company.
type Sede struct {
	ID        uint `gorm:"primaryKey"`
	CourierID uint `gorm:"index;not null"`
	Courier   Courier
	Name      string `gorm:"size:100;not null"`
	Address   string `gorm:"size:255"`
	Phone     string `gorm:"size:50"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Users []User
}
