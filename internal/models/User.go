package models

import "gorm.io/gorm"

type User struct {
	gorm.Model
	Name     string `json:"name"`
	Email    string `json:"email" gorm:"unique"`
	Password string `json:"-"`
	Role     string `json:"role"` // "runner", "coach", "admin"

	// Preferred display unit: "km" or "mi"
	DistanceUnit string `json:"distance_unit" gorm:"default:km"`

	Activities []Activity `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"activities,omitempty"`
}
