package models

import "time"

// Role is the capability class of an account
type Role string

const (
	// RoleLibrarian curates the catalog and approves lending
	RoleLibrarian Role = "Librarian"
	// RoleGeneral searches, borrows, buys and reviews books
	RoleGeneral Role = "General"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleLibrarian || r == RoleGeneral
}

// User holds login credentials and profile information for one account
type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:40;not null" json:"username"`
	PasswordHash string    `gorm:"size:80;not null" json:"-"`
	FirstName    string    `gorm:"size:20;not null" json:"first_name"`
	LastName     string    `gorm:"size:20;not null;default:''" json:"last_name"`
	Role         Role      `gorm:"size:20;not null;index" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName overrides the table name for User
func (User) TableName() string {
	return "users"
}
