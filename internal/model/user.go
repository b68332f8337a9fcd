package model

// User is a minimal projection of the identity collaborator's record. Only
// the fields booking and reminders need are read here.
type User struct {
	Base
	Email  string `db:"email" json:"email"`
	Name   string `db:"name" json:"name"`
	Phone  string `db:"phone" json:"phone"`
	Role   string `db:"role" json:"role"`
	Status string `db:"status" json:"status"`
}

const (
	RoleClient   = "client"
	RoleEmployee = "employee"
	RoleManager  = "manager"

	UserStatusActive = "active"
)
