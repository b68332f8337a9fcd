package model

import (
	"github.com/google/uuid"
)

// Service is a bookable catalog entry. The catalog is owned by an external
// CRUD surface; this API only reads it.
type Service struct {
	Base
	CategoryID  uuid.UUID `db:"category_id" json:"category_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Duration    int       `db:"duration" json:"duration"` // in minutes
	Price       float64   `db:"price" json:"price"`
	Status      string    `db:"status" json:"status"`
}

type Category struct {
	Base
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Status      string `db:"status" json:"status"`
}

const (
	ServiceStatusActive  = "active"
	ServiceStatusDeleted = "deleted"
)
