package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Product struct {
	ID                  uuid.UUID      `db:"id" json:"id"`
	Brand               string         `db:"brand" json:"brand"`
	Name                string         `db:"name" json:"name"`
	Slug                string         `db:"slug" json:"slug"`
	Ingredients         pq.StringArray `db:"ingredients" json:"ingredients"`
	OriginalIngredients pq.StringArray `db:"original_ingredients" json:"original_ingredients,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
