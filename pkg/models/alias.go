package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultAliasConfidence is the score an alias match carries when the alias has no confidence set.
const DefaultAliasConfidence = 0.99

// Alias maps a curated label spelling onto a catalog entry.
type Alias struct {
	ID              uuid.UUID `db:"id" json:"id"`
	AliasText       string    `db:"alias_text" json:"alias"`
	AliasNormalized string    `db:"alias_normalized" json:"alias_normalized"`
	CatalogID       string    `db:"catalog_id" json:"catalog_id"`
	Confidence      *float64  `db:"confidence" json:"confidence,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

func (Alias) TableName() string {
	return "aliases"
}

func (a Alias) Score() float64 {
	if a.Confidence == nil {
		return DefaultAliasConfidence
	}
	return *a.Confidence
}
