package models

import (
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/database"
	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchStatusAuto     MatchStatus = "auto"
	MatchStatusManual   MatchStatus = "manual"
	MatchStatusRejected MatchStatus = "rejected"
)

type MatchMethod string

const (
	MatchMethodExact  MatchMethod = "exact"
	MatchMethodAlias  MatchMethod = "alias"
	MatchMethodFuzzy  MatchMethod = "fuzzy"
	MatchMethodManual MatchMethod = "manual"
	MatchMethodNone   MatchMethod = "none"
)

type LabelClassification string

const (
	LabelIngredient    LabelClassification = "ingredient"
	LabelNonIngredient LabelClassification = "non_ingredient"
)

func (c LabelClassification) Valid() bool {
	return c == LabelIngredient || c == LabelNonIngredient
}

// MaxSuggestions caps the suggestion list stored on a match record.
const MaxSuggestions = 5

type Suggestion struct {
	CatalogID     string  `json:"catalog_id"`
	CanonicalName string  `json:"canonical_name"`
	Score         float64 `json:"score"`
}

// MatchRecord is the resolution of one label of one product. There is at most one record per
// (ProductID, LabelNormalized).
type MatchRecord struct {
	ID              uuid.UUID                    `db:"id" json:"id"`
	ProductID       uuid.UUID                    `db:"product_id" json:"product_id"`
	Label           string                       `db:"label" json:"label"`
	LabelNormalized string                       `db:"label_normalized" json:"label_normalized"`
	Position        int                          `db:"position" json:"position"`
	CatalogID       *string                      `db:"catalog_id" json:"catalog_id"`
	Status          MatchStatus                  `db:"status" json:"status"`
	Method          MatchMethod                  `db:"method" json:"method"`
	Score           *float64                     `db:"score" json:"score"`
	Suggestions     database.JSONB[[]Suggestion] `db:"suggestions" json:"suggestions"`
	Classification  LabelClassification          `db:"classification" json:"classification"`
	CreatedAt       time.Time                    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                    `db:"updated_at" json:"updated_at"`
}

func (MatchRecord) TableName() string {
	return "match_records"
}

func (m MatchRecord) Matched() bool {
	return m.CatalogID != nil && *m.CatalogID != ""
}

// UnmatchedRecord is a review-queue row: an unresolved label joined with its product.
type UnmatchedRecord struct {
	MatchRecord
	Brand       string `db:"brand" json:"brand"`
	ProductName string `db:"product_name" json:"product_name"`
}

type UnmatchedFilter struct {
	Brand       string
	Ingredient  string
	ProductName string
	Page        int
	Limit       int
}
