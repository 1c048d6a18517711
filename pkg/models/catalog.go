package models

import (
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/database"
	"github.com/lib/pq"
)

type Classification string

const (
	ClassificationActive    Classification = "active"
	ClassificationExcipient Classification = "excipient"
	ClassificationUnknown   Classification = "unknown"
)

// ClassificationHits lists the function keywords that drove a catalog classification.
type ClassificationHits struct {
	Active    []string `json:"active"`
	Excipient []string `json:"excipient"`
}

// CatalogEntry is a canonical CosIng ingredient.
type CatalogEntry struct {
	ID                   string                             `db:"id" json:"id"`
	Seq                  int64                              `db:"seq" json:"-"`
	CanonicalName        string                             `db:"canonical_name" json:"canonical_name"`
	SearchKey            string                             `db:"search_key" json:"-"`
	CAS                  *string                            `db:"cas" json:"cas,omitempty"`
	EC                   *string                            `db:"ec" json:"ec,omitempty"`
	Functions            pq.StringArray                     `db:"functions" json:"functions"`
	Classification       Classification                     `db:"classification" json:"classification"`
	ClassificationHits   database.JSONB[ClassificationHits] `db:"classification_hits" json:"classification_hits"`
	ClassificationSource *string                            `db:"classification_source" json:"classification_source,omitempty"`
	ClassifiedAt         *time.Time                         `db:"classified_at" json:"classified_at,omitempty"`
	CreatedAt            time.Time                          `db:"created_at" json:"created_at"`
}

func (CatalogEntry) TableName() string {
	return "catalog_entries"
}

// CatalogName is the slice of a catalog entry the matcher needs.
type CatalogName struct {
	ID            string `db:"id" json:"id"`
	CanonicalName string `db:"canonical_name" json:"canonical_name"`
}
