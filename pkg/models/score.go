package models

import (
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/database"
	"github.com/google/uuid"
)

type Verdict string

const (
	VerdictPass    Verdict = "pass"
	VerdictPartial Verdict = "partial"
	VerdictUnknown Verdict = "unknown"
)

type Bucket string

const (
	BucketTop    Bucket = "top"
	BucketMiddle Bucket = "middle"
	BucketBottom Bucket = "bottom"
	BucketFirst  Bucket = "first"
	BucketSecond Bucket = "second"
)

type ActiveDetected struct {
	IngredientID string  `json:"ingredient_id"`
	Name         string  `json:"name"`
	Index        int     `json:"index"`
	Bucket       Bucket  `json:"bucket"`
	Awarded      float64 `json:"awarded"`
}

type ObservedInputs struct {
	ActivesDetected     []ActiveDetected  `json:"actives_detected"`
	ExceptionsApplied   []string          `json:"exceptions_applied"`
	XPoints             float64           `json:"x_points"`
	ListLength          int               `json:"list_length"`
	DatasetVersionsUsed map[string]string `json:"dataset_versions_used"`
}

// ScoreResult is the outcome of one rule evaluation.
type ScoreResult struct {
	RuleID         string         `json:"rule_id"`
	Version        string         `json:"version"`
	Direction      string         `json:"direction"`
	MaxPoints      float64        `json:"max_points"`
	PointsAwarded  float64        `json:"points_awarded"`
	Verdict        Verdict        `json:"verdict"`
	Confidence     string         `json:"confidence"`
	Explanation    string         `json:"explanation"`
	ObservedInputs ObservedInputs `json:"observed_inputs"`
}

// RuleSlot is the persisted form of a rule result inside product_scores.rules.
type RuleSlot struct {
	RuleIndex      int            `json:"rule_index"`
	RuleID         string         `json:"rule_id"`
	RuleVersion    string         `json:"rule_version"`
	RelatedINCI    []string       `json:"related_inci"`
	RuleScore      float64        `json:"rule_score"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ObservedInputs ObservedInputs `json:"observed_inputs"`
}

type ProductScore struct {
	ProductID  uuid.UUID                  `db:"product_id" json:"product_id"`
	Rules      database.JSONB[[]RuleSlot] `db:"rules" json:"rules"`
	TotalScore float64                    `db:"total_score" json:"total_score"`
	CreatedAt  time.Time                  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time                  `db:"updated_at" json:"updated_at"`
}

func (ProductScore) TableName() string {
	return "product_scores"
}
