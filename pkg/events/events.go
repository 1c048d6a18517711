// Package events defines the domain events published to Kafka and consumed from it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeMatchResolved      = "match.resolved"
	TypeScoreEvaluated     = "score.evaluated"
	TypeAliasApplied       = "alias.applied"
	TypeIngredientsChanged = "product.ingredients.changed"
)

// Event is the envelope written as the message value.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

func New(eventType, key string, payload any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type MatchResolved struct {
	ProductID       string   `json:"product_id"`
	Label           string   `json:"label"`
	LabelNormalized string   `json:"label_normalized"`
	Method          string   `json:"method"`
	CatalogID       *string  `json:"catalog_id"`
	Score           *float64 `json:"score"`
}

type ScoreEvaluated struct {
	ProductID     string  `json:"product_id"`
	RuleID        string  `json:"rule_id"`
	Version       string  `json:"version"`
	PointsAwarded float64 `json:"points_awarded"`
	Verdict       string  `json:"verdict"`
	TotalScore    float64 `json:"total_score"`
}

type AliasApplied struct {
	AliasID         string `json:"alias_id"`
	AliasNormalized string `json:"alias_normalized"`
	CatalogID       string `json:"catalog_id"`
	Applied         int64  `json:"applied"`
}

// IngredientsChanged is consumed: a product's declared ingredients were replaced upstream. Either
// Ingredients or Text carries the new declaration.
type IngredientsChanged struct {
	ProductID   string   `json:"product_id"`
	Ingredients []string `json:"ingredients,omitempty"`
	Text        string   `json:"text,omitempty"`
}

// Publisher emits domain events. Publishing is best effort for callers: a failed publish is logged,
// the operation that produced it still succeeds.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NoopPublisher drops events; used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, events ...Event) error {
	return nil
}
