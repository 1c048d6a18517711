package scoring

import (
	"context"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/matching"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/metrics"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/google/uuid"
)

// R01RuleIndex is the slot R01 owns in a product's rule list.
const R01RuleIndex = 1

type ProductReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type MatchLister interface {
	// ListByProduct returns the product's records ordered by position.
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.MatchRecord, error)
}

type CatalogReader interface {
	GetMany(ctx context.Context, ids []string) ([]models.CatalogEntry, error)
}

type ScoreStore interface {
	// SaveRuleSlot replaces or appends the slot with the same rule index and returns the new total.
	SaveRuleSlot(ctx context.Context, productID uuid.UUID, slot models.RuleSlot) (float64, error)
	Get(ctx context.Context, productID uuid.UUID) (*models.ProductScore, error)
}

// Evaluation is a rule result together with the product's recomputed total.
type Evaluation struct {
	models.ScoreResult
	TotalScore float64 `json:"total_score"`
}

type Service struct {
	products   ProductReader
	matches    MatchLister
	catalog    CatalogReader
	scores     ScoreStore
	publisher  events.Publisher
	logger     ectologger.Logger
	config     R01Config
	exceptions Exceptions
}

func NewService(logger ectologger.Logger, products ProductReader, matches MatchLister, catalog CatalogReader, scores ScoreStore, publisher events.Publisher, config R01Config, exceptions Exceptions) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		products:   products,
		matches:    matches,
		catalog:    catalog,
		scores:     scores,
		publisher:  publisher,
		logger:     logger,
		config:     config,
		exceptions: exceptions,
	}
}

// EvaluateR01 computes R01 from the product's current match records and stores it in the
// product's R01 slot.
func (s *Service) EvaluateR01(ctx context.Context, productID string) (*Evaluation, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Service.EvaluateR01")
	defer span.End()

	id, err := matching.ParseProductID(productID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	input, err := s.collectActives(ctx, id, len(product.Ingredients))
	if err != nil {
		return nil, err
	}

	result := EvaluateR01(input, s.config, s.exceptions)

	slot := models.RuleSlot{
		RuleIndex:   R01RuleIndex,
		RuleID:      result.RuleID,
		RuleVersion: result.Version,
		RelatedINCI: ectolinq.Map(result.ObservedInputs.ActivesDetected, func(a models.ActiveDetected) string {
			return a.Name
		}),
		RuleScore:      result.PointsAwarded,
		UpdatedAt:      time.Now().UTC(),
		ObservedInputs: result.ObservedInputs,
	}

	total, err := s.scores.SaveRuleSlot(ctx, id, slot)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("product_id", id.String()).Error("Failed to save R01 score")
		return nil, err
	}

	metrics.RecordScore(result.RuleID, string(result.Verdict))
	evt := events.New(events.TypeScoreEvaluated, id.String(), events.ScoreEvaluated{
		ProductID:     id.String(),
		RuleID:        result.RuleID,
		Version:       result.Version,
		PointsAwarded: result.PointsAwarded,
		Verdict:       string(result.Verdict),
		TotalScore:    total,
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish score event")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"product_id":     id.String(),
		"points_awarded": result.PointsAwarded,
		"verdict":        result.Verdict,
		"total_score":    total,
	}).Info("R01 evaluated")

	return &Evaluation{ScoreResult: result, TotalScore: total}, nil
}

// collectActives turns match records into the ordered active list: first position per catalog
// entry, active classification only, antioxidants in the last bucket dropped.
func (s *Service) collectActives(ctx context.Context, productID uuid.UUID, listLength int) (Input, error) {
	input := Input{ListLength: listLength}

	records, err := s.matches.ListByProduct(ctx, productID)
	if err != nil {
		return input, err
	}

	matched := ectolinq.Filter(records, func(r models.MatchRecord) bool {
		return r.Matched() && r.Classification != models.LabelNonIngredient
	})
	if len(matched) == 0 {
		return input, nil
	}

	var ids []string
	seenIDs := map[string]bool{}
	for _, r := range matched {
		if !seenIDs[*r.CatalogID] {
			seenIDs[*r.CatalogID] = true
			ids = append(ids, *r.CatalogID)
		}
	}

	entries, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return input, err
	}
	byID := make(map[string]models.CatalogEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	antioxidant := normalizers.NormalizeName(s.config.Antioxidant.Function)
	threshold := s.config.Bucketing.LargeListThreshold
	seen := map[string]bool{}

	for _, r := range matched {
		catalogID := *r.CatalogID
		if seen[catalogID] {
			continue
		}
		seen[catalogID] = true

		entry, ok := byID[catalogID]
		if !ok || entry.Classification != models.ClassificationActive {
			continue
		}

		if hasFunction(entry.Functions, antioxidant) && Disqualified(r.Position, listLength, threshold) {
			s.logger.WithContext(ctx).WithFields(map[string]any{
				"product_id": productID.String(),
				"ingredient": entry.CanonicalName,
				"index":      r.Position,
			}).Debug("Antioxidant excluded by position")
			continue
		}

		input.Actives = append(input.Actives, Active{
			IngredientID: entry.ID,
			Name:         entry.CanonicalName,
			Index:        r.Position,
		})
	}

	return input, nil
}

func hasFunction(functions []string, want string) bool {
	return ectolinq.Contains(ectolinq.Map(functions, normalizers.NormalizeName), want)
}

// GetScores returns the stored rule slots and total for a product.
func (s *Service) GetScores(ctx context.Context, productID string) (*models.ProductScore, error) {
	ctx, span := tracing.StartSpan(ctx, "scoring.Service.GetScores")
	defer span.End()

	id, err := matching.ParseProductID(productID)
	if err != nil {
		return nil, err
	}
	score, err := s.scores.Get(ctx, id)
	if err != nil {
		if errkind.Is(err, errkind.NotFound) {
			return nil, errkind.Newf(errkind.NotFound, "no scores for product %s", id)
		}
		return nil, err
	}
	return score, nil
}
