package matching

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/metrics"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type AliasFinder interface {
	// GetByNormalized returns a NotFound error when no alias has the key.
	GetByNormalized(ctx context.Context, aliasNormalized string) (*models.Alias, error)
}

type MatchStore interface {
	// Upsert replaces the record for (product, label key) unless a curated record holds the key, in
	// which case only its position follows the given record. It returns the stored row and whether
	// the given record was written.
	Upsert(ctx context.Context, record *models.MatchRecord) (*models.MatchRecord, bool, error)
	// SetManual replaces the record for the key unconditionally.
	SetManual(ctx context.Context, record *models.MatchRecord) (*models.MatchRecord, error)
	Get(ctx context.Context, productID uuid.UUID, labelNormalized string) (*models.MatchRecord, error)
	Delete(ctx context.Context, productID uuid.UUID, labelNormalized string) error
}

type ProductReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type Config struct {
	// AcceptThreshold is the minimum fuzzy similarity that resolves a label.
	AcceptThreshold float64
	// SuggestionThreshold is the minimum similarity kept as a suggestion.
	SuggestionThreshold float64
	MaxSuggestions      int
	Similarity          Similarity
}

func DefaultConfig() Config {
	return Config{
		AcceptThreshold:     0.45,
		SuggestionThreshold: 0.30,
		MaxSuggestions:      models.MaxSuggestions,
		Similarity:          DiceCoefficient,
	}
}

type Service struct {
	cache     *CatalogCache
	aliases   AliasFinder
	matches   MatchStore
	products  ProductReader
	publisher events.Publisher
	logger    ectologger.Logger
	config    Config
}

func NewService(logger ectologger.Logger, cache *CatalogCache, aliases AliasFinder, matches MatchStore, products ProductReader, publisher events.Publisher, config Config) *Service {
	defaults := DefaultConfig()
	if config.AcceptThreshold <= 0 {
		config.AcceptThreshold = defaults.AcceptThreshold
	}
	if config.SuggestionThreshold <= 0 {
		config.SuggestionThreshold = defaults.SuggestionThreshold
	}
	if config.MaxSuggestions <= 0 {
		config.MaxSuggestions = defaults.MaxSuggestions
	}
	if config.Similarity == nil {
		config.Similarity = defaults.Similarity
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return &Service{
		cache:     cache,
		aliases:   aliases,
		matches:   matches,
		products:  products,
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

// ProductResolution summarizes a whole-product resolve. Skipped counts duplicate labels and labels
// whose curated record was left alone.
type ProductResolution struct {
	ProductID string `json:"product_id"`
	Resolved  int    `json:"resolved"`
	Skipped   int    `json:"skipped"`
}

type Ack struct {
	OK bool `json:"ok"`
}

// ParseProductID validates a product id.
func ParseProductID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, errkind.Newf(errkind.InvalidArgument, "invalid product id %q", id)
	}
	return parsed, nil
}

// ResolveProduct runs the cascade for every distinct label of the product's ingredient list.
func (s *Service) ResolveProduct(ctx context.Context, productID string) (*ProductResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.ResolveProduct")
	defer span.End()

	start := time.Now()
	id, err := ParseProductID(productID)
	if err != nil {
		return nil, err
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &ProductResolution{ProductID: id.String()}
	seen := make(map[string]bool, len(product.Ingredients))
	resolved := make([]events.Event, 0, len(product.Ingredients))

	for position, label := range product.Ingredients {
		if err := ctx.Err(); err != nil {
			return nil, errkind.Wrap(errkind.Timeout, err, "resolve product interrupted")
		}

		key := normalizers.LabelKey(label)
		if key == "" || seen[key] {
			result.Skipped++
			continue
		}
		seen[key] = true

		record, written, err := s.resolve(ctx, id, label, position)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"product_id": id.String(),
				"label":      label,
			}).Error("Failed to resolve label")
			return nil, err
		}
		if !written {
			result.Skipped++
			continue
		}
		result.Resolved++
		resolved = append(resolved, resolvedEvent(record))
	}

	s.publish(ctx, resolved...)
	metrics.ResolveDuration.Observe(time.Since(start).Seconds())

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"product_id": result.ProductID,
		"resolved":   result.Resolved,
		"skipped":    result.Skipped,
	}).Debug("Product resolved")
	return result, nil
}

// Resolve runs the cascade for one label and stores the outcome. When a curated record already
// holds the label, it keeps its match and moves to position.
func (s *Service) Resolve(ctx context.Context, productID uuid.UUID, label string, position int) (*models.MatchRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.Resolve")
	defer span.End()

	record, written, err := s.resolve(ctx, productID, label, position)
	if err != nil {
		return nil, err
	}
	if written {
		s.publish(ctx, resolvedEvent(record))
	}
	return record, nil
}

func (s *Service) resolve(ctx context.Context, productID uuid.UUID, label string, position int) (*models.MatchRecord, bool, error) {
	record, err := s.Match(ctx, label)
	if err != nil {
		return nil, false, err
	}
	record.ProductID = productID
	record.Position = position

	stored, written, err := s.matches.Upsert(ctx, record)
	if err != nil {
		return nil, false, err
	}
	if !written {
		metrics.MatchSkippedTotal.Inc()
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"product_id": productID.String(),
			"label":      record.LabelNormalized,
		}).Debug("Curated match record kept")
		return stored, false, nil
	}

	metrics.RecordMatch(string(record.Method))
	return stored, true, nil
}

// Match runs the cascade without storing anything: exact name, then alias, then fuzzy, earliest
// acceptable candidate first. The returned record carries no product.
func (s *Service) Match(ctx context.Context, label string) (*models.MatchRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.Match")
	defer span.End()

	normalized := normalizers.NormalizeIngredient(label)
	key := normalizers.NormalizeLabel(normalized)
	if key == "" {
		return nil, errkind.Newf(errkind.InvalidArgument, "label %q is empty after normalization", label)
	}

	snapshot, err := s.cache.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	record := &models.MatchRecord{
		Label:           label,
		LabelNormalized: key,
		Status:          models.MatchStatusAuto,
		Classification:  models.LabelIngredient,
	}
	candidates := normalizers.GenerateCandidates(normalized)

	for _, cand := range candidates {
		entry, ok := snapshot.LookupExact(cand)
		s.cache.record(ok)
		if ok {
			return accept(record, models.MatchMethodExact, entry.ID, 1.0, nil), nil
		}
	}

	for _, cand := range candidates {
		alias, err := s.aliases.GetByNormalized(ctx, normalizers.NormalizeLabel(cand))
		if errkind.Is(err, errkind.NotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return accept(record, models.MatchMethodAlias, alias.CatalogID, alias.Score(), nil), nil
	}

	best := map[string]models.Suggestion{}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, errkind.Wrap(errkind.Timeout, err, "fuzzy match interrupted")
		}

		ranked := s.rank(cand, snapshot)
		if len(ranked) > 0 && ranked[0].Score >= s.config.AcceptThreshold {
			top := ranked[:min(len(ranked), s.config.MaxSuggestions)]
			return accept(record, models.MatchMethodFuzzy, top[0].CatalogID, top[0].Score, top), nil
		}
		for _, sug := range ranked {
			if prev, ok := best[sug.CatalogID]; !ok || sug.Score > prev.Score {
				best[sug.CatalogID] = sug
			}
		}
	}

	record.Method = models.MatchMethodNone
	record.Suggestions.Data = s.mergeSuggestions(best, snapshot)
	return record, nil
}

func accept(record *models.MatchRecord, method models.MatchMethod, catalogID string, score float64, suggestions []models.Suggestion) *models.MatchRecord {
	record.Method = method
	record.CatalogID = &catalogID
	record.Score = &score
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	record.Suggestions.Data = suggestions
	return record
}

// rank scores cand against every catalog name and keeps those at or above the suggestion
// threshold, best first, ties in catalog order.
func (s *Service) rank(cand string, snapshot *CatalogSnapshot) []models.Suggestion {
	var ranked []models.Suggestion
	for _, entry := range snapshot.Entries() {
		score := s.config.Similarity(cand, entry.CanonicalName)
		if score < s.config.SuggestionThreshold {
			continue
		}
		ranked = append(ranked, models.Suggestion{
			CatalogID:     entry.ID,
			CanonicalName: entry.CanonicalName,
			Score:         score,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func (s *Service) mergeSuggestions(best map[string]models.Suggestion, snapshot *CatalogSnapshot) []models.Suggestion {
	merged := make([]models.Suggestion, 0, len(best))
	// walk in catalog order so the stable sort breaks ties by insertion
	for _, entry := range snapshot.Entries() {
		if sug, ok := best[entry.ID]; ok {
			merged = append(merged, sug)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	return merged[:min(len(merged), s.config.MaxSuggestions)]
}

// Clear drops the record for the label and runs the cascade again, curated or not.
func (s *Service) Clear(ctx context.Context, productID, label string) (*Ack, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.Clear")
	defer span.End()

	id, err := ParseProductID(productID)
	if err != nil {
		return nil, err
	}
	key := normalizers.LabelKey(label)
	if key == "" {
		return nil, errkind.New(errkind.InvalidArgument, "label is required")
	}

	position, err := s.positionOf(ctx, id, key)
	if err != nil {
		return nil, err
	}

	if err := s.matches.Delete(ctx, id, key); err != nil {
		return nil, err
	}

	if _, err := s.Resolve(ctx, id, label, position); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"product_id": id.String(),
		"label":      key,
	}).Info("Match cleared and re-resolved")
	return &Ack{OK: true}, nil
}

type ManualMatchInput struct {
	ProductID   string              `json:"product_id" validate:"required,uuid"`
	Label       string              `json:"label" validate:"required"`
	CatalogID   string              `json:"catalog_id" validate:"required"`
	Score       *float64            `json:"score,omitempty" validate:"omitempty,gte=0,lte=1"`
	Suggestions []models.Suggestion `json:"suggestions,omitempty" validate:"max=5"`
}

// SetManual pins a label to a catalog entry. Manual records survive automatic re-resolution.
func (s *Service) SetManual(ctx context.Context, in ManualMatchInput) (*Ack, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.SetManual")
	defer span.End()

	if err := validate.Struct(in); err != nil {
		return nil, errkind.Wrap(errkind.InvalidArgument, err, "invalid manual match")
	}
	id, err := ParseProductID(in.ProductID)
	if err != nil {
		return nil, err
	}
	key := normalizers.LabelKey(in.Label)
	if key == "" {
		return nil, errkind.Newf(errkind.InvalidArgument, "label %q is empty after normalization", in.Label)
	}

	snapshot, err := s.cache.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snapshot.LookupID(in.CatalogID); !ok {
		return nil, errkind.Newf(errkind.NotFound, "catalog entry %s does not exist", in.CatalogID)
	}

	position, err := s.positionOf(ctx, id, key)
	if err != nil {
		return nil, err
	}

	suggestions := in.Suggestions
	if suggestions == nil {
		suggestions = []models.Suggestion{}
	}
	catalogID := in.CatalogID
	record := &models.MatchRecord{
		ProductID:       id,
		Label:           in.Label,
		LabelNormalized: key,
		Position:        position,
		CatalogID:       &catalogID,
		Status:          models.MatchStatusManual,
		Method:          models.MatchMethodManual,
		Score:           in.Score,
		Classification:  models.LabelIngredient,
	}
	record.Suggestions.Data = suggestions

	stored, err := s.matches.SetManual(ctx, record)
	if err != nil {
		return nil, err
	}
	metrics.RecordMatch(string(models.MatchMethodManual))
	s.publish(ctx, resolvedEvent(stored))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"product_id": id.String(),
		"label":      key,
		"catalog_id": catalogID,
	}).Info("Manual match set")
	return &Ack{OK: true}, nil
}

// positionOf keeps an existing record's position, else finds the label in the product's list. A
// label that is not in the list sorts after every listed label.
func (s *Service) positionOf(ctx context.Context, productID uuid.UUID, key string) (int, error) {
	existing, err := s.matches.Get(ctx, productID, key)
	if err == nil {
		return existing.Position, nil
	}
	if !errkind.Is(err, errkind.NotFound) {
		return 0, err
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return 0, err
	}
	for i, label := range product.Ingredients {
		if normalizers.LabelKey(label) == key {
			return i, nil
		}
	}
	return len(product.Ingredients), nil
}

func (s *Service) publish(ctx context.Context, evts ...events.Event) {
	if len(evts) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evts...); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("events", len(evts)).Warn("Failed to publish match events")
	}
}

func resolvedEvent(record *models.MatchRecord) events.Event {
	return events.New(events.TypeMatchResolved, record.ProductID.String(), events.MatchResolved{
		ProductID:       record.ProductID.String(),
		Label:           record.Label,
		LabelNormalized: record.LabelNormalized,
		Method:          string(record.Method),
		CatalogID:       record.CatalogID,
		Score:           record.Score,
	})
}
