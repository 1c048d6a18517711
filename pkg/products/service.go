package products

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/matching"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/google/uuid"
)

const resplitBatchSize = 500

type ProductStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	// UpdateIngredients replaces the list; original is stored only when none is stored yet.
	UpdateIngredients(ctx context.Context, id uuid.UUID, ingredients []string, original []string) error
	IterateIDs(ctx context.Context, batchSize int, fn func(ids []uuid.UUID) error) error
}

type MatchStore interface {
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.MatchRecord, error)
	// DeleteExcept removes the product's records whose label_normalized is not in keep.
	DeleteExcept(ctx context.Context, productID uuid.UUID, keep []string) (int64, error)
	// MatchingSummary returns the product count and the count of fully matched products.
	MatchingSummary(ctx context.Context) (int64, int64, error)
}

type CatalogReader interface {
	GetMany(ctx context.Context, ids []string) ([]models.CatalogEntry, error)
}

// Resolver re-runs the cascade over a product's list.
type Resolver interface {
	ResolveProduct(ctx context.Context, productID string) (*matching.ProductResolution, error)
}

type Service struct {
	products ProductStore
	matches  MatchStore
	catalog  CatalogReader
	resolver Resolver
	logger   ectologger.Logger
}

func NewService(logger ectologger.Logger, products ProductStore, matches MatchStore, catalog CatalogReader, resolver Resolver) *Service {
	return &Service{
		products: products,
		matches:  matches,
		catalog:  catalog,
		resolver: resolver,
		logger:   logger,
	}
}

// UpdateIngredientsInput carries the new declaration as a list or as free text. The list wins when
// both are set.
type UpdateIngredientsInput struct {
	ProductID   string   `json:"product_id"`
	Ingredients []string `json:"ingredients,omitempty"`
	Text        string   `json:"text,omitempty"`
}

type UpdateResult struct {
	ProductID string   `json:"product_id"`
	SavedList []string `json:"saved_list"`
	Removed   int64    `json:"removed"`
	Resolved  int      `json:"resolved"`
}

// CleanIngredients collapses whitespace, drops empty labels and drops case-insensitive duplicates,
// keeping the first spelling.
func CleanIngredients(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	cleaned := make([]string, 0, len(labels))
	for _, raw := range labels {
		label := normalizers.CollapseWhitespace(raw)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, label)
	}
	return cleaned
}

// UpdateIngredients replaces the product's declaration, drops match records for labels no longer
// listed and resolves the product again.
func (s *Service) UpdateIngredients(ctx context.Context, in UpdateIngredientsInput) (*UpdateResult, error) {
	ctx, span := tracing.StartSpan(ctx, "products.Service.UpdateIngredients")
	defer span.End()

	id, err := matching.ParseProductID(in.ProductID)
	if err != nil {
		return nil, err
	}

	incoming := in.Ingredients
	if len(incoming) == 0 && strings.TrimSpace(in.Text) != "" {
		incoming = normalizers.SplitIngredients(in.Text)
	}

	return s.replace(ctx, id, CleanIngredients(incoming))
}

func (s *Service) replace(ctx context.Context, id uuid.UUID, cleaned []string) (*UpdateResult, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var original []string
	if len(product.OriginalIngredients) == 0 {
		original = product.Ingredients
	}
	if err := s.products.UpdateIngredients(ctx, id, cleaned, original); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("product_id", id.String()).Error("Failed to update ingredients")
		return nil, err
	}

	removed, err := s.CleanupGhostMatches(ctx, id, cleaned)
	if err != nil {
		return nil, err
	}

	resolution, err := s.resolver.ResolveProduct(ctx, id.String())
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"product_id": id.String(),
		"labels":     len(cleaned),
		"removed":    removed,
		"resolved":   resolution.Resolved,
	}).Info("Product ingredients updated")

	return &UpdateResult{
		ProductID: id.String(),
		SavedList: cleaned,
		Removed:   removed,
		Resolved:  resolution.Resolved,
	}, nil
}

// CleanupGhostMatches deletes the product's match records whose label is no longer in labels.
func (s *Service) CleanupGhostMatches(ctx context.Context, productID uuid.UUID, labels []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "products.Service.CleanupGhostMatches")
	defer span.End()

	keep := ectolinq.Filter(ectolinq.Map(labels, normalizers.LabelKey), func(key string) bool {
		return key != ""
	})
	removed, err := s.matches.DeleteExcept(ctx, productID, keep)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("product_id", productID.String()).Error("Failed to remove ghost matches")
		return 0, err
	}
	if removed > 0 {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"product_id": productID.String(),
			"removed":    removed,
		}).Debug("Ghost matches removed")
	}
	return removed, nil
}

type MatchedIngredient struct {
	MatchID        string                     `json:"match_id"`
	Label          string                     `json:"label"`
	Position       int                        `json:"position"`
	CatalogID      string                     `json:"catalog_id"`
	CanonicalName  *string                    `json:"canonical_name"`
	Functions      []string                   `json:"functions,omitempty"`
	Status         models.MatchStatus         `json:"status"`
	Method         models.MatchMethod         `json:"method"`
	Score          *float64                   `json:"score"`
	Classification models.LabelClassification `json:"classification"`
}

type UnmatchedIngredient struct {
	MatchID     *string             `json:"match_id"`
	Label       string              `json:"label"`
	Position    int                 `json:"position"`
	Suggestions []models.Suggestion `json:"suggestions"`
}

type NonIngredient struct {
	MatchID  string `json:"match_id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

type Detail struct {
	ID             string                `json:"id"`
	Brand          string                `json:"brand"`
	Name           string                `json:"name"`
	Slug           string                `json:"slug"`
	Ingredients    []string              `json:"ingredients"`
	Matches        []MatchedIngredient   `json:"matches"`
	Unmatched      []UnmatchedIngredient `json:"unmatched"`
	NonIngredients []NonIngredient       `json:"non_ingredients"`
	MatchedCount   int                   `json:"matched_count"`
	Total          int                   `json:"total"`
	MatchedPct     int                   `json:"matched_pct"`
}

// Detail splits the product's list into matched, unmatched and non-ingredient labels. Labels with
// no record yet count as unmatched.
func (s *Service) Detail(ctx context.Context, productID string) (*Detail, error) {
	ctx, span := tracing.StartSpan(ctx, "products.Service.Detail")
	defer span.End()

	id, err := matching.ParseProductID(productID)
	if err != nil {
		return nil, err
	}
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.matches.ListByProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]models.MatchRecord, len(records))
	var catalogIDs []string
	for _, r := range records {
		byKey[r.LabelNormalized] = r
		if r.Matched() {
			catalogIDs = append(catalogIDs, *r.CatalogID)
		}
	}

	entries := map[string]models.CatalogEntry{}
	if len(catalogIDs) > 0 {
		found, err := s.catalog.GetMany(ctx, catalogIDs)
		if err != nil {
			return nil, err
		}
		for _, e := range found {
			entries[e.ID] = e
		}
	}

	detail := &Detail{
		ID:             id.String(),
		Brand:          product.Brand,
		Name:           product.Name,
		Slug:           product.Slug,
		Ingredients:    product.Ingredients,
		Matches:        []MatchedIngredient{},
		Unmatched:      []UnmatchedIngredient{},
		NonIngredients: []NonIngredient{},
	}
	if detail.Ingredients == nil {
		detail.Ingredients = []string{}
	}

	for position, label := range product.Ingredients {
		record, ok := byKey[normalizers.LabelKey(label)]
		switch {
		case ok && record.Classification == models.LabelNonIngredient:
			detail.NonIngredients = append(detail.NonIngredients, NonIngredient{
				MatchID:  record.ID.String(),
				Label:    label,
				Position: position,
			})
		case ok && record.Matched():
			matched := MatchedIngredient{
				MatchID:        record.ID.String(),
				Label:          label,
				Position:       position,
				CatalogID:      *record.CatalogID,
				Status:         record.Status,
				Method:         record.Method,
				Score:          record.Score,
				Classification: record.Classification,
			}
			if entry, found := entries[*record.CatalogID]; found {
				matched.CanonicalName = &entry.CanonicalName
				matched.Functions = entry.Functions
			}
			detail.Matches = append(detail.Matches, matched)
		default:
			unmatched := UnmatchedIngredient{Label: label, Position: position, Suggestions: []models.Suggestion{}}
			if ok {
				matchID := record.ID.String()
				unmatched.MatchID = &matchID
				if record.Suggestions.Data != nil {
					unmatched.Suggestions = record.Suggestions.Data
				}
			}
			detail.Unmatched = append(detail.Unmatched, unmatched)
		}
	}

	detail.MatchedCount = len(detail.Matches)
	detail.Total = len(product.Ingredients) - len(detail.NonIngredients)
	if detail.Total > 0 {
		detail.MatchedPct = int(math.Round(float64(detail.MatchedCount) / float64(detail.Total) * 100))
	}
	return detail, nil
}

type Summary struct {
	TotalProducts       int64   `json:"total_products"`
	FullyMatched        int64   `json:"fully_matched"`
	PercentFullyMatched float64 `json:"percent_fully_matched"`
}

// Summary reports how many products have every ingredient label matched.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "products.Service.Summary")
	defer span.End()

	total, fully, err := s.matches.MatchingSummary(ctx)
	if err != nil {
		return nil, err
	}
	summary := &Summary{TotalProducts: total, FullyMatched: fully}
	if total > 0 {
		summary.PercentFullyMatched = math.Round(float64(fully)/float64(total)*100*100) / 100
	}
	return summary, nil
}

type ResplitResult struct {
	Scanned int      `json:"scanned"`
	Updated int      `json:"updated"`
	Failed  []string `json:"failed"`
}

// Resplit re-runs the splitter over every product's joined list and stores the lists that change.
// With dryRun nothing is written.
func (s *Service) Resplit(ctx context.Context, dryRun bool) (*ResplitResult, error) {
	ctx, span := tracing.StartSpan(ctx, "products.Service.Resplit")
	defer span.End()

	result := &ResplitResult{Failed: []string{}}
	err := s.products.IterateIDs(ctx, resplitBatchSize, func(ids []uuid.UUID) error {
		for _, id := range ids {
			result.Scanned++

			product, err := s.products.GetByID(ctx, id)
			if err != nil {
				if errkind.Is(err, errkind.NotFound) {
					continue
				}
				return err
			}

			resplit := CleanIngredients(normalizers.SplitIngredients(normalizers.JoinIngredients(product.Ingredients)))
			if slices.Equal(resplit, []string(product.Ingredients)) {
				continue
			}
			result.Updated++
			if dryRun {
				continue
			}

			if _, err := s.replace(ctx, id, resplit); err != nil {
				if ctx.Err() != nil {
					return err
				}
				s.logger.WithContext(ctx).WithError(err).WithField("product_id", id.String()).Warn("Failed to re-split product")
				result.Updated--
				result.Failed = append(result.Failed, id.String())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"scanned": result.Scanned,
		"updated": result.Updated,
		"failed":  len(result.Failed),
		"dry_run": dryRun,
	}).Info("Re-split finished")
	return result, nil
}
