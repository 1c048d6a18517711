package curation

import (
	"context"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

type CatalogReader interface {
	GetByID(ctx context.Context, id string) (*models.CatalogEntry, error)
	GetMany(ctx context.Context, ids []string) ([]models.CatalogEntry, error)
}

type AliasStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Alias, error)
	// Upsert inserts or overwrites the alias with the same alias_normalized.
	Upsert(ctx context.Context, alias *models.Alias) (*models.Alias, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, page, limit int) ([]models.Alias, int, error)
}

type MatchCurator interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.MatchRecord, error)
	// ApplyAlias points every automatic record with the key at catalogID and returns the count.
	ApplyAlias(ctx context.Context, labelNormalized, catalogID string, score float64) (int64, error)
	SetClassification(ctx context.Context, labelNormalized string, classification models.LabelClassification) (int64, error)
	ListUnmatched(ctx context.Context, filter models.UnmatchedFilter) ([]models.UnmatchedRecord, int, error)
}

// Service holds the reviewer operations: aliases, label classification and the unmatched queue.
type Service struct {
	catalog   CatalogReader
	aliases   AliasStore
	matches   MatchCurator
	publisher events.Publisher
	logger    ectologger.Logger
}

func NewService(logger ectologger.Logger, catalog CatalogReader, aliases AliasStore, matches MatchCurator, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		catalog:   catalog,
		aliases:   aliases,
		matches:   matches,
		publisher: publisher,
		logger:    logger,
	}
}

type CreateAliasInput struct {
	Alias     string `json:"alias" validate:"required"`
	CatalogID string `json:"catalog_id" validate:"required"`
}

type AliasResult struct {
	ID              string `json:"id"`
	Alias           string `json:"alias"`
	AliasNormalized string `json:"alias_normalized"`
	CatalogID       string `json:"catalog_id"`
	Applied         int64  `json:"applied"`
}

// CreateAlias stores the alias, overwriting an existing one with the same normalized text, and
// re-points the automatic match records carrying that text.
func (s *Service) CreateAlias(ctx context.Context, in CreateAliasInput) (*AliasResult, error) {
	ctx, span := tracing.StartSpan(ctx, "curation.Service.CreateAlias")
	defer span.End()

	in.Alias = normalizers.CollapseWhitespace(in.Alias)
	in.CatalogID = strings.TrimSpace(in.CatalogID)
	if err := validate.Struct(in); err != nil {
		return nil, errkind.Wrap(errkind.InvalidArgument, err, "invalid alias")
	}

	// same key the match records carry, so ApplyAlias reaches them
	aliasNormalized := normalizers.LabelKey(in.Alias)
	if aliasNormalized == "" {
		return nil, errkind.New(errkind.InvalidArgument, "alias is empty after normalization")
	}

	if _, err := s.catalog.GetByID(ctx, in.CatalogID); err != nil {
		if errkind.Is(err, errkind.NotFound) {
			return nil, errkind.Newf(errkind.NotFound, "catalog entry %s not found", in.CatalogID).
				AddMetaValue("catalog_id", in.CatalogID)
		}
		return nil, err
	}

	confidence := models.DefaultAliasConfidence
	alias, err := s.aliases.Upsert(ctx, &models.Alias{
		AliasText:       in.Alias,
		AliasNormalized: aliasNormalized,
		CatalogID:       in.CatalogID,
		Confidence:      &confidence,
	})
	if err != nil {
		if errkind.Is(err, errkind.Conflict) {
			return nil, errkind.Wrap(errkind.Conflict, err, "alias already exists with a different mapping")
		}
		s.logger.WithContext(ctx).WithError(err).WithField("alias", in.Alias).Error("Failed to store alias")
		return nil, err
	}

	applied, err := s.matches.ApplyAlias(ctx, alias.AliasNormalized, alias.CatalogID, alias.Score())
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("alias", alias.AliasNormalized).Error("Failed to apply alias")
		return nil, err
	}

	evt := events.New(events.TypeAliasApplied, alias.AliasNormalized, events.AliasApplied{
		AliasID:         alias.ID.String(),
		AliasNormalized: alias.AliasNormalized,
		CatalogID:       alias.CatalogID,
		Applied:         applied,
	})
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish alias event")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"alias":      alias.AliasNormalized,
		"catalog_id": alias.CatalogID,
		"applied":    applied,
	}).Info("Alias stored")

	return &AliasResult{
		ID:              alias.ID.String(),
		Alias:           alias.AliasText,
		AliasNormalized: alias.AliasNormalized,
		CatalogID:       alias.CatalogID,
		Applied:         applied,
	}, nil
}

type AliasView struct {
	models.Alias
	CanonicalName *string `json:"canonical_name"`
}

// ListAliases returns aliases ordered by normalized text with the name of the entry each points at.
func (s *Service) ListAliases(ctx context.Context, search string, page, limit int) (*models.Page[AliasView], error) {
	ctx, span := tracing.StartSpan(ctx, "curation.Service.ListAliases")
	defer span.End()

	page, limit = models.PageBounds(page, limit)
	aliases, total, err := s.aliases.List(ctx, strings.TrimSpace(search), page, limit)
	if err != nil {
		return nil, err
	}

	ids := ectolinq.Map(aliases, func(a models.Alias) string { return a.CatalogID })
	entries, err := s.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(entries))
	for _, e := range entries {
		names[e.ID] = e.CanonicalName
	}

	views := ectolinq.Map(aliases, func(a models.Alias) AliasView {
		view := AliasView{Alias: a}
		if name, ok := names[a.CatalogID]; ok {
			view.CanonicalName = &name
		}
		return view
	})
	return models.NewPage(views, page, limit, total), nil
}

type Deleted struct {
	Deleted bool `json:"deleted"`
}

func (s *Service) RemoveAlias(ctx context.Context, aliasID string) (*Deleted, error) {
	ctx, span := tracing.StartSpan(ctx, "curation.Service.RemoveAlias")
	defer span.End()

	id, err := uuid.Parse(strings.TrimSpace(aliasID))
	if err != nil {
		return nil, errkind.Newf(errkind.InvalidArgument, "invalid alias id %q", aliasID)
	}
	if _, err := s.aliases.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.aliases.Delete(ctx, id); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("alias_id", id.String()).Info("Alias removed")
	return &Deleted{Deleted: true}, nil
}

type ClassificationResult struct {
	OK      bool  `json:"ok"`
	Updated int64 `json:"updated"`
}

// SetClassification flags every record sharing the match's normalized label, across products.
func (s *Service) SetClassification(ctx context.Context, matchID string, classification models.LabelClassification) (*ClassificationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "curation.Service.SetClassification")
	defer span.End()

	if !classification.Valid() {
		return nil, errkind.Newf(errkind.InvalidArgument, "classification must be %s or %s", models.LabelIngredient, models.LabelNonIngredient)
	}
	id, err := uuid.Parse(strings.TrimSpace(matchID))
	if err != nil {
		return nil, errkind.Newf(errkind.InvalidArgument, "invalid match id %q", matchID)
	}

	record, err := s.matches.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.matches.SetClassification(ctx, record.LabelNormalized, classification)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("label", record.LabelNormalized).Error("Failed to set classification")
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"label":          record.LabelNormalized,
		"classification": classification,
		"updated":        updated,
	}).Info("Label classification set")

	return &ClassificationResult{OK: updated > 0, Updated: updated}, nil
}

// Unmatched pages through unresolved ingredient labels for review.
func (s *Service) Unmatched(ctx context.Context, filter models.UnmatchedFilter) (*models.Page[models.UnmatchedRecord], error) {
	ctx, span := tracing.StartSpan(ctx, "curation.Service.Unmatched")
	defer span.End()

	filter.Page, filter.Limit = models.PageBounds(filter.Page, filter.Limit)
	filter.Brand = strings.TrimSpace(filter.Brand)
	filter.Ingredient = strings.TrimSpace(filter.Ingredient)
	filter.ProductName = strings.TrimSpace(filter.ProductName)

	rows, total, err := s.matches.ListUnmatched(ctx, filter)
	if err != nil {
		return nil, err
	}
	return models.NewPage(rows, filter.Page, filter.Limit, total), nil
}
