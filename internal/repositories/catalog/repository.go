package catalog

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/database"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/huandu/go-sqlbuilder"
)

const table = "catalog_entries"

var columns = []string{
	"id", "seq", "canonical_name", "search_key", "cas", "ec", "functions", "classification",
	"classification_hits", "classification_source", "classified_at", "created_at",
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListNames loads every id and canonical name in seq order for the catalog cache.
func (r *Repository) ListNames(ctx context.Context) ([]models.CatalogName, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.ListNames")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name").From(table).OrderBy("seq")

	query, args := sb.Build()
	names := []models.CatalogName{}
	if err := r.db.SelectContext(ctx, &names, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list catalog names")
		return nil, database.Classify(err, "list catalog names")
	}
	return names, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entry models.CatalogEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errkind.Newf(errkind.NotFound, "catalog entry %s does not exist", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("catalog_id", id).Error("Failed to get catalog entry")
		return nil, database.Classify(err, "get catalog entry")
	}
	return &entry, nil
}

func (r *Repository) GetMany(ctx context.Context, ids []string) ([]models.CatalogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.GetMany")
	defer span.End()

	entries := []models.CatalogEntry{}
	if len(ids) == 0 {
		return entries, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.In("id", sqlbuilder.Flatten(ids)...)).OrderBy("seq")

	query, args := sb.Build()
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(ids)).Error("Failed to get catalog entries")
		return nil, database.Classify(err, "get catalog entries")
	}
	return entries, nil
}

func (r *Repository) ListEntries(ctx context.Context, afterSeq int64, limit int) ([]models.CatalogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.ListEntries")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.GreaterThan("seq", afterSeq)).OrderBy("seq").Limit(limit)

	query, args := sb.Build()
	entries := []models.CatalogEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to page catalog entries")
		return nil, database.Classify(err, "page catalog entries")
	}
	return entries, nil
}

// UpdateClassification stores the outcome. Unknown clears the hits, source and timestamp.
func (r *Repository) UpdateClassification(ctx context.Context, id string, classification models.Classification, hits models.ClassificationHits, source string) error {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.UpdateClassification")
	defer span.End()

	var sourceValue *string
	var classifiedAt *time.Time
	if classification == models.ClassificationUnknown {
		hits = models.ClassificationHits{}
	} else {
		now := time.Now().UTC()
		sourceValue, classifiedAt = &source, &now
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table).Set(
		ub.Assign("classification", classification),
		ub.Assign("classification_hits", database.NewJSONB(hits)),
		ub.Assign("classification_source", sourceValue),
		ub.Assign("classified_at", classifiedAt),
	).Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("catalog_id", id).Error("Failed to update classification")
		return database.Classify(err, "update classification")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errkind.Newf(errkind.NotFound, "catalog entry %s does not exist", id)
	}
	return nil
}

// Search matches the normalized search key, or the raw query against name, CAS, EC and functions.
// Names starting with the query sort first.
func (r *Repository) Search(ctx context.Context, normalized, raw string, limit int) ([]models.CatalogName, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.Search")
	defer span.End()

	pattern := database.ContainsPattern(raw)
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "canonical_name").From(table).Where(sb.Or(
		sb.Like("search_key", database.ContainsPattern(normalized)),
		sb.ILike("canonical_name", pattern),
		sb.ILike("cas", pattern),
		sb.ILike("ec", pattern),
		sb.ILike("array_to_string(functions, ' ')", pattern),
	))
	sb.OrderBy(
		"canonical_name ILIKE "+sb.Var(raw+"%")+" DESC",
		"length(canonical_name)",
		"canonical_name",
	).Limit(limit)

	query, args := sb.Build()
	names := []models.CatalogName{}
	if err := r.db.SelectContext(ctx, &names, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query", raw).Error("Failed to search catalog")
		return nil, database.Classify(err, "search catalog")
	}
	return names, nil
}

// List pages through entries ordered by name, filtered by a name substring.
func (r *Repository) List(ctx context.Context, query string, page, limit int) ([]models.CatalogEntry, int, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Repository.List")
	defer span.End()

	where := func(sb *sqlbuilder.SelectBuilder) {
		if query != "" {
			sb.Where(sb.ILike("canonical_name", database.ContainsPattern(query)))
		}
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)").From(table)
	where(cb)
	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count catalog entries")
		return nil, 0, database.Classify(err, "count catalog entries")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table)
	where(sb)
	sb.OrderBy("canonical_name").Limit(limit).Offset(database.Offset(page, limit))

	selectQuery, args := sb.Build()
	entries := []models.CatalogEntry{}
	if err := r.db.SelectContext(ctx, &entries, selectQuery, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list catalog entries")
		return nil, 0, database.Classify(err, "list catalog entries")
	}
	return entries, total, nil
}
