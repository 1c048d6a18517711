package alias

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/database"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

const table = "aliases"

var columns = []string{"id", "alias_text", "alias_normalized", "catalog_id", "confidence", "created_at", "updated_at"}

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

func (r *Repository) GetByNormalized(ctx context.Context, aliasNormalized string) (*models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.GetByNormalized")
	defer span.End()

	return r.getBy(ctx, "alias_normalized", aliasNormalized)
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.GetByID")
	defer span.End()

	return r.getBy(ctx, "id", id)
}

func (r *Repository) getBy(ctx context.Context, column string, value any) (*models.Alias, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.Equal(column, value))

	query, args := sb.Build()
	var alias models.Alias
	if err := r.db.GetContext(ctx, &alias, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errkind.Newf(errkind.NotFound, "alias %v does not exist", value)
		}
		r.logger.WithContext(ctx).WithError(err).WithField(column, value).Error("Failed to get alias")
		return nil, database.Classify(err, "get alias")
	}
	return &alias, nil
}

// Upsert inserts the alias or overwrites the one with the same alias_normalized, keeping its id.
func (r *Repository) Upsert(ctx context.Context, alias *models.Alias) (*models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Upsert")
	defer span.End()

	id := alias.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table).Cols(columns...).
		Values(id, alias.AliasText, alias.AliasNormalized, alias.CatalogID, alias.Confidence, now, now)
	ib.SQL("ON CONFLICT (alias_normalized) DO UPDATE SET alias_text = EXCLUDED.alias_text, " +
		"catalog_id = EXCLUDED.catalog_id, confidence = EXCLUDED.confidence, updated_at = EXCLUDED.updated_at")
	ib.Returning(columns...)

	query, args := ib.Build()
	var stored models.Alias
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("alias", alias.AliasNormalized).Error("Failed to upsert alias")
		return nil, database.Classify(err, "upsert alias")
	}
	return &stored, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(table).Where(db.Equal("id", id))

	query, args := db.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("alias_id", id).Error("Failed to delete alias")
		return database.Classify(err, "delete alias")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errkind.Newf(errkind.NotFound, "alias %s does not exist", id)
	}
	return nil
}

// List pages aliases ordered by key; search is matched against the upper-cased key.
func (r *Repository) List(ctx context.Context, search string, page, limit int) ([]models.Alias, int, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.List")
	defer span.End()

	where := func(sb *sqlbuilder.SelectBuilder) {
		if search != "" {
			sb.Where(sb.Like("alias_normalized", database.ContainsPattern(strings.ToUpper(search))))
		}
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)").From(table)
	where(cb)
	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count aliases")
		return nil, 0, database.Classify(err, "count aliases")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table)
	where(sb)
	sb.OrderBy("alias_normalized").Limit(limit).Offset(database.Offset(page, limit))

	selectQuery, args := sb.Build()
	aliases := []models.Alias{}
	if err := r.db.SelectContext(ctx, &aliases, selectQuery, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list aliases")
		return nil, 0, database.Classify(err, "list aliases")
	}
	return aliases, total, nil
}
