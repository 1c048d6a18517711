package product

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/database"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
)

const table = "products"

var columns = []string{"id", "brand", "name", "slug", "ingredients", "original_ingredients", "created_at", "updated_at"}

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

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.Equal("id", id))

	query, args := sb.Build()
	var product models.Product
	if err := r.db.GetContext(ctx, &product, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errkind.Newf(errkind.NotFound, "product %s does not exist", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", id).Error("Failed to get product")
		return nil, database.Classify(err, "get product")
	}
	return &product, nil
}

// UpdateIngredients replaces the list. original is stored only when no original list is stored yet.
func (r *Repository) UpdateIngredients(ctx context.Context, id uuid.UUID, ingredients []string, original []string) error {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.UpdateIngredients")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table).Set(
		ub.Assign("ingredients", pq.StringArray(ingredients)),
		"original_ingredients = CASE WHEN original_ingredients IS NULL OR cardinality(original_ingredients) = 0 THEN "+
			ub.Var(pq.StringArray(original))+" ELSE original_ingredients END",
		ub.Assign("updated_at", time.Now().UTC()),
	).Where(ub.Equal("id", id))

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", id).Error("Failed to update ingredients")
		return database.Classify(err, "update ingredients")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errkind.Newf(errkind.NotFound, "product %s does not exist", id)
	}
	return nil
}

// IterateIDs walks product ids in ascending order by keyset cursor, batchSize at a time.
func (r *Repository) IterateIDs(ctx context.Context, batchSize int, fn func(ids []uuid.UUID) error) error {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.IterateIDs")
	defer span.End()

	var after *uuid.UUID
	for {
		sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		sb.Select("id").From(table)
		if after != nil {
			sb.Where(sb.GreaterThan("id", *after))
		}
		sb.OrderBy("id").Limit(batchSize)

		query, args := sb.Build()
		ids := []uuid.UUID{}
		if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to page product ids")
			return database.Classify(err, "page product ids")
		}
		if len(ids) == 0 {
			return nil
		}
		if err := fn(ids); err != nil {
			return err
		}
		if len(ids) < batchSize {
			return nil
		}
		last := ids[len(ids)-1]
		after = &last
	}
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.Count")
	defer span.End()

	var count int64
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, database.Classify(err, "count products")
	}
	return count, nil
}
