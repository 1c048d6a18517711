package matchrecord

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
	"github.com/lib/pq"
)

const table = "match_records"

var columns = []string{
	"id", "product_id", "label", "label_normalized", "position", "catalog_id", "status", "method",
	"score", "suggestions", "classification", "created_at", "updated_at",
}

// resolvedColumns are rewritten by a resolution; classification and created_at survive it.
var resolvedColumns = []string{"label", "position", "catalog_id", "status", "method", "score", "suggestions", "updated_at"}

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

func qualified(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = table + "." + c
	}
	return out
}

func excludedAssignments() string {
	sets := make([]string, len(resolvedColumns))
	for i, c := range resolvedColumns {
		sets[i] = c + " = EXCLUDED." + c
	}
	return strings.Join(sets, ", ")
}

func (r *Repository) insert(record *models.MatchRecord) *sqlbuilder.InsertBuilder {
	now := time.Now().UTC()
	classification := record.Classification
	if classification == "" {
		classification = models.LabelIngredient
	}
	suggestions := record.Suggestions
	if suggestions.Data == nil {
		suggestions = database.NewJSONB([]models.Suggestion{})
	}

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table).Cols(columns...).Values(
		uuid.New(), record.ProductID, record.Label, record.LabelNormalized, record.Position, record.CatalogID,
		record.Status, record.Method, record.Score, suggestions, classification, now, now,
	)
	return ib
}

// Upsert writes the record keyed by (product_id, label_normalized). A curated record holding the key
// keeps its match and only follows the label's new position; it is returned with false.
func (r *Repository) Upsert(ctx context.Context, record *models.MatchRecord) (*models.MatchRecord, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.Upsert")
	defer span.End()

	ib := r.insert(record)
	ib.SQL("ON CONFLICT (product_id, label_normalized) DO UPDATE SET " + excludedAssignments() +
		" WHERE " + table + ".status <> " + ib.Var(models.MatchStatusManual))
	ib.Returning(columns...)

	query, args := ib.Build()
	var stored models.MatchRecord
	err := r.db.GetContext(ctx, &stored, query, args...)
	if database.IsNoRows(err) {
		existing, moveErr := r.movePosition(ctx, record)
		if moveErr != nil {
			return nil, false, moveErr
		}
		return existing, false, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": record.ProductID,
			"label":      record.LabelNormalized,
		}).Error("Failed to upsert match record")
		return nil, false, database.Classify(err, "upsert match record")
	}
	return &stored, true, nil
}

// movePosition updates a curated record's position to the one in record and returns the row.
func (r *Repository) movePosition(ctx context.Context, record *models.MatchRecord) (*models.MatchRecord, error) {
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table).Set(
		ub.Assign("position", record.Position),
		ub.Assign("updated_at", time.Now().UTC()),
	).Where(
		ub.Equal("product_id", record.ProductID),
		ub.Equal("label_normalized", record.LabelNormalized),
		ub.NotEqual("position", record.Position),
	)

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", record.ProductID).Error("Failed to move curated match record")
		return nil, database.Classify(err, "move match record")
	}
	return r.Get(ctx, record.ProductID, record.LabelNormalized)
}

// SetManual writes the record for the key unconditionally.
func (r *Repository) SetManual(ctx context.Context, record *models.MatchRecord) (*models.MatchRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.SetManual")
	defer span.End()

	ib := r.insert(record)
	ib.SQL("ON CONFLICT (product_id, label_normalized) DO UPDATE SET " + excludedAssignments())
	ib.Returning(columns...)

	query, args := ib.Build()
	var stored models.MatchRecord
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", record.ProductID).Error("Failed to set manual match")
		return nil, database.Classify(err, "set manual match")
	}
	return &stored, nil
}

func (r *Repository) Get(ctx context.Context, productID uuid.UUID, labelNormalized string) (*models.MatchRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(
		sb.Equal("product_id", productID),
		sb.Equal("label_normalized", labelNormalized),
	)

	query, args := sb.Build()
	var record models.MatchRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errkind.New(errkind.NotFound, "match record not found")
		}
		return nil, database.Classify(err, "get match record")
	}
	return &record, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.MatchRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.Equal("id", id))

	query, args := sb.Build()
	var record models.MatchRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errkind.Newf(errkind.NotFound, "match %s does not exist", id)
		}
		return nil, database.Classify(err, "get match record")
	}
	return &record, nil
}

// Delete removes the record for the key; a missing record is not an error.
func (r *Repository) Delete(ctx context.Context, productID uuid.UUID, labelNormalized string) error {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(table).Where(db.Equal("product_id", productID), db.Equal("label_normalized", labelNormalized))

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", productID).Error("Failed to delete match record")
		return database.Classify(err, "delete match record")
	}
	return nil
}

func (r *Repository) Truncate(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.Truncate")
	defer span.End()

	if _, err := r.db.ExecContext(ctx, "TRUNCATE TABLE "+table); err != nil {
		return database.Classify(err, "truncate match records")
	}
	return nil
}

func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.DeleteAll")
	defer span.End()

	res, err := r.db.ExecContext(ctx, "DELETE FROM "+table)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete match records")
		return 0, database.Classify(err, "delete match records")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteExcept removes the product's records whose key is not in keep.
func (r *Repository) DeleteExcept(ctx context.Context, productID uuid.UUID, keep []string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.DeleteExcept")
	defer span.End()

	if keep == nil {
		keep = []string{}
	}
	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(table).Where(
		db.Equal("product_id", productID),
		"NOT (label_normalized = ANY("+db.Var(pq.Array(keep))+"))",
	)

	query, args := db.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", productID).Error("Failed to delete ghost matches")
		return 0, database.Classify(err, "delete ghost matches")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ApplyAlias points every automatic record with the key at catalogID.
func (r *Repository) ApplyAlias(ctx context.Context, labelNormalized, catalogID string, score float64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.ApplyAlias")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table).Set(
		ub.Assign("catalog_id", catalogID),
		ub.Assign("score", score),
		ub.Assign("method", models.MatchMethodAlias),
		ub.Assign("status", models.MatchStatusAuto),
		ub.Assign("suggestions", database.NewJSONB([]models.Suggestion{})),
		ub.Assign("updated_at", time.Now().UTC()),
	).Where(
		ub.Equal("label_normalized", labelNormalized),
		ub.NotIn("status", models.MatchStatusManual, models.MatchStatusRejected),
	)

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("label", labelNormalized).Error("Failed to apply alias")
		return 0, database.Classify(err, "apply alias")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SetClassification tags every record with the key and returns how many changed.
func (r *Repository) SetClassification(ctx context.Context, labelNormalized string, classification models.LabelClassification) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.SetClassification")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table).Set(
		ub.Assign("classification", classification),
		ub.Assign("updated_at", time.Now().UTC()),
	).Where(
		ub.Equal("label_normalized", labelNormalized),
		ub.NotEqual("classification", classification),
	)

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("label", labelNormalized).Error("Failed to set classification")
		return 0, database.Classify(err, "set classification")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.MatchRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.ListByProduct")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.Equal("product_id", productID)).OrderBy("position")

	query, args := sb.Build()
	records := []models.MatchRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", productID).Error("Failed to list match records")
		return nil, database.Classify(err, "list match records")
	}
	return records, nil
}

// ListUnmatched pages the review queue: unresolved ingredient records joined with their product.
func (r *Repository) ListUnmatched(ctx context.Context, filter models.UnmatchedFilter) ([]models.UnmatchedRecord, int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.ListUnmatched")
	defer span.End()

	where := func(sb *sqlbuilder.SelectBuilder) {
		sb.From(table).Join("products p", "p.id = "+table+".product_id")
		sb.Where(
			sb.IsNull(table+".catalog_id"),
			sb.NotEqual(table+".classification", models.LabelNonIngredient),
		)
		if filter.Brand != "" {
			sb.Where(sb.Equal("p.brand", filter.Brand))
		}
		if filter.Ingredient != "" {
			sb.Where(sb.ILike(table+".label", database.ContainsPattern(filter.Ingredient)))
		}
		if filter.ProductName != "" {
			sb.Where(sb.ILike("p.name", database.ContainsPattern(filter.ProductName)))
		}
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	where(cb)
	countQuery, countArgs := cb.Build()

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count unmatched records")
		return nil, 0, database.Classify(err, "count unmatched records")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(append(qualified(columns), "p.brand AS brand", "p.name AS product_name")...)
	where(sb)
	sb.OrderBy(table+".product_id", table+".position").Limit(filter.Limit).Offset(database.Offset(filter.Page, filter.Limit))

	query, args := sb.Build()
	rows := []models.UnmatchedRecord{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list unmatched records")
		return nil, 0, database.Classify(err, "list unmatched records")
	}
	return rows, total, nil
}

// MatchingSummary returns the product count and the count of products whose every ingredient
// record is matched.
func (r *Repository) MatchingSummary(ctx context.Context) (int64, int64, error) {
	ctx, span := tracing.StartSpan(ctx, "matchrecord.Repository.MatchingSummary")
	defer span.End()

	const query = `
		SELECT
			(SELECT COUNT(*) FROM products) AS total,
			(SELECT COUNT(*) FROM (
				SELECT product_id FROM match_records
				WHERE classification <> 'non_ingredient'
				GROUP BY product_id
				HAVING COUNT(*) = COUNT(catalog_id)
			) fully) AS fully`

	var row struct {
		Total int64 `db:"total"`
		Fully int64 `db:"fully"`
	}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to summarize matching")
		return 0, 0, database.Classify(err, "summarize matching")
	}
	return row.Total, row.Fully, nil
}
