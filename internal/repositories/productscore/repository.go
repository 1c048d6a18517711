package productscore

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
)

const table = "product_scores"

var columns = []string{"product_id", "rules", "total_score", "created_at", "updated_at"}

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

// SaveRuleSlot replaces or appends the slot with the same rule index and recomputes total_score, all
// under a row lock so concurrent rule writers do not drop each other's slots.
func (r *Repository) SaveRuleSlot(ctx context.Context, productID uuid.UUID, slot models.RuleSlot) (total float64, err error) {
	ctx, span := tracing.StartSpan(ctx, "productscore.Repository.SaveRuleSlot")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, database.Classify(err, "begin score transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table).Cols(columns...).
		Values(productID, database.NewJSONB([]models.RuleSlot{}), 0, now, now)
	ib.SQL("ON CONFLICT (product_id) DO NOTHING")
	query, args := ib.Build()
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", productID).Error("Failed to create score row")
		return 0, database.Classify(err, "create score row")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.Equal("product_id", productID)).ForUpdate()
	query, args = sb.Build()
	var score models.ProductScore
	if err = tx.GetContext(ctx, &score, query, args...); err != nil {
		return 0, database.Classify(err, "lock score row")
	}

	rules := score.Rules.GetValue()
	replaced := false
	for i := range rules {
		if rules[i].RuleIndex == slot.RuleIndex {
			rules[i] = slot
			replaced = true
		}
	}
	if !replaced {
		rules = append(rules, slot)
	}
	for _, rule := range rules {
		total += rule.RuleScore
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table).Set(
		ub.Assign("rules", database.NewJSONB(rules)),
		ub.Assign("total_score", total),
		ub.Assign("updated_at", now),
	).Where(ub.Equal("product_id", productID))
	query, args = ub.Build()
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("product_id", productID).Error("Failed to save rule slot")
		return 0, database.Classify(err, "save rule slot")
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, database.Classify(err, "commit score")
	}
	return total, nil
}

func (r *Repository) Get(ctx context.Context, productID uuid.UUID) (*models.ProductScore, error) {
	ctx, span := tracing.StartSpan(ctx, "productscore.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...).From(table).Where(sb.Equal("product_id", productID))

	query, args := sb.Build()
	var score models.ProductScore
	if err := r.db.GetContext(ctx, &score, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errkind.Newf(errkind.NotFound, "no scores for product %s", productID)
		}
		return nil, database.Classify(err, "get product score")
	}
	return &score, nil
}
