package matchrecord_test

import (
	"context"
	"testing"

	"github.com/PatrickalKhouri/ingredient-manager/internal/repositories/alias"
	"github.com/PatrickalKhouri/ingredient-manager/internal/repositories/catalog"
	"github.com/PatrickalKhouri/ingredient-manager/internal/repositories/matchrecord"
	"github.com/PatrickalKhouri/ingredient-manager/internal/repositories/product"
	"github.com/PatrickalKhouri/ingredient-manager/internal/repositories/productscore"
	"github.com/PatrickalKhouri/ingredient-manager/internal/testutil/containers"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/logging"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/matching"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stores struct {
	raw      *sqlx.DB
	catalog  *catalog.Repository
	aliases  *alias.Repository
	matches  *matchrecord.Repository
	products *product.Repository
	scores   *productscore.Repository
}

func setup(t *testing.T) *stores {
	t.Helper()
	db, raw := containers.MigratedDB(t)
	logger := logging.Silent()
	return &stores{
		raw:      raw,
		catalog:  catalog.NewRepository(db, logger),
		aliases:  alias.NewRepository(db, logger),
		matches:  matchrecord.NewRepository(db, logger),
		products: product.NewRepository(db, logger),
		scores:   productscore.NewRepository(db, logger),
	}
}

func (s *stores) addCatalog(t *testing.T, name string, functions ...string) string {
	t.Helper()
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
	_, err := s.raw.Exec(`INSERT INTO catalog_entries (id, canonical_name, search_key, functions) VALUES ($1, $2, $3, $4)`,
		id, name, normalizers.NormalizeLabel(name), pq.StringArray(functions))
	require.NoError(t, err)
	return id
}

func (s *stores) addProduct(t *testing.T, brand, name string, ingredients ...string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := s.raw.Exec(`INSERT INTO products (id, brand, name, ingredients) VALUES ($1, $2, $3, $4)`,
		id, brand, name, pq.StringArray(ingredients))
	require.NoError(t, err)
	return id
}

func record(productID uuid.UUID, label string, position int, catalogID *string, method models.MatchMethod) *models.MatchRecord {
	return &models.MatchRecord{
		ProductID:       productID,
		Label:           label,
		LabelNormalized: normalizers.LabelKey(label),
		Position:        position,
		CatalogID:       catalogID,
		Status:          models.MatchStatusAuto,
		Method:          method,
	}
}

func TestRepositories(t *testing.T) {
	s := setup(t)
	ctx := context.Background()

	aqua := s.addCatalog(t, "AQUA", "SOLVENT")
	glycerin := s.addCatalog(t, "GLYCERIN", "HUMECTANT", "SKIN CONDITIONING")
	niacinamide := s.addCatalog(t, "NIACINAMIDE", "SKIN CONDITIONING")

	serum := s.addProduct(t, "Acme", "Glow Serum", "Aqua", "Glycerine", "Mystery Extract")
	cream := s.addProduct(t, "Other", "Night Cream", "Aqua", "Mystery Extract")

	t.Run("match upsert keeps curated records", func(t *testing.T) {
		stored, written, err := s.matches.Upsert(ctx, record(serum, "Glycerine", 1, nil, models.MatchMethodNone))
		require.NoError(t, err)
		require.True(t, written)
		assert.Equal(t, models.LabelIngredient, stored.Classification)

		again, written, err := s.matches.Upsert(ctx, record(serum, "Glycerine", 1, &glycerin, models.MatchMethodFuzzy))
		require.NoError(t, err)
		assert.True(t, written)
		assert.Equal(t, stored.ID, again.ID)
		assert.Equal(t, glycerin, *again.CatalogID)

		manual := record(serum, "Glycerine", 1, &niacinamide, models.MatchMethodManual)
		manual.Status = models.MatchStatusManual
		_, err = s.matches.SetManual(ctx, manual)
		require.NoError(t, err)

		kept, written, err := s.matches.Upsert(ctx, record(serum, "Glycerine", 1, &glycerin, models.MatchMethodExact))
		require.NoError(t, err)
		assert.False(t, written)
		assert.Equal(t, models.MatchStatusManual, kept.Status)
		assert.Equal(t, niacinamide, *kept.CatalogID)
		assert.Equal(t, stored.ID, kept.ID)
		assert.Equal(t, 1, kept.Position)

		moved, written, err := s.matches.Upsert(ctx, record(serum, "Glycerine", 0, &glycerin, models.MatchMethodExact))
		require.NoError(t, err)
		assert.False(t, written)
		assert.Equal(t, 0, moved.Position)
		assert.Equal(t, models.MatchStatusManual, moved.Status)
		assert.Equal(t, niacinamide, *moved.CatalogID)
	})

	t.Run("alias upsert overwrites by key", func(t *testing.T) {
		first, err := s.aliases.Upsert(ctx, &models.Alias{AliasText: "Mystery Extract", AliasNormalized: "MYSTERY EXTRACT", CatalogID: aqua})
		require.NoError(t, err)
		second, err := s.aliases.Upsert(ctx, &models.Alias{AliasText: "Mystery extract", AliasNormalized: "MYSTERY EXTRACT", CatalogID: niacinamide})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, niacinamide, second.CatalogID)

		found, err := s.aliases.GetByNormalized(ctx, "MYSTERY EXTRACT")
		require.NoError(t, err)
		assert.Equal(t, "Mystery extract", found.AliasText)

		items, total, err := s.aliases.List(ctx, "myst", 1, 20)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, items, 1)

		_, err = s.aliases.Upsert(ctx, &models.Alias{AliasText: "x", AliasNormalized: "X", CatalogID: "missing"})
		assert.Equal(t, errkind.InvalidArgument, errkind.Of(err))
	})

	t.Run("resolve product end to end", func(t *testing.T) {
		logger := logging.Silent()
		service := matching.NewService(logger, matching.NewCatalogCache(s.catalog, logger), s.aliases, s.matches, s.products, nil, matching.DefaultConfig())

		_, err := service.ResolveProduct(ctx, cream.String())
		require.NoError(t, err)

		records, err := s.matches.ListByProduct(ctx, cream)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, models.MatchMethodExact, records[0].Method)
		assert.Equal(t, aqua, *records[0].CatalogID)
		assert.Equal(t, models.MatchMethodAlias, records[1].Method)
		assert.Equal(t, niacinamide, *records[1].CatalogID)

		_, err = service.ResolveProduct(ctx, uuid.NewString())
		assert.Equal(t, errkind.NotFound, errkind.Of(err))
	})

	t.Run("alias application skips manual records", func(t *testing.T) {
		_, _, err := s.matches.Upsert(ctx, record(serum, "Mystery Extract", 2, nil, models.MatchMethodNone))
		require.NoError(t, err)
		require.NoError(t, s.matches.Delete(ctx, cream, "MYSTERY EXTRACT"))
		_, _, err = s.matches.Upsert(ctx, record(cream, "Mystery Extract", 1, nil, models.MatchMethodNone))
		require.NoError(t, err)

		applied, err := s.matches.ApplyAlias(ctx, "MYSTERY EXTRACT", glycerin, models.DefaultAliasConfidence)
		require.NoError(t, err)
		assert.Equal(t, int64(2), applied)

		applied, err = s.matches.ApplyAlias(ctx, "GLYCERINE", aqua, models.DefaultAliasConfidence)
		require.NoError(t, err)
		assert.Zero(t, applied)
	})

	t.Run("classification review queue and summary", func(t *testing.T) {
		_, _, err := s.matches.Upsert(ctx, record(serum, "Aqua", 0, nil, models.MatchMethodNone))
		require.NoError(t, err)
		_, _, err = s.matches.Upsert(ctx, record(cream, "Aqua", 0, nil, models.MatchMethodNone))
		require.NoError(t, err)

		rows, total, err := s.matches.ListUnmatched(ctx, models.UnmatchedFilter{Page: 1, Limit: 20})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, rows, 2)

		rows, total, err = s.matches.ListUnmatched(ctx, models.UnmatchedFilter{Brand: "Acme", Page: 1, Limit: 20})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "Glow Serum", rows[0].ProductName)

		existing, err := s.matches.Get(ctx, serum, "AQUA")
		require.NoError(t, err)
		byID, err := s.matches.GetByID(ctx, existing.ID)
		require.NoError(t, err)
		assert.Equal(t, existing.LabelNormalized, byID.LabelNormalized)

		updated, err := s.matches.SetClassification(ctx, "AQUA", models.LabelNonIngredient)
		require.NoError(t, err)
		assert.Equal(t, int64(2), updated)
		updated, err = s.matches.SetClassification(ctx, "AQUA", models.LabelNonIngredient)
		require.NoError(t, err)
		assert.Zero(t, updated)

		_, total, err = s.matches.ListUnmatched(ctx, models.UnmatchedFilter{Page: 1, Limit: 20})
		require.NoError(t, err)
		assert.Zero(t, total)

		products, fully, err := s.matches.MatchingSummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), products)
		assert.Equal(t, int64(2), fully)
	})

	t.Run("ghost cleanup and drops", func(t *testing.T) {
		removed, err := s.matches.DeleteExcept(ctx, serum, []string{"AQUA", "GLYCERINE"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		records, err := s.matches.ListByProduct(ctx, serum)
		require.NoError(t, err)
		assert.Len(t, records, 2)

		deleted, err := s.matches.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), deleted)
		require.NoError(t, s.matches.Truncate(ctx))
	})

	t.Run("products", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			s.addProduct(t, "Bulk", "Item", "Aqua")
		}
		count, err := s.products.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)

		var seen []uuid.UUID
		batches := 0
		require.NoError(t, s.products.IterateIDs(ctx, 2, func(ids []uuid.UUID) error {
			batches++
			seen = append(seen, ids...)
			return nil
		}))
		assert.Len(t, seen, 5)
		assert.Equal(t, 3, batches)
		for i := 1; i < len(seen); i++ {
			assert.Less(t, seen[i-1].String(), seen[i].String())
		}

		require.NoError(t, s.products.UpdateIngredients(ctx, serum, []string{"Aqua"}, []string{"Aqua", "Glycerine"}))
		require.NoError(t, s.products.UpdateIngredients(ctx, serum, []string{"Glycerin"}, []string{"Aqua"}))
		p, err := s.products.GetByID(ctx, serum)
		require.NoError(t, err)
		assert.Equal(t, []string{"Glycerin"}, []string(p.Ingredients))
		assert.Equal(t, []string{"Aqua", "Glycerine"}, []string(p.OriginalIngredients))

		err = s.products.UpdateIngredients(ctx, uuid.New(), nil, nil)
		assert.Equal(t, errkind.NotFound, errkind.Of(err))
	})

	t.Run("catalog", func(t *testing.T) {
		names, err := s.catalog.ListNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"AQUA", "GLYCERIN", "NIACINAMIDE"}, []string{names[0].CanonicalName, names[1].CanonicalName, names[2].CanonicalName})

		hits, err := s.catalog.Search(ctx, "GLYC", "glyc", 20)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, glycerin, hits[0].ID)

		hits, err = s.catalog.Search(ctx, "HUMECTANT", "humectant", 20)
		require.NoError(t, err)
		assert.Len(t, hits, 1)

		entries, total, err := s.catalog.List(ctx, "", 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, entries, 2)
		assert.Equal(t, "AQUA", entries[0].CanonicalName)

		_, total, err = s.catalog.List(ctx, "cerin", 1, 20)
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		require.NoError(t, s.catalog.UpdateClassification(ctx, glycerin, models.ClassificationExcipient,
			models.ClassificationHits{Excipient: []string{"HUMECTANT"}}, "keywords-v1"))
		entry, err := s.catalog.GetByID(ctx, glycerin)
		require.NoError(t, err)
		assert.Equal(t, models.ClassificationExcipient, entry.Classification)
		assert.Equal(t, []string{"HUMECTANT"}, entry.ClassificationHits.Data.Excipient)
		require.NotNil(t, entry.ClassifiedAt)

		require.NoError(t, s.catalog.UpdateClassification(ctx, glycerin, models.ClassificationUnknown, models.ClassificationHits{Active: []string{"X"}}, "keywords-v1"))
		entry, err = s.catalog.GetByID(ctx, glycerin)
		require.NoError(t, err)
		assert.Nil(t, entry.ClassifiedAt)
		assert.Nil(t, entry.ClassificationSource)
		assert.Empty(t, entry.ClassificationHits.Data.Active)

		page, err := s.catalog.ListEntries(ctx, entries[0].Seq, 10)
		require.NoError(t, err)
		assert.Len(t, page, 2)

		many, err := s.catalog.GetMany(ctx, []string{aqua, niacinamide, "missing"})
		require.NoError(t, err)
		assert.Len(t, many, 2)

		_, err = s.catalog.GetByID(ctx, "missing")
		assert.Equal(t, errkind.NotFound, errkind.Of(err))
	})

	t.Run("scores", func(t *testing.T) {
		total, err := s.scores.SaveRuleSlot(ctx, cream, models.RuleSlot{RuleIndex: 1, RuleID: "R01", RuleScore: 19.5})
		require.NoError(t, err)
		assert.Equal(t, 19.5, total)

		total, err = s.scores.SaveRuleSlot(ctx, cream, models.RuleSlot{RuleIndex: 2, RuleID: "R02", RuleScore: 5})
		require.NoError(t, err)
		assert.Equal(t, 24.5, total)

		total, err = s.scores.SaveRuleSlot(ctx, cream, models.RuleSlot{RuleIndex: 1, RuleID: "R01", RuleScore: 30})
		require.NoError(t, err)
		assert.Equal(t, 35.0, total)

		score, err := s.scores.Get(ctx, cream)
		require.NoError(t, err)
		assert.Len(t, score.Rules.Data, 2)

		_, err = s.scores.Get(ctx, serum)
		assert.Equal(t, errkind.NotFound, errkind.Of(err))
	})
}
