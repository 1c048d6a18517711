package matching

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/PatrickalKhouri/ingredient-manager/internal/testutil/memstore"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/logging"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evts ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

type fixture struct {
	catalog   *memstore.Catalog
	aliases   *memstore.Aliases
	matches   *memstore.Matches
	products  *memstore.Products
	publisher *recordingPublisher
	service   *Service
}

func newFixture(t *testing.T, config Config, names ...string) *fixture {
	t.Helper()
	f := &fixture{
		catalog:   memstore.NewCatalog(names...),
		aliases:   memstore.NewAliases(),
		matches:   memstore.NewMatches(),
		products:  memstore.NewProducts(),
		publisher: &recordingPublisher{},
	}
	logger := logging.Silent()
	f.service = NewService(logger, NewCatalogCache(f.catalog, logger), f.aliases, f.matches, f.products, f.publisher, config)
	return f
}

func TestMatchExactForEveryCatalogName(t *testing.T) {
	names := []string{"AQUA", "GLYCERIN", "SODIUM HYALURONATE", "1,2-HEXANEDIOL", "CI 77491", "PARFUM"}
	f := newFixture(t, Config{}, names...)

	for _, name := range names {
		record, err := f.service.Match(context.Background(), name)
		require.NoError(t, err, name)
		assert.Equal(t, models.MatchMethodExact, record.Method, name)
		assert.Equal(t, f.catalog.Entry(name).ID, *record.CatalogID, name)
		assert.Equal(t, 1.0, *record.Score, name)
		assert.Empty(t, record.Suggestions.Data, name)
	}
}

func TestMatchExactOnCandidate(t *testing.T) {
	f := newFixture(t, Config{}, "PARFUM", "FRAGRANCE")

	record, err := f.service.Match(context.Background(), "Parfum (Fragrance)")
	require.NoError(t, err)
	assert.Equal(t, models.MatchMethodExact, record.Method)
	assert.Equal(t, f.catalog.Entry("PARFUM").ID, *record.CatalogID)
	assert.Equal(t, "Parfum (Fragrance)", record.Label)
	assert.Equal(t, "PARFUM FRAGRANCE", record.LabelNormalized)
}

func TestMatchAlias(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	confidence := 0.9
	_, err := f.aliases.Upsert(context.Background(), &models.Alias{
		AliasText:       "Eau",
		AliasNormalized: "EAU",
		CatalogID:       f.catalog.Entry("AQUA").ID,
		Confidence:      &confidence,
	})
	require.NoError(t, err)

	record, err := f.service.Match(context.Background(), "eau")
	require.NoError(t, err)
	assert.Equal(t, models.MatchMethodAlias, record.Method)
	assert.Equal(t, f.catalog.Entry("AQUA").ID, *record.CatalogID)
	assert.Equal(t, 0.9, *record.Score)
	// the stored label is the input label, not the candidate
	assert.Equal(t, "eau", record.Label)
}

func TestMatchAliasDefaultConfidence(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	_, err := f.aliases.Upsert(context.Background(), &models.Alias{
		AliasText:       "Water",
		AliasNormalized: "WATER",
		CatalogID:       f.catalog.Entry("AQUA").ID,
	})
	require.NoError(t, err)

	record, err := f.service.Match(context.Background(), "Purified (Water)")
	require.NoError(t, err)
	assert.Equal(t, models.MatchMethodAlias, record.Method)
	assert.Equal(t, models.DefaultAliasConfidence, *record.Score)
}

func TestMatchAliasStoreFailure(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	f.aliases.FailGet = true

	_, err := f.service.Match(context.Background(), "Eau")
	require.Error(t, err)
	assert.True(t, errkind.IsRetryable(err))
}

// fixedSimilarity scores by catalog name, ignoring the candidate.
func fixedSimilarity(scores map[string]float64) Similarity {
	return func(_, name string) float64 {
		return scores[name]
	}
}

func TestMatchFuzzyThreshold(t *testing.T) {
	tests := []struct {
		name       string
		best       float64
		wantMethod models.MatchMethod
	}{
		{"just below", 0.44, models.MatchMethodNone},
		{"at threshold", 0.45, models.MatchMethodFuzzy},
		{"above", 0.8, models.MatchMethodFuzzy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := fixedSimilarity(map[string]float64{"TARGET": tt.best, "OTHER": 0.31, "FAR": 0.1})
			f := newFixture(t, Config{Similarity: sim}, "FAR", "OTHER", "TARGET")

			record, err := f.service.Match(context.Background(), "something")
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, record.Method)

			suggestions := record.Suggestions.Data
			require.Len(t, suggestions, 2)
			assert.Equal(t, "TARGET", suggestions[0].CanonicalName)
			assert.Equal(t, "OTHER", suggestions[1].CanonicalName)

			if tt.wantMethod == models.MatchMethodFuzzy {
				assert.Equal(t, f.catalog.Entry("TARGET").ID, *record.CatalogID)
				assert.Equal(t, tt.best, *record.Score)
			} else {
				assert.Nil(t, record.CatalogID)
				assert.Nil(t, record.Score)
			}
		})
	}
}

func TestMatchSuggestionsCappedAndOrdered(t *testing.T) {
	sim := fixedSimilarity(map[string]float64{
		"A": 0.35, "B": 0.40, "C": 0.35, "D": 0.31, "E": 0.42, "F": 0.33, "G": 0.2,
	})
	f := newFixture(t, Config{Similarity: sim}, "A", "B", "C", "D", "E", "F", "G")

	record, err := f.service.Match(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, models.MatchMethodNone, record.Method)

	var names []string
	for _, s := range record.Suggestions.Data {
		names = append(names, s.CanonicalName)
	}
	// ties keep catalog order: A before C
	assert.Equal(t, []string{"E", "B", "A", "C", "F"}, names)
}

func TestMatchFuzzyEarliestCandidateWins(t *testing.T) {
	// the first candidate clears the threshold with a weaker score than a later candidate would
	sim := func(cand, name string) float64 {
		switch {
		case cand == "ALPHA (BETA)" && name == "ALPHA X":
			return 0.5
		case cand == "BETA" && name == "BETA X":
			return 0.95
		}
		return 0
	}
	f := newFixture(t, Config{Similarity: sim}, "ALPHA X", "BETA X")

	record, err := f.service.Match(context.Background(), "Alpha (Beta)")
	require.NoError(t, err)
	assert.Equal(t, models.MatchMethodFuzzy, record.Method)
	assert.Equal(t, f.catalog.Entry("ALPHA X").ID, *record.CatalogID)
}

func TestMatchNoneMergesSuggestionsAcrossCandidates(t *testing.T) {
	sim := func(cand, name string) float64 {
		switch {
		case cand == "ALPHA (BETA)" && name == "ONE":
			return 0.32
		case cand == "ALPHA" && name == "ONE":
			return 0.40
		case cand == "BETA" && name == "TWO":
			return 0.36
		}
		return 0
	}
	f := newFixture(t, Config{Similarity: sim}, "ONE", "TWO")

	record, err := f.service.Match(context.Background(), "Alpha (Beta)")
	require.NoError(t, err)
	assert.Equal(t, models.MatchMethodNone, record.Method)
	require.Len(t, record.Suggestions.Data, 2)
	assert.Equal(t, "ONE", record.Suggestions.Data[0].CanonicalName)
	assert.Equal(t, 0.40, record.Suggestions.Data[0].Score)
	assert.Equal(t, "TWO", record.Suggestions.Data[1].CanonicalName)
}

func TestMatchEmptyLabel(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	_, err := f.service.Match(context.Background(), " *** ")
	assert.Equal(t, errkind.InvalidArgument, errkind.Of(err))
}

func TestMatchCatalogLoadFailureIsFatal(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	f.catalog.FailLoads = 1

	_, err := f.service.Match(context.Background(), "aqua")
	require.Error(t, err)
	assert.Equal(t, errkind.Fatal, errkind.Of(err))
	assert.False(t, errkind.IsRetryable(err))
}

func TestResolveProduct(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA", "GLYCERIN", "1,2-HEXANEDIOL")
	product := f.products.Add("Brand", "Serum", "Aqua", "Glycerin", "1,2-Hexanediol", "aqua", "Unobtainium")

	result, err := f.service.ResolveProduct(context.Background(), product.ID.String())
	require.NoError(t, err)
	assert.Equal(t, product.ID.String(), result.ProductID)
	assert.Equal(t, 4, result.Resolved)
	assert.Equal(t, 1, result.Skipped)

	records, err := f.matches.ListByProduct(context.Background(), product.ID)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "AQUA", records[0].LabelNormalized)
	assert.Equal(t, 0, records[0].Position)
	assert.Equal(t, models.MatchMethodExact, records[2].Method)
	assert.Equal(t, models.MatchMethodNone, records[3].Method)
	assert.Equal(t, 4, records[3].Position)

	assert.Len(t, f.publisher.events, 4)
	assert.Equal(t, events.TypeMatchResolved, f.publisher.events[0].Type)
}

func TestResolveProductIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	product := f.products.Add("Brand", "Toner", "Aqua", "Rosewater")

	_, err := f.service.ResolveProduct(context.Background(), product.ID.String())
	require.NoError(t, err)
	first := f.matches.All()

	_, err = f.service.ResolveProduct(context.Background(), product.ID.String())
	require.NoError(t, err)
	second := f.matches.All()

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Method, second[i].Method)
		assert.Equal(t, first[i].CatalogID, second[i].CatalogID)
	}
}

func TestResolveProductErrors(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")

	_, err := f.service.ResolveProduct(context.Background(), "not-a-uuid")
	assert.Equal(t, errkind.InvalidArgument, errkind.Of(err))

	_, err = f.service.ResolveProduct(context.Background(), uuid.New().String())
	assert.Equal(t, errkind.NotFound, errkind.Of(err))

	product := f.products.Add("Brand", "Cream", "Aqua")
	f.matches.FailUpserts[product.ID] = errkind.Wrap(errkind.Transient, errors.New("connection reset"), "upsert")
	_, err = f.service.ResolveProduct(context.Background(), product.ID.String())
	assert.Equal(t, errkind.Transient, errkind.Of(err))
}

func TestResolveProductCanceled(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	product := f.products.Add("Brand", "Cream", "Aqua")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.service.ResolveProduct(ctx, product.ID.String())
	assert.Equal(t, errkind.Timeout, errkind.Of(err))
}

func TestManualRecordSurvivesResolve(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA", "GLYCERIN")
	product := f.products.Add("Brand", "Gel", "Aqua")

	_, err := f.service.SetManual(context.Background(), ManualMatchInput{
		ProductID: product.ID.String(),
		Label:     "Aqua",
		CatalogID: f.catalog.Entry("GLYCERIN").ID,
	})
	require.NoError(t, err)

	result, err := f.service.ResolveProduct(context.Background(), product.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Resolved)
	assert.Equal(t, 1, result.Skipped)

	record, err := f.matches.Get(context.Background(), product.ID, "AQUA")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusManual, record.Status)
	assert.Equal(t, models.MatchMethodManual, record.Method)
	assert.Equal(t, f.catalog.Entry("GLYCERIN").ID, *record.CatalogID)
}

func TestManualRecordFollowsReorderedList(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA", "GLYCERIN", "NIACINAMIDE")
	product := f.products.Add("Brand", "Serum", "Aqua", "Glycerin", "Niacinamide")
	ctx := context.Background()

	_, err := f.service.SetManual(ctx, ManualMatchInput{
		ProductID: product.ID.String(),
		Label:     "Niacinamide",
		CatalogID: f.catalog.Entry("NIACINAMIDE").ID,
	})
	require.NoError(t, err)
	_, err = f.service.ResolveProduct(ctx, product.ID.String())
	require.NoError(t, err)

	require.NoError(t, f.products.UpdateIngredients(ctx, product.ID, []string{"Niacinamide", "Aqua", "Glycerin"}, nil))
	result, err := f.service.ResolveProduct(ctx, product.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	record, err := f.matches.Get(ctx, product.ID, "NIACINAMIDE")
	require.NoError(t, err)
	assert.Equal(t, 0, record.Position)
	assert.Equal(t, models.MatchStatusManual, record.Status)
	assert.Equal(t, f.catalog.Entry("NIACINAMIDE").ID, *record.CatalogID)

	aqua, err := f.matches.Get(ctx, product.ID, "AQUA")
	require.NoError(t, err)
	assert.Equal(t, 1, aqua.Position)
}

func TestSetManualValidation(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	product := f.products.Add("Brand", "Gel", "Aqua")
	tooHigh := 1.5

	tests := []struct {
		name string
		in   ManualMatchInput
		want errkind.Kind
	}{
		{"missing label", ManualMatchInput{ProductID: product.ID.String(), CatalogID: "x"}, errkind.InvalidArgument},
		{"bad product id", ManualMatchInput{ProductID: "nope", Label: "Aqua", CatalogID: "x"}, errkind.InvalidArgument},
		{"score out of range", ManualMatchInput{ProductID: product.ID.String(), Label: "Aqua", CatalogID: "x", Score: &tooHigh}, errkind.InvalidArgument},
		{"unknown catalog entry", ManualMatchInput{ProductID: product.ID.String(), Label: "Aqua", CatalogID: "missing"}, errkind.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.SetManual(context.Background(), tt.in)
			assert.Equal(t, tt.want, errkind.Of(err))
		})
	}
}

func TestClearRerunsCascade(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA", "GLYCERIN")
	product := f.products.Add("Brand", "Gel", "Glycerin", "Aqua")

	_, err := f.service.SetManual(context.Background(), ManualMatchInput{
		ProductID: product.ID.String(),
		Label:     "Aqua",
		CatalogID: f.catalog.Entry("GLYCERIN").ID,
	})
	require.NoError(t, err)

	ack, err := f.service.Clear(context.Background(), product.ID.String(), "Aqua")
	require.NoError(t, err)
	assert.True(t, ack.OK)

	record, err := f.matches.Get(context.Background(), product.ID, "AQUA")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusAuto, record.Status)
	assert.Equal(t, models.MatchMethodExact, record.Method)
	assert.Equal(t, f.catalog.Entry("AQUA").ID, *record.CatalogID)
	assert.Equal(t, 1, record.Position)
}

func TestResolveKeepsClassification(t *testing.T) {
	f := newFixture(t, Config{}, "AQUA")
	product := f.products.Add("Brand", "Gel", "Made with love")

	_, err := f.service.ResolveProduct(context.Background(), product.ID.String())
	require.NoError(t, err)
	_, err = f.matches.SetClassification(context.Background(), "MADE WITH LOVE", models.LabelNonIngredient)
	require.NoError(t, err)

	_, err = f.service.ResolveProduct(context.Background(), product.ID.String())
	require.NoError(t, err)

	record, err := f.matches.Get(context.Background(), product.ID, "MADE WITH LOVE")
	require.NoError(t, err)
	assert.Equal(t, models.LabelNonIngredient, record.Classification)
}
