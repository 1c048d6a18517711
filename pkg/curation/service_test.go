package curation

import (
	"context"
	"sync"
	"testing"

	"github.com/PatrickalKhouri/ingredient-manager/internal/testutil/memstore"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/logging"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/matching"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
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
	matcher   *matching.Service
	service   *Service
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	f := &fixture{
		catalog:   memstore.NewCatalog(names...),
		aliases:   memstore.NewAliases(),
		matches:   memstore.NewMatches(),
		products:  memstore.NewProducts(),
		publisher: &recordingPublisher{},
	}
	f.matches.Products = f.products

	logger := logging.Silent()
	f.matcher = matching.NewService(logger, matching.NewCatalogCache(f.catalog, logger), f.aliases, f.matches, f.products, nil, matching.DefaultConfig())
	f.service = NewService(logger, f.catalog, f.aliases, f.matches, f.publisher)
	return f
}

func (f *fixture) resolve(t *testing.T, brand, name string, ingredients ...string) *models.Product {
	t.Helper()
	product := f.products.Add(brand, name, ingredients...)
	_, err := f.matcher.ResolveProduct(context.Background(), product.ID.String())
	require.NoError(t, err)
	return product
}

func TestCreateAliasAppliesToRecords(t *testing.T) {
	f := newFixture(t, "AQUA", "GLYCERIN")
	p1 := f.resolve(t, "Acme", "Toner", "Eau Purifiee", "Glycerin")
	p2 := f.resolve(t, "Acme", "Serum", "eau purifiée")

	result, err := f.service.CreateAlias(context.Background(), CreateAliasInput{Alias: "  Eau   Purifiée ", CatalogID: f.catalog.Entry("AQUA").ID})
	require.NoError(t, err)

	assert.Equal(t, "Eau Purifiée", result.Alias)
	assert.Equal(t, "EAU PURIFIEE", result.AliasNormalized)
	assert.Equal(t, f.catalog.Entry("AQUA").ID, result.CatalogID)
	assert.Equal(t, int64(2), result.Applied)
	assert.NotEmpty(t, result.ID)

	for _, p := range []*models.Product{p1, p2} {
		record, err := f.matches.Get(context.Background(), p.ID, "EAU PURIFIEE")
		require.NoError(t, err)
		assert.Equal(t, models.MatchMethodAlias, record.Method)
		assert.Equal(t, f.catalog.Entry("AQUA").ID, *record.CatalogID)
		assert.Equal(t, models.DefaultAliasConfidence, *record.Score)
		assert.Empty(t, record.Suggestions.Data)
	}

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeAliasApplied, f.publisher.events[0].Type)
	assert.Equal(t, int64(2), f.publisher.events[0].Payload.(events.AliasApplied).Applied)

	// later resolutions pick the alias up directly
	p3 := f.resolve(t, "Other", "Mist", "EAU PURIFIEE")
	record, err := f.matches.Get(context.Background(), p3.ID, "EAU PURIFIEE")
	require.NoError(t, err)
	assert.Equal(t, models.MatchMethodAlias, record.Method)
}

func TestCreateAliasSkipsManualRecords(t *testing.T) {
	f := newFixture(t, "AQUA", "GLYCERIN")
	product := f.resolve(t, "Acme", "Toner", "Eau Purifiee")

	_, err := f.matcher.SetManual(context.Background(), matching.ManualMatchInput{
		ProductID: product.ID.String(),
		Label:     "Eau Purifiee",
		CatalogID: f.catalog.Entry("GLYCERIN").ID,
	})
	require.NoError(t, err)

	result, err := f.service.CreateAlias(context.Background(), CreateAliasInput{Alias: "Eau Purifiee", CatalogID: f.catalog.Entry("AQUA").ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Applied)

	record, err := f.matches.Get(context.Background(), product.ID, "EAU PURIFIEE")
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusManual, record.Status)
	assert.Equal(t, f.catalog.Entry("GLYCERIN").ID, *record.CatalogID)
}

func TestCreateAliasOverwritesMapping(t *testing.T) {
	f := newFixture(t, "AQUA", "GLYCERIN")

	first, err := f.service.CreateAlias(context.Background(), CreateAliasInput{Alias: "Eau", CatalogID: f.catalog.Entry("AQUA").ID})
	require.NoError(t, err)
	second, err := f.service.CreateAlias(context.Background(), CreateAliasInput{Alias: "eau", CatalogID: f.catalog.Entry("GLYCERIN").ID})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, f.catalog.Entry("GLYCERIN").ID, second.CatalogID)
}

func TestCreateAliasErrors(t *testing.T) {
	f := newFixture(t, "AQUA")

	tests := []struct {
		name string
		in   CreateAliasInput
		kind errkind.Kind
	}{
		{"empty alias", CreateAliasInput{Alias: "   ", CatalogID: f.catalog.Entry("AQUA").ID}, errkind.InvalidArgument},
		{"punctuation only", CreateAliasInput{Alias: "*!*", CatalogID: f.catalog.Entry("AQUA").ID}, errkind.InvalidArgument},
		{"missing catalog id", CreateAliasInput{Alias: "Eau"}, errkind.InvalidArgument},
		{"unknown catalog id", CreateAliasInput{Alias: "Eau", CatalogID: "missing"}, errkind.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CreateAlias(context.Background(), tt.in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, errkind.Of(err))
		})
	}

	f.aliases.FailUpsert = errkind.New(errkind.Conflict, "duplicate key value")
	_, err := f.service.CreateAlias(context.Background(), CreateAliasInput{Alias: "Eau", CatalogID: f.catalog.Entry("AQUA").ID})
	assert.Equal(t, errkind.Conflict, errkind.Of(err))
}

func TestListAndRemoveAliases(t *testing.T) {
	f := newFixture(t, "AQUA", "GLYCERIN")
	for _, alias := range []string{"Eau", "Water Purified", "Glycerine"} {
		target := "AQUA"
		if alias == "Glycerine" {
			target = "GLYCERIN"
		}
		_, err := f.service.CreateAlias(context.Background(), CreateAliasInput{Alias: alias, CatalogID: f.catalog.Entry(target).ID})
		require.NoError(t, err)
	}

	page, err := f.service.ListAliases(context.Background(), "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "EAU", page.Items[0].AliasNormalized)
	require.NotNil(t, page.Items[0].CanonicalName)
	assert.Equal(t, "AQUA", *page.Items[0].CanonicalName)
	assert.Equal(t, "GLYCERINE", page.Items[1].AliasNormalized)

	filtered, err := f.service.ListAliases(context.Background(), "water", 0, 0)
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, models.DefaultPageSize, filtered.Limit)

	removed, err := f.service.RemoveAlias(context.Background(), page.Items[0].ID.String())
	require.NoError(t, err)
	assert.True(t, removed.Deleted)

	_, err = f.service.RemoveAlias(context.Background(), page.Items[0].ID.String())
	assert.Equal(t, errkind.NotFound, errkind.Of(err))

	_, err = f.service.RemoveAlias(context.Background(), "42")
	assert.Equal(t, errkind.InvalidArgument, errkind.Of(err))
}

func TestSetClassificationSpansProducts(t *testing.T) {
	f := newFixture(t, "AQUA")
	p1 := f.resolve(t, "Acme", "Toner", "Aqua", "May Contain")
	p2 := f.resolve(t, "Other", "Cream", "May contain")

	record, err := f.matches.Get(context.Background(), p1.ID, "MAY CONTAIN")
	require.NoError(t, err)

	result, err := f.service.SetClassification(context.Background(), record.ID.String(), models.LabelNonIngredient)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, int64(2), result.Updated)

	other, err := f.matches.Get(context.Background(), p2.ID, "MAY CONTAIN")
	require.NoError(t, err)
	assert.Equal(t, models.LabelNonIngredient, other.Classification)

	again, err := f.service.SetClassification(context.Background(), record.ID.String(), models.LabelNonIngredient)
	require.NoError(t, err)
	assert.False(t, again.OK)
	assert.Equal(t, int64(0), again.Updated)

	_, err = f.service.SetClassification(context.Background(), record.ID.String(), "excipient")
	assert.Equal(t, errkind.InvalidArgument, errkind.Of(err))

	_, err = f.service.SetClassification(context.Background(), "nope", models.LabelIngredient)
	assert.Equal(t, errkind.InvalidArgument, errkind.Of(err))

	_, err = f.service.SetClassification(context.Background(), "7b0c8f57-0c4f-4c3e-9f55-4f6f0f2b8a10", models.LabelIngredient)
	assert.Equal(t, errkind.NotFound, errkind.Of(err))
}

func TestUnmatchedQueue(t *testing.T) {
	f := newFixture(t, "AQUA")
	f.resolve(t, "Acme", "Hydrating Toner", "Aqua", "Mystery Extract", "Made In France")
	f.resolve(t, "Other", "Night Cream", "Unknown Oil")

	all, err := f.service.Unmatched(context.Background(), models.UnmatchedFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 1, all.Page)
	assert.Equal(t, 1, all.TotalPages)

	byBrand, err := f.service.Unmatched(context.Background(), models.UnmatchedFilter{Brand: " Acme "})
	require.NoError(t, err)
	assert.Equal(t, 2, byBrand.Total)
	for _, row := range byBrand.Items {
		assert.Equal(t, "Acme", row.Brand)
		assert.Equal(t, "Hydrating Toner", row.ProductName)
	}

	byIngredient, err := f.service.Unmatched(context.Background(), models.UnmatchedFilter{Ingredient: "extract"})
	require.NoError(t, err)
	require.Len(t, byIngredient.Items, 1)
	assert.Equal(t, "Mystery Extract", byIngredient.Items[0].Label)

	byName, err := f.service.Unmatched(context.Background(), models.UnmatchedFilter{ProductName: "night"})
	require.NoError(t, err)
	assert.Equal(t, 1, byName.Total)

	// flagged labels leave the queue
	record, err := f.matches.Get(context.Background(), byBrand.Items[1].ProductID, "MADE IN FRANCE")
	require.NoError(t, err)
	_, err = f.service.SetClassification(context.Background(), record.ID.String(), models.LabelNonIngredient)
	require.NoError(t, err)

	paged, err := f.service.Unmatched(context.Background(), models.UnmatchedFilter{Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, paged.Total)
	assert.Equal(t, 2, paged.TotalPages)
	assert.Len(t, paged.Items, 1)
}
