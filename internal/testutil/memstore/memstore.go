// Package memstore holds in-memory stand-ins for the postgres repositories, used by service tests.
package memstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/google/uuid"
)

// ErrInjected is returned by stores configured to fail.
var ErrInjected = errors.New("injected failure")

type Catalog struct {
	mu      sync.Mutex
	entries []models.CatalogEntry
	// FailLoads makes the next n ListNames calls fail.
	FailLoads int
	Loads     int
}

func NewCatalog(names ...string) *Catalog {
	c := &Catalog{}
	for _, name := range names {
		c.Add(name)
	}
	return c
}

// Add appends an entry whose id is derived from its position.
func (c *Catalog) Add(name string, functions ...string) models.CatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := models.CatalogEntry{
		ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String(),
		Seq:            int64(len(c.entries) + 1),
		CanonicalName:  name,
		SearchKey:      normalizers.NormalizeLabel(name),
		Functions:      functions,
		Classification: models.ClassificationUnknown,
		CreatedAt:      time.Now().UTC(),
	}
	c.entries = append(c.entries, entry)
	return entry
}

func (c *Catalog) ListNames(ctx context.Context) ([]models.CatalogName, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Loads++
	if c.FailLoads > 0 {
		c.FailLoads--
		return nil, ErrInjected
	}
	names := make([]models.CatalogName, len(c.entries))
	for i, e := range c.entries {
		names[i] = models.CatalogName{ID: e.ID, CanonicalName: e.CanonicalName}
	}
	return names, nil
}

func (c *Catalog) GetByID(ctx context.Context, id string) (*models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].ID == id {
			e := c.entries[i]
			return &e, nil
		}
	}
	return nil, errkind.Newf(errkind.NotFound, "catalog entry %s does not exist", id)
}

func (c *Catalog) ListEntries(ctx context.Context, afterSeq int64, limit int) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.CatalogEntry
	for _, e := range c.entries {
		if e.Seq > afterSeq {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (c *Catalog) UpdateClassification(ctx context.Context, id string, classification models.Classification, hits models.ClassificationHits, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].ID == id {
			now := time.Now().UTC()
			c.entries[i].Classification = classification
			c.entries[i].ClassificationHits.Data = hits
			c.entries[i].ClassificationSource = &source
			c.entries[i].ClassifiedAt = &now
			if classification == models.ClassificationUnknown {
				c.entries[i].ClassificationHits.Data = models.ClassificationHits{}
				c.entries[i].ClassificationSource = nil
				c.entries[i].ClassifiedAt = nil
			}
			return nil
		}
	}
	return errkind.Newf(errkind.NotFound, "catalog entry %s does not exist", id)
}

// Search matches the normalized key or the raw query against name, CAS, EC and functions.
func (c *Catalog) Search(ctx context.Context, normalized, raw string, limit int) ([]models.CatalogName, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.CatalogName
	for _, e := range c.entries {
		hit := strings.Contains(e.SearchKey, normalized) || containsFold(e.CanonicalName, raw)
		if e.CAS != nil && containsFold(*e.CAS, raw) {
			hit = true
		}
		if e.EC != nil && containsFold(*e.EC, raw) {
			hit = true
		}
		for _, f := range e.Functions {
			hit = hit || containsFold(f, raw)
		}
		if hit {
			out = append(out, models.CatalogName{ID: e.ID, CanonicalName: e.CanonicalName})
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (c *Catalog) List(ctx context.Context, query string, page, limit int) ([]models.CatalogEntry, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var all []models.CatalogEntry
	for _, e := range c.entries {
		if query == "" || containsFold(e.CanonicalName, query) {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CanonicalName < all[j].CanonicalName })
	return paginate(all, page, limit), len(all), nil
}

func (c *Catalog) Entry(name string) models.CatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		if e.CanonicalName == name {
			return e
		}
	}
	return models.CatalogEntry{}
}

type Aliases struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*models.Alias
	FailGet    bool
	FailUpsert error
}

func NewAliases() *Aliases {
	return &Aliases{byID: map[uuid.UUID]*models.Alias{}}
}

func (a *Aliases) GetByNormalized(ctx context.Context, aliasNormalized string) (*models.Alias, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.FailGet {
		return nil, errkind.Wrap(errkind.Transient, ErrInjected, "select alias")
	}
	for _, alias := range a.byID {
		if alias.AliasNormalized == aliasNormalized {
			cp := *alias
			return &cp, nil
		}
	}
	return nil, errkind.Newf(errkind.NotFound, "alias %s does not exist", aliasNormalized)
}

func (a *Aliases) GetByID(ctx context.Context, id uuid.UUID) (*models.Alias, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	alias, ok := a.byID[id]
	if !ok {
		return nil, errkind.Newf(errkind.NotFound, "alias %s does not exist", id)
	}
	cp := *alias
	return &cp, nil
}

// Upsert inserts or updates by alias_normalized.
func (a *Aliases) Upsert(ctx context.Context, alias *models.Alias) (*models.Alias, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.FailUpsert != nil {
		return nil, a.FailUpsert
	}
	now := time.Now().UTC()
	for _, existing := range a.byID {
		if existing.AliasNormalized == alias.AliasNormalized {
			existing.AliasText = alias.AliasText
			existing.CatalogID = alias.CatalogID
			existing.Confidence = alias.Confidence
			existing.UpdatedAt = now
			cp := *existing
			return &cp, nil
		}
	}
	cp := *alias
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt, cp.UpdatedAt = now, now
	a.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (a *Aliases) Delete(ctx context.Context, id uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.byID[id]; !ok {
		return errkind.Newf(errkind.NotFound, "alias %s does not exist", id)
	}
	delete(a.byID, id)
	return nil
}

func (a *Aliases) List(ctx context.Context, search string, page, limit int) ([]models.Alias, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var all []models.Alias
	for _, alias := range a.byID {
		if search == "" || strings.Contains(alias.AliasNormalized, strings.ToUpper(search)) {
			all = append(all, *alias)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].AliasNormalized < all[j].AliasNormalized })
	return paginate(all, page, limit), len(all), nil
}

type matchKey struct {
	productID uuid.UUID
	label     string
}

type Matches struct {
	mu      sync.Mutex
	records map[matchKey]*models.MatchRecord
	// FailUpserts makes Upsert fail for these products.
	FailUpserts map[uuid.UUID]error
	// Products joins the review queue; ListUnmatched returns nothing without it.
	Products *Products
	// FailTruncate makes Truncate fail so callers fall back to DeleteAll.
	FailTruncate bool
	Truncates    int
	Deletes      int
}

func NewMatches() *Matches {
	return &Matches{
		records:     map[matchKey]*models.MatchRecord{},
		FailUpserts: map[uuid.UUID]error{},
	}
}

func (m *Matches) Upsert(ctx context.Context, record *models.MatchRecord) (*models.MatchRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errkind.Wrap(errkind.Timeout, err, "upsert match record")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailUpserts[record.ProductID]; err != nil {
		return nil, false, err
	}

	key := matchKey{record.ProductID, record.LabelNormalized}
	now := time.Now().UTC()
	if existing, ok := m.records[key]; ok {
		if existing.Status == models.MatchStatusManual {
			if existing.Position != record.Position {
				existing.Position = record.Position
				existing.UpdatedAt = now
			}
			cp := *existing
			return &cp, false, nil
		}
		updated := *record
		updated.ID = existing.ID
		updated.Classification = existing.Classification
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = now
		m.records[key] = &updated
		cp := updated
		return &cp, true, nil
	}

	created := *record
	created.ID = uuid.New()
	if created.Classification == "" {
		created.Classification = models.LabelIngredient
	}
	created.CreatedAt, created.UpdatedAt = now, now
	m.records[key] = &created
	cp := created
	return &cp, true, nil
}

func (m *Matches) SetManual(ctx context.Context, record *models.MatchRecord) (*models.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := matchKey{record.ProductID, record.LabelNormalized}
	now := time.Now().UTC()
	stored := *record
	stored.ID = uuid.New()
	stored.CreatedAt = now
	if existing, ok := m.records[key]; ok {
		stored.ID = existing.ID
		stored.Classification = existing.Classification
		stored.CreatedAt = existing.CreatedAt
	}
	stored.UpdatedAt = now
	m.records[key] = &stored
	cp := stored
	return &cp, nil
}

func (m *Matches) Get(ctx context.Context, productID uuid.UUID, labelNormalized string) (*models.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[matchKey{productID, labelNormalized}]
	if !ok {
		return nil, errkind.New(errkind.NotFound, "match record not found")
	}
	cp := *record
	return &cp, nil
}

func (m *Matches) GetByID(ctx context.Context, id uuid.UUID) (*models.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range m.records {
		if record.ID == id {
			cp := *record
			return &cp, nil
		}
	}
	return nil, errkind.Newf(errkind.NotFound, "match %s does not exist", id)
}

func (m *Matches) Delete(ctx context.Context, productID uuid.UUID, labelNormalized string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, matchKey{productID, labelNormalized})
	return nil
}

func (m *Matches) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Truncates++
	if m.FailTruncate {
		return errkind.Wrap(errkind.Transient, ErrInjected, "truncate match_records")
	}
	m.records = map[matchKey]*models.MatchRecord{}
	return nil
}

func (m *Matches) DeleteAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	n := int64(len(m.records))
	m.records = map[matchKey]*models.MatchRecord{}
	return n, nil
}

// DeleteExcept removes a product's records whose key is not in keep.
func (m *Matches) DeleteExcept(ctx context.Context, productID uuid.UUID, keep []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := map[string]bool{}
	for _, k := range keep {
		kept[k] = true
	}
	var n int64
	for key := range m.records {
		if key.productID == productID && !kept[key.label] {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}

// ApplyAlias rewrites automatic records with the key to point at the alias target.
func (m *Matches) ApplyAlias(ctx context.Context, labelNormalized, catalogID string, score float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, record := range m.records {
		if record.LabelNormalized != labelNormalized {
			continue
		}
		if record.Status == models.MatchStatusManual || record.Status == models.MatchStatusRejected {
			continue
		}
		id := catalogID
		s := score
		record.CatalogID = &id
		record.Score = &s
		record.Method = models.MatchMethodAlias
		record.Status = models.MatchStatusAuto
		record.Suggestions.Data = []models.Suggestion{}
		record.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

func (m *Matches) SetClassification(ctx context.Context, labelNormalized string, classification models.LabelClassification) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, record := range m.records {
		if record.LabelNormalized == labelNormalized && record.Classification != classification {
			record.Classification = classification
			n++
		}
	}
	return n, nil
}

func (m *Matches) ListByProduct(ctx context.Context, productID uuid.UUID) ([]models.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.MatchRecord
	for key, record := range m.records {
		if key.productID == productID {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// All returns every record ordered by product then position.
func (m *Matches) All() []models.MatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.MatchRecord, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID.String() < out[j].ProductID.String()
		}
		return out[i].Position < out[j].Position
	})
	return out
}

type Products struct {
	mu       sync.Mutex
	products map[uuid.UUID]*models.Product
}

func NewProducts() *Products {
	return &Products{products: map[uuid.UUID]*models.Product{}}
}

func (p *Products) Add(brand, name string, ingredients ...string) *models.Product {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	product := &models.Product{
		ID:          uuid.New(),
		Brand:       brand,
		Name:        name,
		Ingredients: ingredients,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.products[product.ID] = product
	cp := *product
	return &cp
}

func (p *Products) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Timeout, err, "select product")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	product, ok := p.products[id]
	if !ok {
		return nil, errkind.Newf(errkind.NotFound, "product %s does not exist", id)
	}
	cp := *product
	return &cp, nil
}

func (p *Products) UpdateIngredients(ctx context.Context, id uuid.UUID, ingredients []string, original []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	product, ok := p.products[id]
	if !ok {
		return errkind.Newf(errkind.NotFound, "product %s does not exist", id)
	}
	product.Ingredients = ingredients
	if len(product.OriginalIngredients) == 0 && len(original) > 0 {
		product.OriginalIngredients = original
	}
	product.UpdatedAt = time.Now().UTC()
	return nil
}

// IterateIDs walks ids in ascending order in batches.
func (p *Products) IterateIDs(ctx context.Context, batchSize int, fn func(ids []uuid.UUID) error) error {
	p.mu.Lock()
	ids := make([]uuid.UUID, 0, len(p.products))
	for id := range p.products {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for start := 0; start < len(ids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(ids))
		if err := fn(ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Products) Count(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(len(p.products)), nil
}

func paginate[T any](items []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	return items[start:min(start+limit, len(items))]
}

func (c *Catalog) GetMany(ctx context.Context, ids []string) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.CatalogEntry
	for _, e := range c.entries {
		if want[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

// SetClassification overrides the classification of the named entry.
func (c *Catalog) SetClassification(name string, classification models.Classification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].CanonicalName == name {
			c.entries[i].Classification = classification
		}
	}
}

type Scores struct {
	mu     sync.Mutex
	scores map[uuid.UUID]*models.ProductScore
}

func NewScores() *Scores {
	return &Scores{scores: map[uuid.UUID]*models.ProductScore{}}
}

func (s *Scores) SaveRuleSlot(ctx context.Context, productID uuid.UUID, slot models.RuleSlot) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	score, ok := s.scores[productID]
	if !ok {
		score = &models.ProductScore{ProductID: productID, CreatedAt: now}
		s.scores[productID] = score
	}

	replaced := false
	for i := range score.Rules.Data {
		if score.Rules.Data[i].RuleIndex == slot.RuleIndex {
			score.Rules.Data[i] = slot
			replaced = true
		}
	}
	if !replaced {
		score.Rules.Data = append(score.Rules.Data, slot)
	}

	total := 0.0
	for _, r := range score.Rules.Data {
		total += r.RuleScore
	}
	score.TotalScore = total
	score.UpdatedAt = now
	return total, nil
}

func (s *Scores) Get(ctx context.Context, productID uuid.UUID) (*models.ProductScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.scores[productID]
	if !ok {
		return nil, errkind.Newf(errkind.NotFound, "no scores for product %s", productID)
	}
	cp := *score
	cp.Rules.Data = append([]models.RuleSlot(nil), score.Rules.Data...)
	return &cp, nil
}

// ListUnmatched returns unresolved ingredient records joined with their product, ordered by
// product then position.
func (m *Matches) ListUnmatched(ctx context.Context, filter models.UnmatchedFilter) ([]models.UnmatchedRecord, int, error) {
	if m.Products == nil {
		return nil, 0, nil
	}

	var rows []models.UnmatchedRecord
	for _, record := range m.All() {
		if record.Matched() || record.Classification == models.LabelNonIngredient {
			continue
		}
		if filter.Ingredient != "" && !containsFold(record.Label, filter.Ingredient) {
			continue
		}
		product, err := m.Products.GetByID(ctx, record.ProductID)
		if err != nil {
			continue
		}
		if filter.Brand != "" && product.Brand != filter.Brand {
			continue
		}
		if filter.ProductName != "" && !containsFold(product.Name, filter.ProductName) {
			continue
		}
		rows = append(rows, models.UnmatchedRecord{MatchRecord: record, Brand: product.Brand, ProductName: product.Name})
	}
	return paginate(rows, filter.Page, filter.Limit), len(rows), nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// MatchingSummary counts products and the products whose every ingredient record is matched.
func (m *Matches) MatchingSummary(ctx context.Context) (int64, int64, error) {
	if m.Products == nil {
		return 0, 0, nil
	}
	total, err := m.Products.Count(ctx)
	if err != nil {
		return 0, 0, err
	}

	counts := map[uuid.UUID][2]int{}
	for _, record := range m.All() {
		if record.Classification == models.LabelNonIngredient {
			continue
		}
		c := counts[record.ProductID]
		c[0]++
		if record.Matched() {
			c[1]++
		}
		counts[record.ProductID] = c
	}

	var fully int64
	for _, c := range counts {
		if c[0] > 0 && c[0] == c[1] {
			fully++
		}
	}
	return total, fully, nil
}
