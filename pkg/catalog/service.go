package catalog

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
)

const (
	SearchLimit   = 20
	classifyBatch = 500
)

type Store interface {
	// ListEntries pages through the catalog by seq.
	ListEntries(ctx context.Context, afterSeq int64, limit int) ([]models.CatalogEntry, error)
	// UpdateClassification stores the outcome; unknown clears hits, source and timestamp.
	UpdateClassification(ctx context.Context, id string, classification models.Classification, hits models.ClassificationHits, source string) error
	Search(ctx context.Context, normalized, raw string, limit int) ([]models.CatalogName, error)
	List(ctx context.Context, query string, page, limit int) ([]models.CatalogEntry, int, error)
}

type Service struct {
	store    Store
	keywords *Keywords
	logger   ectologger.Logger
}

func NewService(logger ectologger.Logger, store Store, keywords *Keywords) *Service {
	return &Service{
		store:    store,
		keywords: keywords,
		logger:   logger,
	}
}

type ClassifyOptions struct {
	DryRun bool
	// Limit stops after that many scanned entries; zero scans everything.
	Limit int
}

type ClassifyReport struct {
	Scanned   int      `json:"scanned"`
	Written   int      `json:"written"`
	Active    int      `json:"active"`
	Promoted  int      `json:"promoted"`
	Excipient int      `json:"excipient"`
	Unknown   int      `json:"unknown"`
	Unknowns  []string `json:"unknowns"`
	Source    string   `json:"source"`
	DryRun    bool     `json:"dry_run"`
}

// Classify rewrites the classification of every catalog entry that lists functions. It always
// overwrites earlier classifications.
func (s *Service) Classify(ctx context.Context, opts ClassifyOptions) (*ClassifyReport, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.Classify")
	defer span.End()

	report := &ClassifyReport{Unknowns: []string{}, Source: s.keywords.Source, DryRun: opts.DryRun}
	var after int64

	for {
		entries, err := s.store.ListEntries(ctx, after, classifyBatch)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}
		after = entries[len(entries)-1].Seq

		for _, entry := range entries {
			if len(entry.Functions) == 0 {
				continue
			}
			if opts.Limit > 0 && report.Scanned >= opts.Limit {
				return s.finish(ctx, report), nil
			}
			report.Scanned++

			classified := s.keywords.Classify(entry.Functions)
			switch {
			case classified.Classification == models.ClassificationUnknown:
				report.Unknown++
				report.Unknowns = append(report.Unknowns, entry.CanonicalName)
			case classified.Promoted:
				report.Promoted++
			case classified.Classification == models.ClassificationActive:
				report.Active++
			default:
				report.Excipient++
			}

			report.Written++
			if opts.DryRun {
				continue
			}
			if err := s.store.UpdateClassification(ctx, entry.ID, classified.Classification, classified.Hits, s.keywords.Source); err != nil {
				s.logger.WithContext(ctx).WithError(err).WithField("catalog_id", entry.ID).Error("Failed to store classification")
				return nil, err
			}
		}
	}

	return s.finish(ctx, report), nil
}

func (s *Service) finish(ctx context.Context, report *ClassifyReport) *ClassifyReport {
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"scanned":   report.Scanned,
		"written":   report.Written,
		"active":    report.Active,
		"promoted":  report.Promoted,
		"excipient": report.Excipient,
		"unknown":   report.Unknown,
		"dry_run":   report.DryRun,
		"source":    report.Source,
	}).Info("Catalog classification finished")
	return report
}

// Search finds up to SearchLimit entries by normalized key, name, CAS, EC or function.
func (s *Service) Search(ctx context.Context, query string) ([]models.CatalogName, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.Search")
	defer span.End()

	raw := strings.TrimSpace(query)
	if raw == "" {
		return []models.CatalogName{}, nil
	}
	names, err := s.store.Search(ctx, normalizers.NormalizeLabel(raw), raw, SearchLimit)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []models.CatalogName{}
	}
	return names, nil
}

// List pages through entries ordered by name, optionally filtered by a name substring.
func (s *Service) List(ctx context.Context, query string, page, limit int) (*models.Page[models.CatalogEntry], error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Service.List")
	defer span.End()

	page, limit = models.PageBounds(page, limit)
	entries, total, err := s.store.List(ctx, strings.TrimSpace(query), page, limit)
	if err != nil {
		return nil, err
	}
	return models.NewPage(entries, page, limit, total), nil
}
