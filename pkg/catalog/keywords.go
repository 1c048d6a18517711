package catalog

import (
	"fmt"

	"github.com/PatrickalKhouri/ingredient-manager/data"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type keywordsFile struct {
	Version   string   `yaml:"version" validate:"required"`
	Source    string   `yaml:"source" validate:"required"`
	Active    []string `yaml:"active" validate:"required,min=1"`
	Excipient []string `yaml:"excipient" validate:"required,min=1"`
}

// Keywords are the function names that mark a catalog entry active or excipient. Lookups are exact
// on the normalized function name.
type Keywords struct {
	Version   string
	Source    string
	active    map[string]string
	excipient map[string]string
}

func index(keywords []string) map[string]string {
	idx := make(map[string]string, len(keywords))
	for _, kw := range keywords {
		idx[normalizers.NormalizeName(kw)] = kw
	}
	return idx
}

func NewKeywords(version, source string, active, excipient []string) *Keywords {
	return &Keywords{
		Version:   version,
		Source:    source,
		active:    index(active),
		excipient: index(excipient),
	}
}

// LoadKeywords reads the keyword lists from path, or the embedded default when path is empty.
func LoadKeywords(path string) (*Keywords, error) {
	raw, err := data.Read(path, data.FunctionKeywordsPath)
	if err != nil {
		return nil, err
	}
	var file keywordsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse function keywords: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("invalid function keywords: %w", err)
	}
	return NewKeywords(file.Version, file.Source, file.Active, file.Excipient), nil
}

type Classified struct {
	Classification models.Classification
	Hits           models.ClassificationHits
	// Promoted is set when both lists hit and the entry was classified active.
	Promoted bool
}

func hits(functions []string, idx map[string]string) []string {
	out := []string{}
	for _, f := range functions {
		if kw, ok := idx[normalizers.NormalizeName(f)]; ok {
			out = append(out, kw)
		}
	}
	return out
}

// Classify labels an entry by its functions: active on any active hit, excipient on excipient hits
// only, unknown otherwise.
func (k *Keywords) Classify(functions []string) Classified {
	result := Classified{
		Classification: models.ClassificationUnknown,
		Hits: models.ClassificationHits{
			Active:    hits(functions, k.active),
			Excipient: hits(functions, k.excipient),
		},
	}

	switch {
	case len(result.Hits.Active) > 0:
		result.Classification = models.ClassificationActive
		result.Promoted = len(result.Hits.Excipient) > 0
	case len(result.Hits.Excipient) > 0:
		result.Classification = models.ClassificationExcipient
	}
	return result
}
