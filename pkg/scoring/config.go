package scoring

import (
	"fmt"

	"github.com/PatrickalKhouri/ingredient-manager/data"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/normalizers"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

type Awards struct {
	Top    float64 `yaml:"top" validate:"gte=0"`
	Middle float64 `yaml:"middle" validate:"gte=0"`
	Bottom float64 `yaml:"bottom" validate:"gte=0"`
	First  float64 `yaml:"first" validate:"gte=0"`
	Second float64 `yaml:"second" validate:"gte=0"`
}

type Scheme struct {
	Name   string `yaml:"name" validate:"required"`
	Awards Awards `yaml:"awards"`
}

type Bucketing struct {
	LargeListThreshold int    `yaml:"large_list_threshold" validate:"gt=0"`
	LargeListScheme    Scheme `yaml:"large_list_scheme"`
	SmallListScheme    Scheme `yaml:"small_list_scheme"`
	Indexing           string `yaml:"indexing" validate:"eq=zero_based"`
	TieBreaks          string `yaml:"tie_breaks"`
}

// R01Config is the versioned configuration of the active placement rule.
type R01Config struct {
	RuleID             string    `yaml:"rule_id" validate:"eq=R01"`
	Name               string    `yaml:"name"`
	Version            string    `yaml:"version" validate:"required"`
	Direction          string    `yaml:"direction" validate:"eq=bonus"`
	MaxPoints          float64   `yaml:"max_points" validate:"gt=0"`
	ExceptionsSource   string    `yaml:"exceptions_source"`
	ExceptionsMatching string    `yaml:"exceptions_matching"`
	Bucketing          Bucketing `yaml:"bucketing"`
	Scoring            struct {
		PointsPerActiveFormula string `yaml:"points_per_active_formula"`
		ExceptionsFullPoints   bool   `yaml:"exceptions_full_points"`
	} `yaml:"scoring"`
	Antioxidant struct {
		Function string `yaml:"function"`
	} `yaml:"antioxidant"`
}

// Exceptions is the set of canonical names that always earn full points.
type Exceptions struct {
	Version string
	names   map[string]bool
}

func NewExceptions(version string, names ...string) Exceptions {
	e := Exceptions{Version: version, names: make(map[string]bool, len(names))}
	for _, n := range names {
		e.names[normalizers.NormalizeName(n)] = true
	}
	return e
}

func (e Exceptions) Contains(name string) bool {
	return e.names[normalizers.NormalizeName(name)]
}

func (e Exceptions) Len() int {
	return len(e.names)
}

type exceptionsFile struct {
	Dataset     string   `yaml:"dataset"`
	Version     string   `yaml:"version" validate:"required"`
	MatchMode   string   `yaml:"match_mode"`
	Ingredients []string `yaml:"ingredients"`
}

// LoadR01Config reads the rule configuration from path, or the embedded default when path is empty.
func LoadR01Config(path string) (R01Config, error) {
	var cfg R01Config
	raw, err := data.Read(path, data.R01ConfigPath)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse R01 config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid R01 config: %w", err)
	}
	if err := cfg.checkAwards(); err != nil {
		return cfg, fmt.Errorf("invalid R01 config: %w", err)
	}
	if cfg.Antioxidant.Function == "" {
		cfg.Antioxidant.Function = "antioxidant"
	}
	return cfg, nil
}

// checkAwards requires each scheme's awards to decrease from the head of the list to its tail.
func (c R01Config) checkAwards() error {
	large := c.Bucketing.LargeListScheme.Awards
	if !(large.Top > large.Middle && large.Middle > large.Bottom) {
		return fmt.Errorf("%s awards must satisfy top > middle > bottom, got %v / %v / %v",
			c.Bucketing.LargeListScheme.Name, large.Top, large.Middle, large.Bottom)
	}
	small := c.Bucketing.SmallListScheme.Awards
	if !(small.First > small.Second) {
		return fmt.Errorf("%s awards must satisfy first > second, got %v / %v",
			c.Bucketing.SmallListScheme.Name, small.First, small.Second)
	}
	return nil
}

// LoadExceptions reads the exceptions dataset from path, or the embedded default when path is empty.
func LoadExceptions(path string) (Exceptions, error) {
	raw, err := data.Read(path, data.ExceptionsPath)
	if err != nil {
		return Exceptions{}, err
	}
	var file exceptionsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Exceptions{}, fmt.Errorf("failed to parse exceptions dataset: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return Exceptions{}, fmt.Errorf("invalid exceptions dataset: %w", err)
	}
	return NewExceptions(file.Version, file.Ingredients...), nil
}
