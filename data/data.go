// Package data embeds the versioned static inputs: rule configurations, the exceptions dataset and
// the function keyword lists.
package data

import (
	"embed"
	"fmt"
	"os"
)

//go:embed rules datasets function_keywords.yaml
var files embed.FS

const (
	R01ConfigPath        = "rules/R01/1.0.0.yaml"
	ExceptionsPath       = "datasets/exceptions@1.0.0.yaml"
	FunctionKeywordsPath = "function_keywords.yaml"
)

// Read returns the file at override when set, else the embedded default.
func Read(override, embedded string) ([]byte, error) {
	if override != "" {
		b, err := os.ReadFile(override)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", override, err)
		}
		return b, nil
	}
	b, err := files.ReadFile(embedded)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded %s: %w", embedded, err)
	}
	return b, nil
}
