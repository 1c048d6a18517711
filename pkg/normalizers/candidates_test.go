package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateCandidates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"no parens", "AQUA", []string{"AQUA"}},
		{"one span", "PARFUM (FRAGRANCE)", []string{"PARFUM (FRAGRANCE)", "PARFUM", "FRAGRANCE"}},
		{"two spans", "AQUA (WATER) (EAU)", []string{"AQUA (WATER) (EAU)", "AQUA", "WATER", "EAU"}},
		{"only parens", "(AQUA)", []string{"(AQUA)", "AQUA"}},
		{"empty span skipped", "AQUA ()", []string{"AQUA ()", "AQUA"}},
		{"duplicate collapses", "AQUA (AQUA)", []string{"AQUA (AQUA)", "AQUA"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateCandidates(tt.input))
		})
	}
}

func TestGenerateCandidatesEmpty(t *testing.T) {
	assert.Empty(t, GenerateCandidates(""))
}
