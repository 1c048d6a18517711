package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiceCoefficient(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "GLYCERIN", "GLYCERIN", 1},
		{"identical ignoring spaces", "AQUA WATER", "AQUAWATER", 1},
		{"disjoint", "ABC", "XYZ", 0},
		{"single char", "A", "AB", 0},
		{"both empty", "", "", 1},
		{"classic example", "healed", "sealed", 0.8},
		{"repeated bigrams counted once each", "AAAA", "AA", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DiceCoefficient(tt.a, tt.b), 1e-9)
		})
	}
}

func TestDiceCoefficientIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"SODIUM LAURETH SULFATE", "SODIUM LAURYL SULFATE"},
		{"TOCOPHEROL", "TOCOPHERYL ACETATE"},
		{"NIACINAMIDE", "NIACIN"},
	}
	for _, p := range pairs {
		assert.InDelta(t, DiceCoefficient(p[0], p[1]), DiceCoefficient(p[1], p[0]), 1e-12)
	}
}
