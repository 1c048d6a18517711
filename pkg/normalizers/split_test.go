package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitIngredients(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "digit comma stays whole",
			input: "Water, 1,2-Hexanediol, Glycerin (and) Aloe",
			want:  []string{"Water", "1,2-Hexanediol", "Glycerin (and) Aloe"},
		},
		{
			name:  "commas inside brackets",
			input: "Parfum (Limonene, Linalool), Extract [Rosa, Damascena], Blend {A, B}",
			want:  []string{"Parfum (Limonene, Linalool)", "Extract [Rosa, Damascena]", "Blend {A, B}"},
		},
		{
			name:  "alternate separators",
			input: "Aqua; Glycerin | Niacinamide • Zinc · Mica、Talc・Silica",
			want:  []string{"Aqua", "Glycerin", "Niacinamide", "Zinc", "Mica", "Talc", "Silica"},
		},
		{
			name:  "newlines",
			input: "Aqua\r\nGlycerin\nParfum",
			want:  []string{"Aqua", "Glycerin", "Parfum"},
		},
		{
			name:  "empty tokens dropped",
			input: " , Aqua,, ,Glycerin, ",
			want:  []string{"Aqua", "Glycerin"},
		},
		{
			name:  "unbalanced closing bracket does not go negative",
			input: "Aqua), Glycerin",
			want:  []string{"Aqua)", "Glycerin"},
		},
		{
			name:  "whitespace collapsed",
			input: "Sodium    Hyaluronate,\tTocopherol",
			want:  []string{"Sodium Hyaluronate", "Tocopherol"},
		},
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitIngredients(tt.input))
		})
	}
}

func TestSplitIngredientsIsIdempotentUnderRejoin(t *testing.T) {
	inputs := []string{
		"Water, 1,2-Hexanediol, Glycerin (and) Aloe",
		"Aqua; Glycerin | Parfum (Limonene, Linalool)\nMica",
		"CI 77491, CI 77492, Vitamin B3",
	}
	for _, in := range inputs {
		once := SplitIngredients(in)
		assert.Equal(t, once, SplitIngredients(JoinIngredients(once)), in)
	}
}
