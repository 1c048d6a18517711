package scoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) R01Config {
	t.Helper()
	cfg, err := LoadR01Config("")
	require.NoError(t, err)
	cfg.Bucketing.LargeListScheme.Awards = Awards{Top: 1.0, Middle: 0.6, Bottom: 0.3}
	cfg.Bucketing.SmallListScheme.Awards = Awards{First: 1.0, Second: 0.5}
	return cfg
}

func TestBucket(t *testing.T) {
	tests := []struct {
		index, n int
		want     models.Bucket
	}{
		{0, 20, models.BucketTop},
		{5, 20, models.BucketTop},
		{6, 20, models.BucketMiddle},
		{12, 20, models.BucketMiddle},
		{13, 20, models.BucketBottom},
		{19, 20, models.BucketBottom},
		{4, 15, models.BucketTop},
		{5, 15, models.BucketMiddle},
		{10, 15, models.BucketBottom},
		{0, 10, models.BucketFirst},
		{4, 10, models.BucketFirst},
		{5, 10, models.BucketSecond},
		{3, 7, models.BucketSecond},
		{2, 7, models.BucketFirst},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Bucket(tt.index, tt.n, 15), "index %d of %d", tt.index, tt.n)
	}
}

func TestEvaluateR01Thirds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bucketing.LargeListScheme.Awards.Top = 1.5
	in := Input{
		ListLength: 20,
		Actives: []Active{
			{IngredientID: "a", Name: "Niacinamide", Index: 5},
			{IngredientID: "b", Name: "Zinc PCA", Index: 19},
		},
	}

	result := EvaluateR01(in, cfg, NewExceptions("1.0.0"))

	// 15 * top + 15 * bottom
	assert.Equal(t, 15*1.5+15*0.3, result.PointsAwarded)
	assert.Equal(t, models.VerdictPartial, result.Verdict)
	assert.Equal(t, 15.0, result.ObservedInputs.XPoints)
	assert.Equal(t, 20, result.ObservedInputs.ListLength)
	require.Len(t, result.ObservedInputs.ActivesDetected, 2)
	assert.Equal(t, models.BucketTop, result.ObservedInputs.ActivesDetected[0].Bucket)
	assert.Equal(t, 22.5, result.ObservedInputs.ActivesDetected[0].Awarded)
	assert.Equal(t, models.BucketBottom, result.ObservedInputs.ActivesDetected[1].Bucket)
	assert.InDelta(t, 4.5, result.ObservedInputs.ActivesDetected[1].Awarded, 1e-9)
	assert.Equal(t, "Awarded 27 / 30 for 2 actives (X=15). Exceptions full points: none.", result.Explanation)
	assert.Equal(t, "R01", result.RuleID)
	assert.Equal(t, "bonus", result.Direction)
	assert.Equal(t, "high", result.Confidence)
	assert.Equal(t, map[string]string{"exceptions": "1.0.0"}, result.ObservedInputs.DatasetVersionsUsed)
}

func TestEvaluateR01CapsAtMaxPoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bucketing.LargeListScheme.Awards.Top = 1.5
	in := Input{
		ListLength: 20,
		Actives: []Active{
			{IngredientID: "a", Name: "Niacinamide", Index: 0},
			{IngredientID: "b", Name: "Zinc PCA", Index: 1},
		},
	}

	result := EvaluateR01(in, cfg, NewExceptions("1.0.0"))

	assert.Equal(t, 30.0, result.PointsAwarded)
	assert.Equal(t, models.VerdictPass, result.Verdict)
	assert.Equal(t, 22.5, result.ObservedInputs.ActivesDetected[0].Awarded)
	assert.Equal(t, "Awarded 30 / 30 for 2 actives (X=15). Exceptions full points: none.", result.Explanation)
}

func TestEvaluateR01ExceptionGetsFullPoints(t *testing.T) {
	cfg := testConfig(t)
	in := Input{
		ListLength: 20,
		Actives: []Active{
			{IngredientID: "a", Name: "Niacinamide", Index: 0},
			{IngredientID: "b", Name: "Retinol", Index: 18},
		},
	}

	result := EvaluateR01(in, cfg, NewExceptions("1.0.0", "  RETINOL "))

	assert.Equal(t, 30.0, result.PointsAwarded)
	assert.Equal(t, models.VerdictPass, result.Verdict)
	assert.Equal(t, []string{"Retinol"}, result.ObservedInputs.ExceptionsApplied)
	assert.Equal(t, models.BucketBottom, result.ObservedInputs.ActivesDetected[1].Bucket)
	assert.Equal(t, "Awarded 30 / 30 for 2 actives (X=15). Exceptions full points: Retinol.", result.Explanation)
}

func TestEvaluateR01Halves(t *testing.T) {
	cfg := testConfig(t)
	in := Input{
		ListLength: 6,
		Actives: []Active{
			{IngredientID: "a", Name: "A", Index: 0},
			{IngredientID: "b", Name: "B", Index: 2},
			{IngredientID: "c", Name: "C", Index: 3},
		},
	}

	result := EvaluateR01(in, cfg, NewExceptions("1.0.0"))

	assert.Equal(t, 25.0, result.PointsAwarded)
	assert.Equal(t, 10.0, result.ObservedInputs.XPoints)
	assert.Equal(t, models.BucketSecond, result.ObservedInputs.ActivesDetected[2].Bucket)
}

func TestEvaluateR01Rounding(t *testing.T) {
	cfg := testConfig(t)
	actives := make([]Active, 7)
	for i := range actives {
		actives[i] = Active{IngredientID: string(rune('a' + i)), Name: "X", Index: 0}
	}

	result := EvaluateR01(Input{ListLength: 20, Actives: actives}, cfg, NewExceptions("1.0.0"))

	assert.Equal(t, 30.0, result.PointsAwarded)
	assert.Equal(t, models.VerdictPass, result.Verdict)
	assert.Equal(t, 4.285714, result.ObservedInputs.XPoints)
	assert.Contains(t, result.Explanation, "(X=4.2857)")
}

func TestEvaluateR01NoActives(t *testing.T) {
	cfg := testConfig(t)
	result := EvaluateR01(Input{ListLength: 12}, cfg, NewExceptions("1.0.0"))

	assert.Equal(t, 0.0, result.PointsAwarded)
	assert.Equal(t, models.VerdictUnknown, result.Verdict)
	assert.Equal(t, "No actives detected.", result.Explanation)
	assert.Empty(t, result.ObservedInputs.ActivesDetected)
	assert.Equal(t, 0.0, result.ObservedInputs.XPoints)
	assert.Equal(t, 12, result.ObservedInputs.ListLength)
}

func TestEvaluateR01ZeroAwardsIsUnknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bucketing.SmallListScheme.Awards.Second = 0
	result := EvaluateR01(Input{ListLength: 4, Actives: []Active{{IngredientID: "a", Name: "A", Index: 3}}}, cfg, NewExceptions("1.0.0"))

	assert.Equal(t, 0.0, result.PointsAwarded)
	assert.Equal(t, models.VerdictUnknown, result.Verdict)
}

func TestDisqualified(t *testing.T) {
	assert.True(t, Disqualified(13, 20, 15))
	assert.False(t, Disqualified(12, 20, 15))
	assert.True(t, Disqualified(5, 10, 15))
	assert.False(t, Disqualified(4, 10, 15))
}

func TestLoadEmbeddedData(t *testing.T) {
	cfg, err := LoadR01Config("")
	require.NoError(t, err)
	assert.Equal(t, "R01", cfg.RuleID)
	assert.Equal(t, "1.0.0", cfg.Version)
	assert.Equal(t, 15, cfg.Bucketing.LargeListThreshold)
	assert.Equal(t, 30.0, cfg.MaxPoints)
	assert.True(t, cfg.Scoring.ExceptionsFullPoints)
	assert.Equal(t, "antioxidant", cfg.Antioxidant.Function)

	exceptions, err := LoadExceptions("")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", exceptions.Version)
	assert.True(t, exceptions.Contains("retinol"))
	assert.False(t, exceptions.Contains("aqua"))
}

func TestLoadR01ConfigAwards(t *testing.T) {
	embedded, err := os.ReadFile(filepath.Join("..", "..", "data", "rules", "R01", "1.0.0.yaml"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		from    string
		to      string
		wantTop float64
		wantErr bool
	}{
		{"top above one", "top: 1.0", "top: 1.5", 1.5, false},
		{"top below middle", "top: 1.0", "top: 0.5", 0, true},
		{"negative bottom", "bottom: 0.3", "bottom: -0.1", 0, true},
		{"second above first", "second: 0.5", "second: 1.2", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "r01.yaml")
			require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(embedded), tt.from, tt.to, 1)), 0o600))

			cfg, err := LoadR01Config(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTop, cfg.Bucketing.LargeListScheme.Awards.Top)
		})
	}
}
