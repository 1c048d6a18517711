package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PatrickalKhouri/ingredient-manager/pkg/models"
)

// Active is one active ingredient of a product at its first position in the ingredient list.
type Active struct {
	IngredientID string
	Name         string
	Index        int
}

type Input struct {
	ListLength int
	Actives    []Active
}

// Bucket places a zero-based index in a list of length n: thirds from the large-list threshold up,
// halves below it. Boundaries use floor division.
func Bucket(index, n, largeListThreshold int) models.Bucket {
	if n >= largeListThreshold {
		switch {
		case index < n/3:
			return models.BucketTop
		case index < 2*n/3:
			return models.BucketMiddle
		default:
			return models.BucketBottom
		}
	}
	if index < n/2 {
		return models.BucketFirst
	}
	return models.BucketSecond
}

// Disqualified reports whether an antioxidant at index sits in the last bucket of the list.
func Disqualified(index, n, largeListThreshold int) bool {
	switch Bucket(index, n, largeListThreshold) {
	case models.BucketBottom, models.BucketSecond:
		return true
	}
	return false
}

func (c R01Config) multiplier(bucket models.Bucket) float64 {
	switch bucket {
	case models.BucketTop:
		return c.Bucketing.LargeListScheme.Awards.Top
	case models.BucketMiddle:
		return c.Bucketing.LargeListScheme.Awards.Middle
	case models.BucketBottom:
		return c.Bucketing.LargeListScheme.Awards.Bottom
	case models.BucketFirst:
		return c.Bucketing.SmallListScheme.Awards.First
	default:
		return c.Bucketing.SmallListScheme.Awards.Second
	}
}

// EvaluateR01 splits MaxPoints evenly across the actives, each share weighted by where the active
// sits in the list, and caps the total at MaxPoints. Names in the exceptions dataset always earn
// the full share.
func EvaluateR01(in Input, cfg R01Config, exceptions Exceptions) models.ScoreResult {
	result := models.ScoreResult{
		RuleID:     cfg.RuleID,
		Version:    cfg.Version,
		Direction:  cfg.Direction,
		MaxPoints:  cfg.MaxPoints,
		Confidence: "high",
		ObservedInputs: models.ObservedInputs{
			ActivesDetected:     []models.ActiveDetected{},
			ExceptionsApplied:   []string{},
			ListLength:          in.ListLength,
			DatasetVersionsUsed: map[string]string{"exceptions": exceptions.Version},
		},
	}

	count := len(in.Actives)
	if count == 0 {
		result.Verdict = models.VerdictUnknown
		result.Explanation = "No actives detected."
		return result
	}

	pointsPerActive := cfg.MaxPoints / float64(count)
	total := 0.0

	for _, active := range in.Actives {
		bucket := Bucket(active.Index, in.ListLength, cfg.Bucketing.LargeListThreshold)

		multiplier := cfg.multiplier(bucket)
		if cfg.Scoring.ExceptionsFullPoints && exceptions.Contains(active.Name) {
			multiplier = 1.0
			result.ObservedInputs.ExceptionsApplied = append(result.ObservedInputs.ExceptionsApplied, active.Name)
		}

		awarded := pointsPerActive * multiplier
		total += awarded
		result.ObservedInputs.ActivesDetected = append(result.ObservedInputs.ActivesDetected, models.ActiveDetected{
			IngredientID: active.IngredientID,
			Name:         active.Name,
			Index:        active.Index,
			Bucket:       bucket,
			Awarded:      awarded,
		})
	}

	// Awards above 1 can push the sum past the cap.
	total = math.Min(total, cfg.MaxPoints)
	result.PointsAwarded = round(total, 4)
	result.ObservedInputs.XPoints = round(pointsPerActive, 6)

	switch {
	case result.PointsAwarded == cfg.MaxPoints:
		result.Verdict = models.VerdictPass
	case result.PointsAwarded > 0 && result.PointsAwarded < cfg.MaxPoints:
		result.Verdict = models.VerdictPartial
	default:
		result.Verdict = models.VerdictUnknown
	}

	applied := "none"
	if len(result.ObservedInputs.ExceptionsApplied) > 0 {
		applied = strings.Join(result.ObservedInputs.ExceptionsApplied, ", ")
	}
	result.Explanation = fmt.Sprintf("Awarded %s / %s for %d actives (X=%s). Exceptions full points: %s.",
		formatNumber(total, 2), formatNumber(cfg.MaxPoints, 2), count, formatNumber(pointsPerActive, 4), applied)

	return result
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// formatNumber rounds to places and drops trailing zeros: 22.50 renders as 22.5, 30.00 as 30.
func formatNumber(v float64, places int) string {
	return strconv.FormatFloat(round(v, places), 'f', -1, 64)
}
