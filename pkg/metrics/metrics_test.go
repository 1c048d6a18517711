package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordMatch(t *testing.T) {
	before := testutil.ToFloat64(MatchOutcomesTotal.WithLabelValues("exact"))
	RecordMatch("exact")
	RecordMatch("exact")
	assert.Equal(t, before+2, testutil.ToFloat64(MatchOutcomesTotal.WithLabelValues("exact")))
}

func TestRecordRematchItem(t *testing.T) {
	before := testutil.ToFloat64(RematchItemsTotal.WithLabelValues("failed"))
	RecordRematchItem("failed")
	assert.Equal(t, before+1, testutil.ToFloat64(RematchItemsTotal.WithLabelValues("failed")))
}
