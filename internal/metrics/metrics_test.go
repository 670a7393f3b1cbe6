package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSignalOutcome_IncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(SignalsTotal.WithLabelValues("BASE_ENTRY", "processed"))
	RecordSignalOutcome("BASE_ENTRY", "processed", 12.5)
	after := testutil.ToFloat64(SignalsTotal.WithLabelValues("BASE_ENTRY", "processed"))

	assert.Equal(t, before+1, after)
}

func TestRecordOrder_IncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(OrdersTotal.WithLabelValues("BANK_NIFTY", "EXECUTED"))
	RecordOrder("BANK_NIFTY", "single", "EXECUTED", 50)
	after := testutil.ToFloat64(OrdersTotal.WithLabelValues("BANK_NIFTY", "EXECUTED"))

	assert.Equal(t, before+1, after)
}

func TestRecordConfirmation_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() { RecordConfirmation("telegram", 100) })
}
