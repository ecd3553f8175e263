package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordParseOutcome("Garbage")
	RecordResponse("Channel")
	RecordCommand("Ok", 12*time.Millisecond)
	RecordCommand("Busy", 0)
	RecordUnsolicitedDrop()
	RecordRxDropped(3)
	RecordPacketStored()
	RecordRssiScan(true)
	RecordRssiScan(false)
}

func TestRecordParseOutcomeCounts(t *testing.T) {
	before := testutil.ToFloat64(parseOutcomes.WithLabelValues("Overflow"))
	RecordParseOutcome("Overflow")
	RecordParseOutcome("Overflow")
	after := testutil.ToFloat64(parseOutcomes.WithLabelValues("Overflow"))
	if after-before != 2 {
		t.Errorf("Overflow counter delta = %v, want 2", after-before)
	}
}

func TestRecordRxDroppedAddsBytes(t *testing.T) {
	before := testutil.ToFloat64(ringDropped)
	RecordRxDropped(5)
	if got := testutil.ToFloat64(ringDropped) - before; got != 5 {
		t.Errorf("dropped delta = %v, want 5", got)
	}
}
