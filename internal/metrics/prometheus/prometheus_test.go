package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewWithNilRegistryIsNoOp(t *testing.T) {
	m := New(nil)
	assert.Nil(t, m)
	// Every method on a nil *Metrics must be safe to call.
	m.RecordFPDU("DTF", "SRV1", time.Millisecond)
	m.RecordTransferBytes("SRV1", "send", 100)
	m.RecordTransferOutcome("SRV1", "completed")
	m.SetActiveSessions("SRV1", 3)
	m.RecordClusterLeadership(true)
}

func TestRecordFPDUTracksDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordFPDU("DTF", "SRV1", 10*time.Millisecond)
	m.RecordFPDU("CONNECT", "SRV1", 5*time.Millisecond)

	count := testutil.CollectAndCount(m.fpduDuration)
	assert.Equal(t, 2, count)
}

func TestTransferAndOutcomeCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTransferBytes("SRV1", "receive", 2048)
	assert.Equal(t, float64(2048), testutil.ToFloat64(m.transferBytes.WithLabelValues("SRV1", "receive")))

	m.RecordTransferOutcome("SRV1", "completed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transferOutcomes.WithLabelValues("SRV1", "completed")))
}

func TestSetActiveSessionsAndLeadershipGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetActiveSessions("SRV1", 4)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.activeSessions.WithLabelValues("SRV1")))

	m.RecordClusterLeadership(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.clusterLeadership))

	m.RecordClusterLeadership(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.clusterLeadership))
}
