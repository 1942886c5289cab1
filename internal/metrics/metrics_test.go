package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(focusOperations.WithLabelValues("reboot", "error"))
	RecordOperation("reboot", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(focusOperations.WithLabelValues("reboot", "error")))

	beforeOK := testutil.ToFloat64(focusOperations.WithLabelValues("reboot", "ok"))
	RecordOperation("reboot", nil)
	assert.Equal(t, beforeOK+1, testutil.ToFloat64(focusOperations.WithLabelValues("reboot", "ok")))
}

func TestMonitorGauge(t *testing.T) {
	before := testutil.ToFloat64(activeMonitors)
	MonitorStarted()
	MonitorStarted()
	MonitorStopped()
	assert.Equal(t, before+1, testutil.ToFloat64(activeMonitors))
	MonitorStopped()
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(telemetrySamples.WithLabelValues("failed"))
	RecordSample("failed")
	assert.Equal(t, before+1, testutil.ToFloat64(telemetrySamples.WithLabelValues("failed")))

	beforeRuns := testutil.ToFloat64(provisioningRuns.WithLabelValues("failed"))
	RecordRun("failed")
	assert.Equal(t, beforeRuns+1, testutil.ToFloat64(provisioningRuns.WithLabelValues("failed")))

	beforeAttempts := testutil.ToFloat64(addressPollAttempts)
	RecordAddressAttempt()
	assert.Equal(t, beforeAttempts+1, testutil.ToFloat64(addressPollAttempts))

	ObservePhase("Create", time.Second)
	ObserveRequest("GET", "/api/vms", "200", time.Millisecond)
	assert.NotNil(t, Handler())
}
