package observability

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/lexiqai/avatar-gateway/internal/playback"
)

func TestSessionMetrics_QueueDepth(t *testing.T) {
	before := testutil.ToFloat64(queueDepth)

	m := NewSessionMetrics("s1")
	m.ItemEnqueued(1)
	m.ItemEnqueued(2)
	m.ItemEnqueued(3)
	assert.Equal(t, before+3, testutil.ToFloat64(queueDepth))

	m.GateWaited(0)
	assert.Equal(t, before+2, testutil.ToFloat64(queueDepth))

	m.RecordSessionStart()
	m.RecordSessionEnd()
	assert.Equal(t, before, testutil.ToFloat64(queueDepth))
}

func TestSessionMetrics_GateWaiters(t *testing.T) {
	before := testutil.ToFloat64(gateWaiters)

	m := NewSessionMetrics("s4")
	m.GateWaiters(1)
	assert.Equal(t, before+1, testutil.ToFloat64(gateWaiters))

	m.GateWaiters(0)
	assert.Equal(t, before, testutil.ToFloat64(gateWaiters))

	m.GateWaiters(2)
	m.RecordSessionStart()
	m.RecordSessionEnd()
	assert.Equal(t, before, testutil.ToFloat64(gateWaiters))
}

func TestSessionMetrics_Outcomes(t *testing.T) {
	played := itemsFinished.WithLabelValues(string(playback.OutcomePlayed))
	failed := itemsFinished.WithLabelValues(string(playback.OutcomeDecodeFailed))
	playedBefore := testutil.ToFloat64(played)
	failedBefore := testutil.ToFloat64(failed)

	m := NewSessionMetrics("s2")
	m.ItemFinished(playback.OutcomePlayed)
	m.ItemFinished(playback.OutcomePlayed)
	m.ItemFinished(playback.OutcomeDecodeFailed)

	assert.Equal(t, playedBefore+2, testutil.ToFloat64(played))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(failed))
}

func TestSessionMetrics_GateWaitObserved(t *testing.T) {
	before := testutil.CollectAndCount(gateWait)
	NewSessionMetrics("s3").GateWaited(3 * time.Second)
	assert.Equal(t, before, testutil.CollectAndCount(gateWait))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug": zerolog.DebugLevel,
		"warn":  zerolog.WarnLevel,
		"error": zerolog.ErrorLevel,
		"bogus": zerolog.InfoLevel,
		"":      zerolog.InfoLevel,
		"info":  zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false)
	logger.Info().Str("component", "test").Msg("hello")

	assert.Contains(t, buf.String(), `"component":"test"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
	assert.Contains(t, buf.String(), `"time"`)
}
