package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

// Each test gets its own namespace so promauto's default registry
// never sees a duplicate registration.
func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.workflowExecutionsTotal)
	assert.NotNil(t, collector.executorInvocationsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("POST", "/api/v1/workflows/execute", 200, 120*time.Millisecond, 2048)

	assert.Greater(t, testutil.CollectAndCount(collector.httpRequestsTotal), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		collector.httpRequestsTotal.WithLabelValues("POST", "/api/v1/workflows/execute", "2xx"),
	), 0.001)
}

func TestCollector_RecordWorkflowExecution(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordWorkflowExecution("analysis", "success", 2*time.Second)
	collector.RecordWorkflowExecution("analysis", "success", time.Second)
	collector.RecordWorkflowExecution("analysis", "error", time.Second)

	assert.InDelta(t, 2.0, testutil.ToFloat64(
		collector.workflowExecutionsTotal.WithLabelValues("analysis", "success"),
	), 0.001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(
		collector.workflowExecutionsTotal.WithLabelValues("analysis", "error"),
	), 0.001)
}

func TestCollector_RecordExecutorInvocation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordExecutorInvocation("agent", "success", 500*time.Millisecond)

	assert.InDelta(t, 1.0, testutil.ToFloat64(
		collector.executorInvocationsTotal.WithLabelValues("agent", "success"),
	), 0.001)
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordLLMRequest("openai", "gpt-4o-mini", "success", time.Second, 100, 30)

	assert.InDelta(t, 100.0, testutil.ToFloat64(
		collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "prompt"),
	), 0.001)
	assert.InDelta(t, 30.0, testutil.ToFloat64(
		collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "completion"),
	), 0.001)
}
