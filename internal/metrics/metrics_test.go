package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewPipelineRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewPipeline(reg)
	require.NoError(t, err)

	p.Logs.WithLabelValues(OutcomeApplied).Inc()
	p.Logs.WithLabelValues(OutcomeApplied).Inc()
	p.CursorBlock.Set(42)

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[family.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[family.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, float64(2), values["marketsync_logs_total"])
	require.Equal(t, float64(42), values["marketsync_cursor_block"])

	_, err = NewPipeline(reg)
	require.Error(t, err)
}
