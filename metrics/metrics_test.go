package metrics

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStartServesMetrics(t *testing.T) {
	l := Start(":0", nil)
	require.NotNil(t, l)
	defer l.Close()

	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", l.Addr().String()))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "xaynet_round_phase")
}

func TestRecordOutcomeIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(RequestOutcomes.WithLabelValues("sum", "accepted"))
	RecordOutcome("sum", "accepted")
	after := testutil.ToFloat64(RequestOutcomes.WithLabelValues("sum", "accepted"))
	require.Equal(t, before+1, after)
}

func TestSetPhaseSetsGauge(t *testing.T) {
	SetPhase(3)
	require.Equal(t, 3.0, testutil.ToFloat64(CurrentPhase))
}
