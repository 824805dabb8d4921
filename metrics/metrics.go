// Package metrics exports the only externally observable signal of
// per-message outcomes spec §7 allows: aggregate counters and gauges, never
// anything keyed by participant identity.
package metrics

import (
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"

	"github.com/xaynetwork/xaynet-coordinator/common/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the coordinator's private Prometheus registry, mirroring
	// the teacher's PrivateMetrics registry but scoped to one round state
	// machine instead of one drand node's whole process.
	Registry = prometheus.NewRegistry()

	// RequestOutcomes counts every request pipeline decision (spec §4.5
	// step 6), labeled by phase and outcome so accepted/rejected/discarded
	// counts are visible per phase without ever naming a participant.
	RequestOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "xaynet_request_outcomes_total",
		Help: "Number of requests by phase and outcome (accepted, rejected, discarded).",
	}, []string{"phase", "outcome"})

	// CurrentPhase holds the numeric value of pet.Phase the round is
	// currently in.
	CurrentPhase = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xaynet_round_phase",
		Help: "Current round phase: 0=idle,1=sum,2=update,3=sum2,4=unmask,5=failure,6=shutdown.",
	})

	// WorkerPoolInFlight tracks how many decrypt/verify jobs are currently
	// running in the request pipeline's bounded worker pool.
	WorkerPoolInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "xaynet_decrypt_worker_in_flight",
		Help: "Number of decrypt/verify jobs currently executing.",
	})

	metricsBound = false
)

func bindMetrics() error {
	if metricsBound {
		return nil
	}
	metricsBound = true

	collectorsList := []prometheus.Collector{
		RequestOutcomes,
		CurrentPhase,
		WorkerPoolInFlight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range collectorsList {
		if err := Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Start starts a prometheus metrics server with debug endpoints, mirroring
// the teacher's metrics.Start.
func Start(metricsBind string, pprof http.Handler) net.Listener {
	log.DefaultLogger().Debugw("", "metrics", "listener started", "at", metricsBind)
	if err := bindMetrics(); err != nil {
		log.DefaultLogger().Warnw("", "metrics", "metric setup failed", "err", err)
		return nil
	}

	if !strings.Contains(metricsBind, ":") {
		metricsBind = "localhost:" + metricsBind
	}
	l, err := net.Listen("tcp", metricsBind)
	if err != nil {
		log.DefaultLogger().Warnw("", "metrics", "listen failed", "err", err)
		return nil
	}
	s := http.Server{Addr: l.Addr().String()}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	if pprof != nil {
		mux.Handle("/debug/pprof/", pprof)
	}

	mux.HandleFunc("/debug/gc", func(w http.ResponseWriter, req *http.Request) {
		runtime.GC()
		fmt.Fprintf(w, "GC run complete")
	})
	s.Handler = mux
	go func() {
		log.DefaultLogger().Warnw("", "metrics", "listen finished", "err", s.Serve(l))
	}()
	return l
}

// Handler serves this registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordOutcome increments the counter for one phase/outcome pair.
func RecordOutcome(phase, outcome string) {
	RequestOutcomes.WithLabelValues(phase, outcome).Inc()
}

// SetPhase publishes the round's current phase as a gauge value.
func SetPhase(phase uint8) {
	CurrentPhase.Set(float64(phase))
}
