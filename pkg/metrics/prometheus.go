package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FinScan/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scans        *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	candidates   *prometheus.GaugeVec
	stepCounts   *prometheus.GaugeVec
	regime       *prometheus.GaugeVec
	regimeScore  *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	upstreamMiss *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New registers the recorder's collectors with reg; nil means the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		scans: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finscan_scans_total",
				Help: "Completed scans by scanner version, regime and fallback",
			},
			[]string{"version", "regime", "fallback"},
		),
		scanDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finscan_scan_duration_seconds",
				Help:    "Wall time of one scan",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"version"},
		),
		candidates: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finscan_scan_candidates",
				Help: "Candidates returned by the last scan and the step that produced them",
			},
			[]string{"version", "step"},
		),
		stepCounts: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finscan_scan_step_count",
				Help: "Survivors per relaxation step in the last scan",
			},
			[]string{"step"},
		),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finscan_regime",
				Help: "1 for the current regime label, 0 otherwise",
			},
			[]string{"regime"},
		),
		regimeScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finscan_regime_score",
				Help: "Latest regime scores by component",
			},
			[]string{"component"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finscan_recommendation_transitions_total",
				Help: "Recommendation status transitions",
			},
			[]string{"from", "to", "reason"},
		),
		upstreamMiss: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finscan_upstream_misses_total",
				Help: "Upstream data that was unavailable and replaced by a fallback",
			},
			[]string{"kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordScan(version string, regime models.Regime, step int, fallback bool, candidates int, seconds float64) {
	r.scans.WithLabelValues(version, string(regime), strconv.FormatBool(fallback)).Inc()
	r.scanDuration.WithLabelValues(version).Observe(seconds)
	r.candidates.Reset()
	r.candidates.WithLabelValues(version, strconv.Itoa(step)).Set(float64(candidates))
}

func (r *Recorder) RecordStepCount(step int, count int) {
	r.stepCounts.WithLabelValues(strconv.Itoa(step)).Set(float64(count))
}

// RecordRegime flips the regime label gauges and exports the scores.
func (r *Recorder) RecordRegime(snap models.MarketRegimeSnapshot) {
	for _, label := range []models.Regime{models.RegimeBull, models.RegimeNeutral, models.RegimeBear, models.RegimeCrash} {
		v := 0.0
		if label == snap.FinalRegime {
			v = 1
		}
		r.regime.WithLabelValues(string(label)).Set(v)
	}
	r.regimeScore.WithLabelValues("domestic_trend").Set(snap.DomesticTrendScore)
	r.regimeScore.WithLabelValues("domestic_risk").Set(snap.DomesticRiskScore)
	r.regimeScore.WithLabelValues("foreign_trend").Set(snap.ForeignTrendScore)
	r.regimeScore.WithLabelValues("foreign_risk").Set(snap.ForeignRiskScore)
	r.regimeScore.WithLabelValues("final").Set(snap.FinalScore)
}

func (r *Recorder) RecordTransition(from, to models.Status, reason models.ArchiveReason) {
	r.transitions.WithLabelValues(string(from), string(to), string(reason)).Inc()
}

func (r *Recorder) RecordUpstreamMiss(kind string) {
	r.upstreamMiss.WithLabelValues(kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
