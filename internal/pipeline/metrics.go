package pipeline

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	CommitsApplied  prometheus.Counter
	CommitsRejected prometheus.Counter
	Issues          *prometheus.CounterVec
	Violations      *prometheus.CounterVec
	Placements      prometheus.Gauge
}

// NewMetrics registers the pipeline collectors on reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommitsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldstate",
			Name:      "commits_applied_total",
			Help:      "Change plans merged into the effective placement set.",
		}),
		CommitsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldstate",
			Name:      "commits_rejected_total",
			Help:      "Change plans refused because validation was blocking.",
		}),
		Issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldstate",
			Name:      "validation_issues_total",
			Help:      "Validation issues by severity and type.",
		}, []string{"severity", "type"}),
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldstate",
			Name:      "invariant_violations_total",
			Help:      "Invariant violations by severity.",
		}, []string{"severity"}),
		Placements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldstate",
			Name:      "placements",
			Help:      "Placements in the most recent runtime view.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.CommitsApplied, m.CommitsRejected, m.Issues, m.Violations, m.Placements)
	}
	return m
}

func (m *Metrics) observe(res Result) {
	if m == nil {
		return
	}
	if res.Applied {
		m.CommitsApplied.Inc()
	} else if res.Rejected {
		m.CommitsRejected.Inc()
	}
	for _, is := range res.Validation.Issues {
		m.Issues.WithLabelValues(string(is.Severity), string(is.Type)).Inc()
	}
	for _, v := range res.Report.Violations {
		m.Violations.WithLabelValues(string(v.Severity)).Inc()
	}
	m.Placements.Set(float64(len(res.After.Placements)))
}
