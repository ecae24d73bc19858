package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	formsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "forms_persisted_total",
		Help:      "Form submissions written to storage and the search index",
	})
	formsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "forms_skipped_total",
		Help:      "Payloads skipped because they were not submissions or already stored",
	})
	writeRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "persist_write_failures_total",
		Help:      "Failed storage or index write attempts",
	})
	incidentsRaised = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "persist_incidents_total",
		Help:      "Submissions abandoned after retries, reported as engine incidents",
	})
)
