package censor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	variablesSealed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "variables_sealed_total",
		Help:      "Total number of variables encrypted at the API boundary",
	})
	variablesOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "variables_opened_total",
		Help:      "Total number of variables decrypted at the API boundary",
	})
)
