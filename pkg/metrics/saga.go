package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initSagaMetrics() {
	m.sagaStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_started_total",
			Help: "Total number of sagas started by transaction kind",
		},
		[]string{"kind"},
	)

	m.sagaFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_finished_total",
			Help: "Total number of sagas finished by kind and terminal result",
		},
		[]string{"kind", "result"},
	)

	m.sagaCompensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Total number of compensating commands dispatched",
		},
		[]string{"kind"},
	)

	m.sagaDuplicates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_duplicate_drops_total",
			Help: "Total number of duplicate deliveries dropped",
		},
	)

	m.sagaUnknownDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_unknown_drops_total",
			Help: "Total number of outcomes dropped for unknown saga ids",
		},
	)

	m.sagaExpiries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_expiries_total",
			Help: "Total number of sagas reaped after their deadline",
		},
	)

	m.registry.MustRegister(m.sagaStarted)
	m.registry.MustRegister(m.sagaFinished)
	m.registry.MustRegister(m.sagaCompensations)
	m.registry.MustRegister(m.sagaDuplicates)
	m.registry.MustRegister(m.sagaUnknownDrops)
	m.registry.MustRegister(m.sagaExpiries)
}

// RecordSagaStarted records one saga start.
func (m *Manager) RecordSagaStarted(kind string) {
	if !m.enabled {
		return
	}
	m.sagaStarted.WithLabelValues(kind).Inc()
}

// RecordSagaFinished records one saga reaching a terminal result.
func (m *Manager) RecordSagaFinished(kind, result string) {
	if !m.enabled {
		return
	}
	m.sagaFinished.WithLabelValues(kind, result).Inc()
}

// RecordCompensation records one compensating command dispatch.
func (m *Manager) RecordCompensation(kind string) {
	if !m.enabled {
		return
	}
	m.sagaCompensations.WithLabelValues(kind).Inc()
}

// RecordDuplicateDrop records one dropped duplicate delivery.
func (m *Manager) RecordDuplicateDrop() {
	if !m.enabled {
		return
	}
	m.sagaDuplicates.Inc()
}

// RecordUnknownSagaDrop records one outcome dropped for an unknown saga.
func (m *Manager) RecordUnknownSagaDrop() {
	if !m.enabled {
		return
	}
	m.sagaUnknownDrops.Inc()
}

// RecordExpiry records one saga reaped by the sweeper.
func (m *Manager) RecordExpiry() {
	if !m.enabled {
		return
	}
	m.sagaExpiries.Inc()
}
