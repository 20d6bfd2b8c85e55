package metrics

import "time"

func (m *Manager) initJourneyMetrics(cfg Config) {
	m.sessionsCreated = m.counterVec("journey_sessions_created_total",
		"Composition sessions started by product type and mode", "product_type", "mode")
	m.sessionsActive = m.gaugeVec("journey_sessions_active",
		"Open composition sessions by product type", "product_type")
	m.sessionDuration = m.histogramVec("journey_session_duration_seconds",
		"Time from session start to submit or cancel", cfg.SessionDurationBuckets, "product_type", "outcome")
	m.stepTransitions = m.counterVec("journey_step_transitions_total",
		"Steps entered by product type and step", "product_type", "step")
	m.validationErrors = m.counterVec("journey_validation_errors_total",
		"Rejected user actions by step", "step")
	m.persistenceErrors = m.counterVec("journey_persistence_errors_total",
		"Failed draft or offer writes by entity", "entity")
}

// RecordSessionStarted records a new session and counts it as active.
func (m *Manager) RecordSessionStarted(productType, mode string) {
	if !m.enabled {
		return
	}
	m.sessionsCreated.WithLabelValues(productType, mode).Inc()
	m.sessionsActive.WithLabelValues(productType).Inc()
}

// RecordSessionEnded records the end of a session with outcome
// "submitted", "cancelled" or "evicted".
func (m *Manager) RecordSessionEnded(productType, outcome string, lifetime time.Duration) {
	if !m.enabled {
		return
	}
	m.sessionsActive.WithLabelValues(productType).Dec()
	m.sessionDuration.WithLabelValues(productType, outcome).Observe(lifetime.Seconds())
}

// RecordStepEntered records a step transition.
func (m *Manager) RecordStepEntered(productType, step string) {
	if !m.enabled {
		return
	}
	m.stepTransitions.WithLabelValues(productType, step).Inc()
}

// RecordValidationError records a rejected user action.
func (m *Manager) RecordValidationError(step string) {
	if !m.enabled {
		return
	}
	m.validationErrors.WithLabelValues(step).Inc()
}

// RecordPersistenceError records a failed storage write.
func (m *Manager) RecordPersistenceError(entity string) {
	if !m.enabled {
		return
	}
	m.persistenceErrors.WithLabelValues(entity).Inc()
}
