package metrics

func (m *Manager) initOfferMetrics(cfg Config) {
	m.offersSubmitted = m.counterVec("offers_submitted_total",
		"Submitted offers by product type and mode", "product_type", "mode")
	m.offerSelling = m.histogramVec("offer_selling_price",
		"Selling price of submitted offers in major currency units", cfg.OfferValueBuckets, "product_type", "currency")
}

// RecordOfferSubmitted records a submitted offer and its selling price.
func (m *Manager) RecordOfferSubmitted(productType, mode, currency string, selling float64) {
	if !m.enabled {
		return
	}
	m.offersSubmitted.WithLabelValues(productType, mode).Inc()
	m.offerSelling.WithLabelValues(productType, currency).Observe(selling)
}
