package klypt

import "github.com/prometheus/client_golang/prometheus"

// RegisterMetrics attaches the module's collectors to a registry. The
// library never registers globally on its own.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		IndexLookupCount,
		IndexBackfillCount,
		IndexRepairCount,
		ReconcileCount,
		ExchangeCount,
	)
}

// RegisterStoreMetrics additionally attaches the pebble collector of an
// open store.
func RegisterStoreMetrics(reg prometheus.Registerer, s *Store) {
	reg.MustRegister(s.Collector())
}
