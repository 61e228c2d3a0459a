package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_deliveries_total",
			Help: "Outbound location deliveries by destination kind and outcome",
		},
		[]string{"destination", "outcome"},
	)

	reconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Scheduled feed reconnect attempts",
		},
	)

	geocodeLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocode_lookups_total",
			Help: "Geocode cache lookups by result",
		},
		[]string{"result"},
	)

	rosterSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "roster_records",
			Help: "Presence records currently held per room",
		},
		[]string{"room"},
	)
)

func init() {
	Registry.MustRegister(deliveriesTotal, reconnectsTotal, geocodeLookups, rosterSize)
}

// ObserveDelivery counts one delivery attempt outcome
func ObserveDelivery(destination, outcome string) {
	deliveriesTotal.WithLabelValues(destination, outcome).Inc()
}

// ObserveReconnect counts one scheduled reconnect attempt
func ObserveReconnect() {
	reconnectsTotal.Inc()
}

// ObserveGeocode counts one geocode lookup result ("hit", "miss" or "error")
func ObserveGeocode(result string) {
	geocodeLookups.WithLabelValues(result).Inc()
}

// SetRosterSize gauges the current record count for a room
func SetRosterSize(room string, n int) {
	rosterSize.WithLabelValues(room).Set(float64(n))
}

// Handler returns a promhttp handler for the Registry
func Handler() http.Handler { return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}) }
