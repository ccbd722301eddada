package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	metricPrefix = "stations_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	imageBytesWritten prometheus.Counter
	sweeperRemoved    prometheus.Counter
)

// Init registers the station metrics with registerer. When sqlDB is non-nil,
// gauges for the station and tracked image counts are registered as well.
//
// The collectors are process-wide: only the first call registers them, and later
// calls leave them on the first registerer whatever they pass. Init reports
// whether this call performed the registration.
func Init(registerer prometheus.Registerer, sqlDB *sql.DB) bool {
	registered := false
	registerOnce.Do(func() {
		registered = true
		operationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total station service operations by operation and result",
			},
			[]string{"op", "result"},
		)
		operationDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_duration_seconds",
				Help:    "Station service operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		)
		imageBytesWritten = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "image_bytes_written_total",
				Help: "Total bytes handed to the image store",
			},
		)
		sweeperRemoved = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "sweeper_removed_total",
				Help: "Total unreferenced image blobs removed by the sweeper",
			},
		)

		registerer.MustRegister(operationsTotal, operationDuration, imageBytesWritten, sweeperRemoved)

		if sqlDB != nil {
			registerDBGauges(registerer, sqlDB)
		}
	})
	return registered
}

func registerDBGauges(registerer prometheus.Registerer, sqlDB *sql.DB) {
	countGauge := func(name, help, query string) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + name, Help: help},
			func() float64 {
				var n int64
				if err := sqlDB.QueryRow(query).Scan(&n); err != nil {
					log.Warn().Err(err).Str("metric", name).Msg("Failed to collect gauge")
					return 0
				}
				return float64(n)
			},
		)
	}

	registerer.MustRegister(
		countGauge("records", "Number of persisted station records", "SELECT COUNT(*) FROM stations"),
		countGauge("images_tracked", "Number of image keys with a reference count", "SELECT COUNT(*) FROM images"),
	)
}

// ObserveOperation records the result and latency of a service operation.
func ObserveOperation(op string, err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if operationsTotal != nil {
		operationsTotal.WithLabelValues(op, result).Inc()
	}
	if operationDuration != nil {
		operationDuration.WithLabelValues(op).Observe(duration.Seconds())
	}
}

// AddImageBytes counts bytes passed to the image store.
func AddImageBytes(n int) {
	if imageBytesWritten != nil && n > 0 {
		imageBytesWritten.Add(float64(n))
	}
}

// IncSweeperRemoved counts a blob removed by the sweeper.
func IncSweeperRemoved() {
	if sweeperRemoved != nil {
		sweeperRemoved.Inc()
	}
}
