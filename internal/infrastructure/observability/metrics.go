package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	// Гистограмма времени выполнения запросов
	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	PaymentsConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_confirmed_total",
			Help: "Payments confirmed by the gateway, by payment kind",
		},
		[]string{"kind"},
	)

	CapacityExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capacity_exhausted_total",
			Help: "Offerings whose capacity reached zero, by kind",
		},
		[]string{"kind"},
	)

	AutoCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auto_cancelled_total",
			Help: "Pending purchases cancelled automatically, by reason",
		},
		[]string{"reason"},
	)
)

var registerOnce sync.Once

func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(RepositoryCalls, RepositoryDuration, PaymentsConfirmed, CapacityExhausted, AutoCancelled)
	})
}
