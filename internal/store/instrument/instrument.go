// Package instrument records Prometheus metrics for meta store operations
// and HTTP requests.
package instrument

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wp-orm/wpmeta/internal/orm/meta"
)

// Metrics holds all Prometheus metrics of the service
type Metrics struct {
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wpmeta_store_operations_total",
				Help: "Total number of meta store operations",
			},
			[]string{"op", "status"},
		),
		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wpmeta_store_operation_duration_seconds",
				Help:    "Duration of meta store operations in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"op"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wpmeta_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wpmeta_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// RecordStoreOperation records one store operation
func (m *Metrics) RecordStoreOperation(op string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(op, status).Inc()
	m.StoreOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordHTTPRequest records one HTTP request
func (m *Metrics) RecordHTTPRequest(method string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Store is a meta.Store recording metrics for every call
type Store struct {
	next    meta.Store
	metrics *Metrics
}

// Wrap instruments a store
func Wrap(next meta.Store, metrics *Metrics) *Store {
	return &Store{next: next, metrics: metrics}
}

func (s *Store) Add(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value interface{}) error {
	start := time.Now()
	err := s.next.Add(ctx, objectType, objectID, key, value)
	s.metrics.RecordStoreOperation("add", err, time.Since(start))
	return err
}

func (s *Store) Update(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value, prevValue interface{}) error {
	start := time.Now()
	err := s.next.Update(ctx, objectType, objectID, key, value, prevValue)
	s.metrics.RecordStoreOperation("update", err, time.Since(start))
	return err
}

func (s *Store) Delete(ctx context.Context, objectType meta.ObjectType, objectID int64, key string, value interface{}) error {
	start := time.Now()
	err := s.next.Delete(ctx, objectType, objectID, key, value)
	s.metrics.RecordStoreOperation("delete", err, time.Since(start))
	return err
}

func (s *Store) GetAll(ctx context.Context, objectType meta.ObjectType, objectID int64) (meta.Rows, error) {
	start := time.Now()
	rows, err := s.next.GetAll(ctx, objectType, objectID)
	s.metrics.RecordStoreOperation("get_all", err, time.Since(start))
	return rows, err
}

func (s *Store) GetByKey(ctx context.Context, objectType meta.ObjectType, objectID int64, key string) ([]interface{}, error) {
	start := time.Now()
	values, err := s.next.GetByKey(ctx, objectType, objectID, key)
	s.metrics.RecordStoreOperation("get_by_key", err, time.Since(start))
	return values, err
}
