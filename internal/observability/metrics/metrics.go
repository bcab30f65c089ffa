package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests handled by the API service",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	dbOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_operation_duration_seconds",
		Help:    "Time spent executing database operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	redisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redis_operation_duration_seconds",
		Help:    "Time spent executing redis operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	kafkaOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_operation_duration_seconds",
		Help:    "Time spent sending data to Kafka",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	queueJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "queue_job_duration_seconds",
		Help:    "Time spent processing background queue jobs",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue", "type", "outcome"})

	onchainOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onchain_operations_total",
		Help: "Count of on-chain adapter operations by outcome",
	}, []string{"operation", "adapter", "outcome"})

	onchainOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "onchain_operation_duration_seconds",
		Help:    "Time spent in on-chain adapter calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "adapter"})
)

// ObserveHTTPRequest tracks the handling time of HTTP requests.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveDBOperation tracks database call duration.
func ObserveDBOperation(operation string, d time.Duration) {
	dbOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveRedisOperation tracks redis call duration.
func ObserveRedisOperation(operation string, d time.Duration) {
	redisOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveKafkaOperation tracks kafka call duration.
func ObserveKafkaOperation(operation string, d time.Duration) {
	kafkaOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveQueueJob tracks how long a queue job took and how it ended.
func ObserveQueueJob(queue, jobType, outcome string, d time.Duration) {
	queueJobDuration.WithLabelValues(queue, jobType, outcome).Observe(d.Seconds())
}

// IncrementOnchainOperation counts an adapter operation outcome.
func IncrementOnchainOperation(operation, adapter, outcome string) {
	onchainOperationsTotal.WithLabelValues(operation, adapter, outcome).Inc()
}

// ObserveOnchainDuration tracks adapter call duration.
func ObserveOnchainDuration(operation, adapter string, d time.Duration) {
	onchainOperationDuration.WithLabelValues(operation, adapter).Observe(d.Seconds())
}

// Onchain adapts the package-level on-chain collectors to the narrow metrics
// interface consumed by the claim service.
type Onchain struct{}

// IncrementOnchainOperation implements the claim service metrics contract.
func (Onchain) IncrementOnchainOperation(operation, adapter, outcome string) {
	IncrementOnchainOperation(operation, adapter, outcome)
}

// ObserveOnchainDuration implements the claim service metrics contract.
func (Onchain) ObserveOnchainDuration(operation, adapter string, d time.Duration) {
	ObserveOnchainDuration(operation, adapter, d)
}
