package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smokealert_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Sensor poll metrics
	SensorReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_sensor_reads_total",
			Help: "Sensor reads by outcome",
		},
		[]string{"channel", "outcome"}, // outcome: ok, absent, failed, malformed
	)

	SensorReadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smokealert_sensor_read_duration_seconds",
			Help:    "Latency of a single remote sensor read",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	SensorReadsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_sensor_reads_skipped_total",
			Help: "Reads not issued because the previous read for the channel was still in flight",
		},
		[]string{"channel"},
	)

	SensorValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smokealert_sensor_value_percent",
			Help: "Latest successfully read sensor value",
		},
		[]string{"channel"},
	)

	PollCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smokealert_poll_cycles_total",
			Help: "Total number of sensor poll cycles started",
		},
	)

	// Threshold metrics
	Threshold = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smokealert_threshold_percent",
			Help: "Current alert threshold",
		},
	)

	ThresholdWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_threshold_writes_total",
			Help: "Threshold writes to the remote store",
		},
		[]string{"status"}, // status: success, failed
	)

	// Alert metrics
	ViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_violations_total",
			Help: "Channel readings found above the threshold",
		},
		[]string{"channel"},
	)

	AlertsDispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smokealert_alerts_dispatched_total",
			Help: "Alert messages dispatched",
		},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_alerts_suppressed_total",
			Help: "Persistent notifications not delivered",
		},
		[]string{"reason"}, // reason: permission, duplicate, queue_full, channel
	)

	// Liveness metrics
	DeviceOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smokealert_device_online",
			Help: "1 when the device heartbeat is fresh, 0 otherwise",
		},
	)

	HeartbeatAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smokealert_heartbeat_age_seconds",
			Help: "Seconds since the last device heartbeat",
		},
	)

	HeartbeatReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_heartbeat_reads_total",
			Help: "Heartbeat reads by outcome",
		},
		[]string{"outcome"},
	)

	// Delivery worker metrics
	DeliveryQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smokealert_delivery_queue_size",
			Help: "Current size of the notification delivery queue",
		},
	)

	DeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smokealert_notifications_delivered_total",
			Help: "Total number of notifications delivered",
		},
	)

	DeliveryFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smokealert_notifications_failed_total",
			Help: "Total number of notifications that could not be delivered",
		},
	)

	DeliveryBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smokealert_delivery_batch_duration_seconds",
			Help:    "Time taken to deliver a batch of notifications",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Kafka producer metrics
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smokealert_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokealert_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
