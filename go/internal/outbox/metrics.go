package outbox

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const metricNamespace = "powermeet/outbox"

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(string, bool, time.Duration) {}
func (n *NoOpMetricsCollector) RecordBatchProcessed(int, time.Duration)         {}
func (n *NoOpMetricsCollector) RecordOutboxLag(int)                             {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(string, int, bool)          {}

// MetricPublisher wraps an EventPublisher with metrics collection
type MetricPublisher struct {
	publisher EventPublisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher EventPublisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	start := time.Now()
	err := p.publisher.Publish(ctx, event)
	p.metrics.RecordEventProcessed(event.EventType, err == nil, time.Since(start))
	return err
}

// OTelMetrics implements MetricsCollector on OpenTelemetry instruments.
type OTelMetrics struct {
	events        metric.Int64Counter
	eventLatency  metric.Float64Histogram
	batchSize     metric.Int64Histogram
	batchDuration metric.Float64Histogram
	lag           metric.Int64Gauge
	attempts      metric.Int64Counter
}

// NewOTelMetrics registers the outbox instruments on meter, or on the
// global provider when meter is nil. Instruments that fail to register
// fall back to no-ops.
func NewOTelMetrics(meter metric.Meter) *OTelMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	m := &OTelMetrics{}
	var err error

	if m.events, err = meter.Int64Counter("outbox.events",
		metric.WithDescription("Lifting events relayed, by type and status")); err != nil {
		log.Warn().Err(err).Msg("outbox: unable to register event counter")
	}
	if m.eventLatency, err = meter.Float64Histogram("outbox.publish.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency of a single publish to the bus")); err != nil {
		log.Warn().Err(err).Msg("outbox: unable to register latency histogram")
	}
	if m.batchSize, err = meter.Int64Histogram("outbox.batch.size",
		metric.WithDescription("Events published per relay sweep")); err != nil {
		log.Warn().Err(err).Msg("outbox: unable to register batch size histogram")
	}
	if m.batchDuration, err = meter.Float64Histogram("outbox.batch.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Duration of a relay sweep")); err != nil {
		log.Warn().Err(err).Msg("outbox: unable to register batch duration histogram")
	}
	if m.lag, err = meter.Int64Gauge("outbox.lag",
		metric.WithDescription("Unsent events remaining after a sweep")); err != nil {
		log.Warn().Err(err).Msg("outbox: unable to register lag gauge")
	}
	if m.attempts, err = meter.Int64Counter("outbox.publish.attempts",
		metric.WithDescription("Publish attempts, by type, attempt number and status")); err != nil {
		log.Warn().Err(err).Msg("outbox: unable to register attempt counter")
	}
	return m
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (m *OTelMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	ctx := context.Background()
	if m.events != nil {
		m.events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("status", status(success)),
		))
	}
	if m.eventLatency != nil {
		m.eventLatency.Record(ctx, float64(duration)/float64(time.Millisecond),
			metric.WithAttributes(attribute.String("event_type", eventType)))
	}
}

func (m *OTelMetrics) RecordBatchProcessed(count int, duration time.Duration) {
	ctx := context.Background()
	if m.batchSize != nil {
		m.batchSize.Record(ctx, int64(count))
	}
	if m.batchDuration != nil {
		m.batchDuration.Record(ctx, float64(duration)/float64(time.Millisecond))
	}
}

func (m *OTelMetrics) RecordOutboxLag(lag int) {
	if m.lag != nil {
		m.lag.Record(context.Background(), int64(lag))
	}
}

func (m *OTelMetrics) RecordPublishAttempt(eventType string, attempt int, success bool) {
	if m.attempts != nil {
		m.attempts.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("event_type", eventType),
			attribute.String("attempt", strconv.Itoa(attempt)),
			attribute.String("status", status(success)),
		))
	}
}
