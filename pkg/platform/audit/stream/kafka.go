// Package stream mirrors audit entries onto a Kafka topic for downstream
// consumers (SIEM, analytics). It is a secondary sink: the audit store of
// record stays the database.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "kvault/pkg/platform/audit"
	"kvault/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the broker is considered unhealthy.
var ErrCircuitOpen = errors.New("audit stream circuit open")

var (
	streamPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvault_audit_stream_published_total",
		Help: "Audit entries published to the stream",
	})
	streamFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvault_audit_stream_failures_total",
		Help: "Audit entries the broker rejected",
	})
	streamShortCircuited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kvault_audit_stream_short_circuited_total",
		Help: "Audit entries skipped because the stream circuit was open",
	})
)

// Producer is the subset of *kgo.Client the sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Sink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Sink)

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSink(producer Producer, topic string, opts ...Option) *Sink {
	s := &Sink{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("audit-stream"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append publishes entry keyed by its target so one artefact's history stays ordered.
func (s *Sink) Append(ctx context.Context, entry audit.Entry) error {
	if !s.breaker.Allow() {
		streamShortCircuited.Inc()
		return ErrCircuitOpen
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(entry.TargetID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(entry.Action)},
		},
	}

	if err := s.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		streamFailures.Inc()
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "audit stream circuit opened",
				"topic", s.topic,
				"error", err,
			)
		}
		return fmt.Errorf("produce audit entry: %w", err)
	}

	streamPublished.Inc()
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "audit stream circuit closed", "topic", s.topic)
	}
	return nil
}
