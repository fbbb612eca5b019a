// Package kafka publishes recorded observations to a shore-side topic when
// the vessel has connectivity. The uplink is best-effort: the learning
// engine never waits on it, and a full queue drops observations rather than
// stalling ingestion.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/saltline/polar-engine/internal/engine"
	"github.com/saltline/polar-engine/internal/observability"
)

// Uplink implements engine.ObservationSink on a Kafka producer.
type Uplink struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics

	queue     chan engine.RecordedObservation
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewUplink creates a producer for the given brokers and topic and starts
// its publish worker.
func NewUplink(brokers []string, topic string, logger *slog.Logger, metrics *observability.Metrics) *Uplink {
	u := &Uplink{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
		},
		logger:  logger,
		metrics: metrics,
		queue:   make(chan engine.RecordedObservation, 128),
	}
	u.wg.Add(1)
	go u.publishLoop()
	return u
}

// Publish enqueues an observation without blocking. Overflow is counted and
// dropped; a patchy offshore link must not back-pressure the sample path.
func (u *Uplink) Publish(obs engine.RecordedObservation) {
	select {
	case u.queue <- obs:
	default:
		u.metrics.UplinkQueueDrops.Inc()
	}
}

// Close stops the worker after draining queued observations.
func (u *Uplink) Close() error {
	u.closeOnce.Do(func() { close(u.queue) })
	u.wg.Wait()
	return u.writer.Close()
}

func (u *Uplink) publishLoop() {
	defer u.wg.Done()
	for obs := range u.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := u.writer.WriteMessages(ctx, buildMessage(obs))
		cancel()
		if err != nil {
			u.metrics.UplinkErrors.Inc()
			u.logger.Warn("uplink publish failed", "error", err)
			continue
		}
		u.metrics.UplinkPublished.Inc()
	}
}

// buildMessage marshals an observation into a Kafka message keyed by bucket
// so shore-side compaction keeps the latest state per grid cell.
func buildMessage(obs engine.RecordedObservation) kafkago.Message {
	data, err := json.Marshal(obs)
	if err != nil {
		// RecordedObservation contains only scalars; this cannot fail.
		panic(fmt.Sprintf("marshal observation: %v", err))
	}
	return kafkago.Message{
		Key:   []byte(strconv.Itoa(obs.SpeedBucket) + "-" + strconv.Itoa(obs.AngleBucket)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "recorded_at", Value: []byte(obs.RecordedAt.Format(time.RFC3339))},
		},
	}
}
