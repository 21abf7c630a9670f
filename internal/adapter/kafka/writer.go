package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/aqi-fusion/internal/config"
	"github.com/couchcryptid/aqi-fusion/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes tract AQI records to a Kafka topic, one message per tract.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// LoadTracts publishes every tract in a single WriteMessages call. Tracts
// are keyed by id so each tract's history stays on one partition.
func (w *Writer) LoadTracts(ctx context.Context, run domain.RunInfo, tracts []domain.TractAQI) error {
	if len(tracts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(tracts))
	for i := range tracts {
		msg, err := serializeToMessage(run, tracts[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Debug("tracts published", "topic", w.writer.Topic, "count", len(msgs), "run_id", run.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// TractMessage is the JSON value of a published tract record.
type TractMessage struct {
	domain.TractAQI
	RunID       string             `json:"run_id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Window      string             `json:"window"`
	Weights     map[string]float64 `json:"weights"`
}

func serializeToMessage(run domain.RunInfo, t domain.TractAQI) (kafkago.Message, error) {
	weights := make(map[string]float64, len(run.Weights))
	for n, v := range run.Weights {
		weights[string(n)] = v
	}
	data, err := json.Marshal(TractMessage{
		TractAQI:    t,
		RunID:       run.RunID,
		GeneratedAt: run.GeneratedAt,
		Window:      run.Window.String(),
		Weights:     weights,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize tract %s: %w", t.TractID, err)
	}
	return kafkago.Message{
		Key:   []byte(t.TractID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(run.RunID)},
			{Key: "generated_at", Value: []byte(run.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
