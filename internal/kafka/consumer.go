package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"escalation-service/internal/logging"
	"escalation-service/internal/metrics"
	"escalation-service/internal/models"
)

// TaskQueue is satisfied by *services.Service.
type TaskQueue interface {
	QueueTask(task models.Task) bool
}

type Consumer struct {
	reader *kafkago.Reader
	queue  TaskQueue
	logger *logging.Logger
}

func NewConsumer(brokers []string, topic, groupID string, queue TaskQueue, logger *logging.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafkago.FirstOffset,
	})
	return &Consumer{reader: reader, queue: queue, logger: logger}
}

// Start reads until ctx is cancelled. Offsets are committed once a message has
// been handed to the queue or rejected as malformed.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Infof("Kafka consumer started on topic %s", c.reader.Config().Topic)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.logger.Infof("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Read message failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			task, err := DecodeTask(msg.Value, time.Now())
			if err != nil {
				metrics.EventsIngested.WithLabelValues("unknown", "malformed").Inc()
				c.logger.Errorf("Skipping message at offset %d: %v", msg.Offset, err)
			} else {
				c.queue.QueueTask(task)
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.logger.Errorf("Closing Kafka reader failed: %v", err)
	}
}

// DecodeTask parses one event and fills in a request id and timestamp when the
// producer left them out.
func DecodeTask(data []byte, now time.Time) (models.Task, error) {
	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return models.Task{}, fmt.Errorf("decode event: %w", err)
	}
	switch task.Type {
	case models.TaskCriticalAlert:
		if task.Alert == nil {
			return models.Task{}, fmt.Errorf("critical_alert event without alert")
		}
	case models.TaskRoleExpiry:
		if task.UserID == "" || task.Role == "" || task.ExpiryDate == "" {
			return models.Task{}, fmt.Errorf("role_expiry event needs user_id, role and expiry_date")
		}
	default:
		return models.Task{}, fmt.Errorf("unknown event type %q", task.Type)
	}
	if task.RequestID == "" {
		task.RequestID = uuid.NewString()
	}
	if task.Timestamp.IsZero() {
		task.Timestamp = now.UTC()
	}
	return task, nil
}
