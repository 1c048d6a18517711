package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/errkind"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/events"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/metrics"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/products"
	"github.com/PatrickalKhouri/ingredient-manager/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// IngredientsUpdater applies an upstream ingredient change.
type IngredientsUpdater interface {
	UpdateIngredients(ctx context.Context, input products.UpdateIngredientsInput) (*products.UpdateResult, error)
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer applies product.ingredients.changed events. A message is committed once it was applied,
// or when it can never be applied (malformed, unknown product); retryable failures leave it
// uncommitted so it is redelivered.
type Consumer struct {
	reader  messageReader
	updater IngredientsUpdater
	logger  ectologger.Logger
	topic   string
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, updater IngredientsUpdater) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})
	return newConsumer(reader, cfg.Topic, logger, updater)
}

func newConsumer(reader messageReader, topic string, logger ectologger.Logger, updater IngredientsUpdater) *Consumer {
	return &Consumer{
		reader:  reader,
		updater: updater,
		logger:  logger,
		topic:   topic,
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.consumeLoop(ctx)

	c.logger.WithContext(ctx).WithField("topic", c.topic).Info("Kafka consumer started")
	return nil
}

func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.reader.Close()
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.WithContext(ctx).Info("Consumer loop stopping")
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			continue
		}
		c.handle(ctx, msg)
	}
}

// handle processes one message and reports whether it was committed.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.handle")
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	err := c.apply(ctx, msg)
	switch {
	case err == nil:
		metrics.RecordKafkaConsume(c.topic, "success")
	case errkind.IsRetryable(err):
		metrics.RecordKafkaConsume(c.topic, "retry")
		log.WithError(err).Warn("Failed to apply ingredient change, leaving uncommitted")
		return false
	default:
		metrics.RecordKafkaConsume(c.topic, "dropped")
		log.WithError(err).Error("Dropping ingredient change that cannot be applied")
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		log.WithError(err).Error("Failed to commit message")
		return false
	}
	return true
}

func (c *Consumer) apply(ctx context.Context, msg kafka.Message) error {
	var evt struct {
		Type    string                    `json:"type"`
		Payload events.IngredientsChanged `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return errkind.Wrap(errkind.InvalidArgument, err, "decode ingredient change")
	}
	change := evt.Payload
	if evt.Type != "" && evt.Type != events.TypeIngredientsChanged {
		return errkind.Newf(errkind.InvalidArgument, "unexpected event type %s", evt.Type)
	}
	if change.ProductID == "" {
		change.ProductID = string(msg.Key)
	}

	result, err := c.updater.UpdateIngredients(ctx, products.UpdateIngredientsInput{
		ProductID:   change.ProductID,
		Ingredients: change.Ingredients,
		Text:        change.Text,
	})
	if err != nil {
		return err
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"product_id": result.ProductID,
		"saved":      len(result.SavedList),
		"removed":    result.Removed,
		"resolved":   result.Resolved,
	}).Info("Applied ingredient change")
	return nil
}
