package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/papertrail-ai/papertrail/backend/pkg/graph"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	MaxRetries    = 10
	retriesHeader = "x-retries"
)

// Rebuilder is the part of graph.GraphClient the worker needs.
type Rebuilder interface {
	RebuildGraph(ctx context.Context, owner string) (graph.RebuildStats, error)
}

// ProcessRebuildMessage decodes body and rebuilds the owner's graph.
func ProcessRebuildMessage(ctx context.Context, rebuilder Rebuilder, body []byte) error {
	msg, err := decodeRebuildMessage(body)
	if err != nil {
		return err
	}

	stats, err := rebuilder.RebuildGraph(ctx, msg.OwnerID)
	if err != nil {
		if errors.Is(err, graph.ErrEmptyOwner) {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return err
	}

	logger.Info(
		"[Queue] Rebuild finished",
		"owner", msg.OwnerID,
		"request_id", msg.RequestID,
		"nodes", stats.Nodes,
		"edges", stats.Edges,
		"duration", stats.Duration,
	)
	return nil
}

// HandleFailure routes a failed delivery to the retry queue, or to the
// dead-letter queue once MaxRetries is reached or the message is invalid.
// The original delivery is acked once the copy is published and requeued
// if publishing fails.
func HandleFailure(ctx context.Context, pub Publisher, msg amqp091.Delivery, queueName string, cause error) {
	retries := retryCount(msg.Headers)

	target := queueName + retrySuffix
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	if retries >= MaxRetries || errors.Is(cause, ErrInvalidMessage) {
		target = queueName + dlqSuffix
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", retries, "err", cause)
	} else {
		headers[retriesHeader] = int32(retries + 1)
	}

	if err := PublishFIFO(ctx, pub, target, msg.Body, headers); err != nil {
		logger.Error("[Queue] Failed to publish failed message", "queue", target, "err", err)
		_ = msg.Nack(false, true)
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
}

func retryCount(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// ConsumeRebuilds processes RebuildQueue one message at a time until ctx
// is cancelled or the delivery channel closes.
func ConsumeRebuilds(ctx context.Context, ch *amqp091.Channel, rebuilder Rebuilder) error {
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(RebuildQueue, RebuildQueue+"_consumer", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", RebuildQueue, err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", RebuildQueue)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			HandleDelivery(ctx, ch, rebuilder, d)
		}
	}
}

// HandleDelivery processes one delivery and acks or reroutes it.
func HandleDelivery(ctx context.Context, pub Publisher, rebuilder Rebuilder, d amqp091.Delivery) {
	start := time.Now()
	err := ProcessRebuildMessage(ctx, rebuilder, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("[Queue] Failed to ack message", "err", ackErr)
		}
		logger.Debug("[Queue] Message processed", "queue", RebuildQueue, "took", time.Since(start))
	default:
		logger.Error("[Queue] Error processing message", "queue", RebuildQueue, "err", err)
		HandleFailure(ctx, pub, d, RebuildQueue, err)
	}
}
