package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrInvalidMessage marks a message that can never succeed. It skips the
// retry queue and goes straight to the dead-letter queue.
var ErrInvalidMessage = errors.New("invalid queue message")

// RebuildMessage requests a full graph rebuild for one owner.
type RebuildMessage struct {
	OwnerID   string `json:"owner_id"`
	RequestID string `json:"request_id"`
}

// PublishRebuild enqueues a rebuild for owner and returns the request id.
func PublishRebuild(ctx context.Context, pub Publisher, owner string) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", fmt.Errorf("%w: empty owner", ErrInvalidMessage)
	}
	requestID, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	body, err := json.Marshal(RebuildMessage{OwnerID: owner, RequestID: requestID})
	if err != nil {
		return "", err
	}
	if err := PublishFIFO(ctx, pub, RebuildQueue, body, nil); err != nil {
		return "", fmt.Errorf("publish rebuild: %w", err)
	}
	return requestID, nil
}

func decodeRebuildMessage(body []byte) (RebuildMessage, error) {
	var msg RebuildMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg.OwnerID = strings.TrimSpace(msg.OwnerID)
	if msg.OwnerID == "" {
		return msg, fmt.Errorf("%w: empty owner_id", ErrInvalidMessage)
	}
	return msg, nil
}
