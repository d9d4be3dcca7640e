package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task names.
const (
	TaskProcessPayout     = "payout:process"
	TaskCheckPayoutStatus = "payout:check"
)

// Queue names. Payouts run at server concurrency 1 so the hot wallet nonce
// advances strictly sequentially.
const (
	QueuePayouts = "payouts"
)

// PayoutPayload travels with both payout task types.
type PayoutPayload struct {
	WithdrawalRequestID string `json:"withdrawalRequestId"`
	ChainID             string `json:"chainId"`
}

// Client wraps the asynq producer behind the enqueue surface the services
// need. Delivery is at-least-once with exponential backoff and attempt caps.
type Client struct {
	inner *asynq.Client
}

func NewClient(redisURL string) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	return &Client{inner: asynq.NewClient(opt)}, nil
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueuePayout schedules a processPayout job with 3 attempts.
func (c *Client) EnqueuePayout(ctx context.Context, withdrawalRequestID, chainID string) error {
	payload, err := json.Marshal(PayoutPayload{
		WithdrawalRequestID: withdrawalRequestID,
		ChainID:             chainID,
	})
	if err != nil {
		return fmt.Errorf("marshal payout payload: %w", err)
	}

	task := asynq.NewTask(TaskProcessPayout, payload)
	_, err = c.inner.EnqueueContext(ctx, task,
		asynq.Queue(QueuePayouts),
		asynq.MaxRetry(2),
		asynq.TaskID("payout:"+withdrawalRequestID),
	)
	if err != nil {
		return fmt.Errorf("enqueue payout: %w", err)
	}
	return nil
}

// EnqueueStatusCheck schedules a checkPayoutStatus job: 30s initial delay,
// up to 20 attempts with asynq's exponential backoff between retries.
func (c *Client) EnqueueStatusCheck(ctx context.Context, withdrawalRequestID, chainID string) error {
	payload, err := json.Marshal(PayoutPayload{
		WithdrawalRequestID: withdrawalRequestID,
		ChainID:             chainID,
	})
	if err != nil {
		return fmt.Errorf("marshal payout payload: %w", err)
	}

	task := asynq.NewTask(TaskCheckPayoutStatus, payload)
	_, err = c.inner.EnqueueContext(ctx, task,
		asynq.Queue(QueuePayouts),
		asynq.MaxRetry(19),
		asynq.ProcessIn(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue status check: %w", err)
	}
	return nil
}

// DecodePayoutPayload parses a task payload back into its typed form.
func DecodePayoutPayload(raw []byte) (PayoutPayload, error) {
	var payload PayoutPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return PayoutPayload{}, fmt.Errorf("unmarshal payout payload: %w", err)
	}
	if payload.WithdrawalRequestID == "" {
		return PayoutPayload{}, fmt.Errorf("payout payload missing withdrawal request id")
	}
	return payload, nil
}
