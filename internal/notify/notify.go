// Package notify defines the notification sink used for manager alerts.
package notify

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/forkline-erp/forkline/jobs"
)

// Priority of a notification.
type Priority string

const (
	// PriorityNormal is the default delivery priority.
	PriorityNormal Priority = "NORMAL"
	// PriorityHigh marks escalated alerts.
	PriorityHigh Priority = "HIGH"
)

// Message is a structured notification for one recipient.
type Message struct {
	RecipientID int64
	Priority    Priority
	Title       string
	Body        string
	Amount      float64
	Meta        map[string]string
}

// Notifier accepts messages for asynchronous delivery.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// AsynqNotifier enqueues messages onto the background queue; the worker
// process performs the actual delivery.
type AsynqNotifier struct {
	client *asynq.Client
}

// NewAsynqNotifier constructs AsynqNotifier.
func NewAsynqNotifier(client *asynq.Client) *AsynqNotifier {
	return &AsynqNotifier{client: client}
}

// Send enqueues one notification task.
func (n *AsynqNotifier) Send(ctx context.Context, msg Message) error {
	if n == nil || n.client == nil {
		return fmt.Errorf("notify: client not configured")
	}
	task, err := jobs.NewNotifyTask(jobs.NotifyPayload{
		RecipientID: msg.RecipientID,
		Priority:    string(msg.Priority),
		Title:       msg.Title,
		Body:        msg.Body,
		Amount:      msg.Amount,
		Meta:        msg.Meta,
	})
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(5)}
	if msg.Priority == PriorityHigh {
		opts = append(opts, asynq.Queue(jobs.QueueCritical))
	}
	_, err = n.client.EnqueueContext(ctx, task, opts...)
	return err
}
