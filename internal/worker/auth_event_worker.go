package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"videotube/internal/model"
	"videotube/internal/platform/rabbitmq"
)

type AuthEventStore interface {
	Create(ctx context.Context, event *model.AuthEvent) error
}

var errMalformedEvent = errors.New("malformed auth event")

// AuthEventWorker drains the auth event queue into the audit table.
type AuthEventWorker struct {
	conn      *amqp.Connection
	store     AuthEventStore
	queueName string
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAuthEventWorker(conn *amqp.Connection, store AuthEventStore, queueName string, log *zap.Logger) *AuthEventWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthEventWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		log:       log,
	}
}

func (w *AuthEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareDurableQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("auth event deliveries closed", zap.String("queue", w.queueName))
					return
				}

				if err := w.handle(workerCtx, d.Body); err != nil {
					w.log.Error("persist auth event failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.log.Info("auth event worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *AuthEventWorker) handle(ctx context.Context, body []byte) error {
	var event model.AuthEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if event.UserID == 0 || event.Kind == "" {
		return fmt.Errorf("%w: missing user id or kind", errMalformedEvent)
	}
	// The row id is assigned by the database.
	event.ID = 0
	return w.store.Create(ctx, &event)
}

func (w *AuthEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
