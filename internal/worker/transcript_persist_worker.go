package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"loganalyzer/internal/model"
	"loganalyzer/internal/platform/rabbitmq"
)

var errMalformedMessage = errors.New("malformed transcript message")

type MessageStore interface {
	Create(message *model.Message) error
}

// TranscriptPersistWorker drains the transcript queue into the store.
type TranscriptPersistWorker struct {
	conn      *amqp.Connection
	store     MessageStore
	queueName string
	prefetch  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTranscriptPersistWorker(conn *amqp.Connection, store MessageStore, queueName string) *TranscriptPersistWorker {
	return &TranscriptPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		prefetch:  32,
	}
}

func (w *TranscriptPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(w.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"transcript-persist",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

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
					log.Printf("[worker] transcript queue %s closed", w.queueName)
					return
				}
				w.deliver(d)
			}
		}
	}()

	return nil
}

func (w *TranscriptPersistWorker) deliver(d amqp.Delivery) {
	err := w.handle(d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errMalformedMessage):
		log.Printf("[worker] drop transcript message: %v", err)
		_ = d.Nack(false, false)
	default:
		// the store may come back; requeue once
		log.Printf("[worker] persist transcript message failed: %v", err)
		_ = d.Nack(false, !d.Redelivered)
	}
}

func (w *TranscriptPersistWorker) handle(body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformedMessage, err)
	}
	if strings.TrimSpace(msg.SessionID) == "" || msg.Role == "" {
		return fmt.Errorf("%w: missing session id or role", errMalformedMessage)
	}
	msg.ID = 0
	return w.store.Create(&msg)
}

func (w *TranscriptPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
