package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"post-drip-bot/internal/domain"
)

// RabbitRunQueue реализует очередь задач планирования поверх AMQP.
// Подтверждение с success=false возвращает задачу в очередь через nack.
type RabbitRunQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string

	mu         sync.Mutex
	deliveries <-chan amqp.Delivery
}

var _ domain.RunQueue = (*RabbitRunQueue)(nil)

// NewRabbitRunQueue подключается к брокеру и объявляет устойчивую очередь.
func NewRabbitRunQueue(url, queueName string) (*RabbitRunQueue, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queueName == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &RabbitRunQueue{conn: conn, channel: channel, queue: queueName}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitRunQueue) Enqueue(ctx context.Context, job domain.RunJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди.
func (q *RabbitRunQueue) Receive(ctx context.Context) (domain.RunJob, domain.RunAckFunc, error) {
	deliveries, err := q.consumeChan()
	if err != nil {
		return domain.RunJob{}, nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return domain.RunJob{}, nil, ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return domain.RunJob{}, nil, errors.New("amqp queue: канал доставки закрыт")
			}
			var job domain.RunJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				// Нечитаемое сообщение отбрасывается без повторной доставки.
				_ = delivery.Nack(false, false)
				continue
			}
			ack := func(success bool) error {
				if success {
					return delivery.Ack(false)
				}
				return delivery.Nack(false, true)
			}
			return job, ack, nil
		}
	}
}

func (q *RabbitRunQueue) consumeChan() (<-chan amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deliveries != nil {
		return q.deliveries, nil
	}
	deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	q.deliveries = deliveries
	return deliveries, nil
}

// Close закрывает канал и соединение.
func (q *RabbitRunQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
