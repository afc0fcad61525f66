package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/simurgh-io/simurgh/models"
	"github.com/simurgh-io/simurgh/utils"
	"github.com/streadway/amqp"
)

// ErrBrokerUnavailable reports that the broker could not be reached after the
// configured dial attempts. It fails a whole batch, not single items.
var ErrBrokerUnavailable = errors.New("message broker unavailable")

// BatchResult reports the outcome of a batch enqueue
type BatchResult struct {
	Accepted int
	Failed   int
	Errors   []error
}

// DispatchProducer publishes dispatch jobs to the broker for downstream workers
type DispatchProducer interface {
	Enqueue(job *models.DispatchJob) error
	EnqueueBatch(jobs []*models.DispatchJob) (*BatchResult, error)
	Close() error
}

// AMQPDispatchProducer publishes dispatch jobs to a durable RabbitMQ queue
type AMQPDispatchProducer struct {
	url            string
	queueName      string
	dialAttempts   int
	initialBackoff time.Duration
	mu             sync.Mutex
	conn           *amqp.Connection
	channel        *amqp.Channel
}

// NewAMQPDispatchProducer creates a producer for the given broker URL and queue.
// The connection is established lazily on first publish.
func NewAMQPDispatchProducer(url, queueName string, dialAttempts int, initialBackoff time.Duration) *AMQPDispatchProducer {
	if dialAttempts < 1 {
		dialAttempts = utils.BrokerConnectAttempts
	}
	if initialBackoff <= 0 {
		initialBackoff = utils.BrokerConnectBackoff
	}
	return &AMQPDispatchProducer{
		url:            url,
		queueName:      queueName,
		dialAttempts:   dialAttempts,
		initialBackoff: initialBackoff,
	}
}

// ensureChannel opens the connection and channel if needed and declares the
// durable queue. Callers must hold p.mu.
func (p *AMQPDispatchProducer) ensureChannel() error {
	if p.channel != nil {
		return nil
	}

	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= p.dialAttempts; attempt++ {
		conn, err = amqp.Dial(p.url)
		if err == nil {
			break
		}
		if attempt < p.dialAttempts {
			time.Sleep(p.initialBackoff * time.Duration(attempt))
		}
	}
	if err != nil {
		return fmt.Errorf("%w: failed to connect after %d attempts: %v", ErrBrokerUnavailable, p.dialAttempts, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: failed to open channel: %v", ErrBrokerUnavailable, err)
	}

	_, err = ch.QueueDeclare(
		p.queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", p.queueName, err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

// resetLocked tears down a broken connection so the next publish redials.
// Callers must hold p.mu.
func (p *AMQPDispatchProducer) resetLocked() {
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPDispatchProducer) publishLocked(job *models.DispatchJob) error {
	if err := job.Validate(); err != nil {
		return err
	}

	if err := p.ensureChannel(); err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch job %s: %w", job.JobID, err)
	}

	err = p.channel.Publish(
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    utils.UTCNow(),
			Body:         body,
		},
	)
	if err != nil {
		p.resetLocked()
		return fmt.Errorf("failed to publish dispatch job %s: %w", job.JobID, err)
	}
	return nil
}

// Enqueue publishes a single dispatch job as a persistent message
func (p *AMQPDispatchProducer) Enqueue(job *models.DispatchJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.publishLocked(job)
}

// EnqueueBatch publishes jobs one by one. A failed item does not abort the
// rest of the batch, except when the broker itself is unreachable: that fails
// the remaining batch as a unit, with jobs already published still counted as
// accepted so the caller never treats durably queued work as dropped.
func (p *AMQPDispatchProducer) EnqueueBatch(jobs []*models.DispatchJob) (*BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result := &BatchResult{}
	for _, job := range jobs {
		if err := p.publishLocked(job); err != nil {
			if errors.Is(err, ErrBrokerUnavailable) {
				return result, err
			}
			result.Failed++
			result.Errors = append(result.Errors, fmt.Errorf("job %s: %w", job.JobID, err))
			continue
		}
		result.Accepted++
	}
	return result, nil
}

// Close shuts down the channel and connection
func (p *AMQPDispatchProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
