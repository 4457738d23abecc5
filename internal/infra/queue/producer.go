package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/leadstitch/internal/usecase"
)

// AttemptHeader conta quantas vezes o job já foi tentado.
const AttemptHeader = "x-leadstitch-attempt"

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RetryProducer publica escritas secundárias que falharam.
type RetryProducer struct {
	Ch publisher
}

func NewRetryProducer(ch publisher) *RetryProducer {
	return &RetryProducer{Ch: ch}
}

// PublishRetry agenda a primeira tentativa; o job passa pela fila de espera
// antes de chegar no worker.
func (p *RetryProducer) PublishRetry(ctx context.Context, job usecase.RetryJob) error {
	return p.publish(ctx, job, 1)
}

func (p *RetryProducer) publish(ctx context.Context, job usecase.RetryJob, attempt int32) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("erro ao converter job: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		WaitExchangeName,
		waitRoutingKey(attempt),
		false, // Mandatory
		false, // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Type:         job.Kind,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{AttemptHeader: attempt},
		},
	)
	if err != nil {
		return fmt.Errorf("falha ao publicar no RabbitMQ: %w", err)
	}
	return nil
}
