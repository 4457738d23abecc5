package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/leadstitch/internal/entity"
	"github.com/xavierca1/leadstitch/internal/usecase"
)

const (
	OutcomeAck        = "ack"
	OutcomeRequeued   = "requeued"
	OutcomeDeadLetter = "dead_letter"
)

type TouchpointWriter interface {
	Create(ctx context.Context, input usecase.CreateTouchpointInput) (*entity.Touchpoint, error)
}

type BridgeWriter interface {
	Record(ctx context.Context, input usecase.RecordBridgeInput) (*entity.BridgeAssociation, error)
}

type RetryMetrics interface {
	RetryProcessed(kind, outcome string)
}

type consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// RetryWorker reexecuta escritas secundárias que falharam na ingestão.
type RetryWorker struct {
	Channel     consumer
	Producer    *RetryProducer
	Touchpoints TouchpointWriter
	Bridge      BridgeWriter
	Metrics     RetryMetrics
}

func NewRetryWorker(ch consumer, producer *RetryProducer, touchpoints TouchpointWriter, bridge BridgeWriter, metrics RetryMetrics) *RetryWorker {
	return &RetryWorker{
		Channel:     ch,
		Producer:    producer,
		Touchpoints: touchpoints,
		Bridge:      bridge,
		Metrics:     metrics,
	}
}

// Start bloqueia até ctx ser cancelado ou o canal fechar.
func (w *RetryWorker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(
		queueName, // fila
		"",        // consumer
		false,     // auto-ack (manual)
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return fmt.Errorf("falha ao registrar consumidor RabbitMQ: %w", err)
	}

	slog.Info("RetryWorker: consuming", "queue", queueName)
	for {
		select {
		case <-ctx.Done():
			slog.Info("RetryWorker: stopping")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("retry worker: delivery channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

func (w *RetryWorker) handle(ctx context.Context, d amqp.Delivery) {
	var job usecase.RetryJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		// Mensagem malformada: direto pra DLQ para não travar a fila.
		slog.Error("RetryWorker: invalid job payload", "error", err)
		w.settle(d, "unknown", OutcomeDeadLetter)
		return
	}

	attempt := attemptOf(d)
	err := w.process(ctx, job)
	switch {
	case err == nil:
		slog.Info("RetryWorker: job replayed", "kind", job.Kind, "attempt", attempt)
		w.settle(d, job.Kind, OutcomeAck)

	case usecase.IsTechnicalError(err) && attempt < MaxAttempts:
		if pubErr := w.Producer.publish(ctx, job, attempt+1); pubErr != nil {
			slog.Error("RetryWorker: could not requeue job", "kind", job.Kind, "error", pubErr)
			w.settle(d, job.Kind, OutcomeDeadLetter)
			return
		}
		slog.Warn("RetryWorker: job failed, requeued", "kind", job.Kind, "attempt", attempt,
			"next_in", RetryDelay(attempt+1).String(), "error", err)
		w.settle(d, job.Kind, OutcomeRequeued)

	default:
		slog.Error("RetryWorker: job dead-lettered", "kind", job.Kind, "attempt", attempt, "error", err)
		w.settle(d, job.Kind, OutcomeDeadLetter)
	}
}

func (w *RetryWorker) process(ctx context.Context, job usecase.RetryJob) error {
	switch job.Kind {
	case usecase.RetryKindTouchpoint:
		if job.Touchpoint == nil {
			return errors.New("touchpoint job without payload")
		}
		_, err := w.Touchpoints.Create(ctx, *job.Touchpoint)
		return err

	case usecase.RetryKindBridgeRecord:
		if job.Bridge == nil {
			return errors.New("bridge job without payload")
		}
		_, err := w.Bridge.Record(ctx, *job.Bridge)
		return err

	default:
		return fmt.Errorf("unknown retry kind %q", job.Kind)
	}
}

// settle dá Ack quando o job terminou (sucesso ou republicado) e Nack sem
// requeue quando ele deve ir pra DLQ.
func (w *RetryWorker) settle(d amqp.Delivery, kind, outcome string) {
	var err error
	if outcome == OutcomeDeadLetter {
		err = d.Nack(false, false)
	} else {
		err = d.Ack(false)
	}
	if err != nil {
		slog.Error("RetryWorker: could not settle delivery", "outcome", outcome, "error", err)
	}
	if w.Metrics != nil {
		w.Metrics.RetryProcessed(kind, outcome)
	}
}

func attemptOf(d amqp.Delivery) int32 {
	switch v := d.Headers[AttemptHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	}
	return 1
}
