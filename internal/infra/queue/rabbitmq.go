package queue

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "ex.leadstitch"
	QueueName    = "q.leadstitch.retry"
	DLQName      = "q.leadstitch.retry.dlq"
	DLXName      = "ex.leadstitch.dlx" // Dead Letter Exchange
	RoutingKey   = "k.retry"

	// Jobs esperam aqui até o TTL vencer e voltam para ExchangeName.
	WaitExchangeName = "ex.leadstitch.wait"
	waitQueuePrefix  = "q.leadstitch.retry.wait."
	waitKeyPrefix    = "k.wait."

	prefetchCount = 10
)

// MaxAttempts é quantas vezes um job é reexecutado antes de ir pra DLQ.
const MaxAttempts = 5

// retryDelays[n-1] é a espera antes da tentativa n.
var retryDelays = [MaxAttempts]time.Duration{
	10 * time.Second,
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// RetryDelay devolve a espera antes da tentativa; fora da faixa usa a maior.
func RetryDelay(attempt int32) time.Duration {
	switch {
	case attempt < 1:
		return retryDelays[0]
	case attempt > MaxAttempts:
		return retryDelays[MaxAttempts-1]
	}
	return retryDelays[attempt-1]
}

func WaitQueueName(attempt int32) string {
	return fmt.Sprintf("%s%d", waitQueuePrefix, clampAttempt(attempt))
}

func waitRoutingKey(attempt int32) string {
	return fmt.Sprintf("%s%d", waitKeyPrefix, clampAttempt(attempt))
}

func clampAttempt(attempt int32) int32 {
	return min(max(attempt, 1), MaxAttempts)
}

type RabbitMQ struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

// declarer é o pedaço do *amqp.Channel usado para montar a topologia.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar no RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("falha ao abrir canal: %w", err)
	}

	if err := setupTopology(ch); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}

	return &RabbitMQ{Conn: conn, Ch: ch}, nil
}

// ConsumerChannel abre um canal separado para o worker, com prefetch limitado.
func (r *RabbitMQ) ConsumerChannel() (*amqp.Channel, error) {
	ch, err := r.Conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir canal de consumo: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	return ch, nil
}

func (r *RabbitMQ) Healthy() bool {
	return r != nil && r.Conn != nil && !r.Conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.Ch != nil {
		r.Ch.Close()
	}
	return r.Conn.Close()
}

func setupTopology(ch declarer) error {
	if err := ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(DLQName, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(DLQName, RoutingKey, DLXName, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    DLXName,    // Nack sem requeue vai pra DLX
		"x-dead-letter-routing-key": RoutingKey, // com essa chave
	}

	if err := ch.ExchangeDeclare(ExchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, args); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueName, RoutingKey, ExchangeName, false, nil); err != nil {
		return err
	}

	// Uma fila de espera por tentativa: TTL fixo por fila evita que uma
	// mensagem com TTL longo segure as de TTL curto atrás dela.
	if err := ch.ExchangeDeclare(WaitExchangeName, "direct", true, false, false, false, nil); err != nil {
		return err
	}
	for attempt := int32(1); attempt <= MaxAttempts; attempt++ {
		waitArgs := amqp.Table{
			"x-message-ttl":             RetryDelay(attempt).Milliseconds(),
			"x-dead-letter-exchange":    ExchangeName,
			"x-dead-letter-routing-key": RoutingKey,
		}
		if _, err := ch.QueueDeclare(WaitQueueName(attempt), true, false, false, false, waitArgs); err != nil {
			return err
		}
		if err := ch.QueueBind(WaitQueueName(attempt), waitRoutingKey(attempt), WaitExchangeName, false, nil); err != nil {
			return err
		}
	}
	return nil
}
