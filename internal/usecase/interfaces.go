package usecase

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/xavierca1/leadstitch/internal/usecase")

// Clock é injetado para os testes controlarem expiração e horários de estágio.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

// MetricsRecorder recebe os contadores de domínio (implementado com Prometheus).
type MetricsRecorder interface {
	IdentityResolved(matchedBy string)
	IdentityConflict(kind string)
	BridgeConsumed(hit bool)
	TouchpointCreated()
	FunnelUpdated(stage string)
	PartialWrite(step string)
}

type NoopMetrics struct{}

func (NoopMetrics) IdentityResolved(string) {}
func (NoopMetrics) IdentityConflict(string) {}
func (NoopMetrics) BridgeConsumed(bool)     {}
func (NoopMetrics) TouchpointCreated()      {}
func (NoopMetrics) FunnelUpdated(string)    {}
func (NoopMetrics) PartialWrite(string)     {}

// RetryPublisher entrega uma escrita secundária que falhou para a fila de retry.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, job RetryJob) error
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
