package usecase

import (
	"context"
	"fmt"
	"log/slog"
)

// Pipeline roda os passos de uma ingestão em ordem. Um passo crítico que
// falha interrompe tudo e dispara as compensações dos passos já executados,
// da última para a primeira. Um passo secundário que falha é registrado e a
// execução segue.
type Pipeline struct {
	name  string
	steps []Step

	// OnSecondaryFailure é chamado uma vez por passo secundário que falhou.
	OnSecondaryFailure func(ctx context.Context, step string, err error)
}

type Step struct {
	Name       string
	Critical   bool
	Fn         func(context.Context) error
	Compensate func(context.Context) error
}

func NewPipeline(name string) *Pipeline {
	return &Pipeline{name: name}
}

func (p *Pipeline) Critical(name string, fn func(context.Context) error) {
	p.steps = append(p.steps, Step{Name: name, Critical: true, Fn: fn})
}

func (p *Pipeline) Secondary(name string, fn func(context.Context) error) {
	p.steps = append(p.steps, Step{Name: name, Critical: false, Fn: fn})
}

// WithCompensation anexa uma compensação ao último passo adicionado.
func (p *Pipeline) WithCompensation(fn func(context.Context) error) {
	if len(p.steps) == 0 {
		return
	}
	p.steps[len(p.steps)-1].Compensate = fn
}

// Execute devolve os nomes dos passos secundários que falharam. O erro de um
// passo crítico volta sem embrulho para preservar DomainError/TechnicalError.
func (p *Pipeline) Execute(ctx context.Context) (failed []string, err error) {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.rollback(ctx, i)
			return failed, fmt.Errorf("%s: canceled before %s: %w", p.name, step.Name, err)
		}

		stepErr := step.Fn(ctx)
		if stepErr == nil {
			continue
		}
		if step.Critical {
			slog.Error("Pipeline: critical step failed", "pipeline", p.name, "step", step.Name, "error", stepErr)
			p.rollback(ctx, i)
			return failed, stepErr
		}

		slog.Warn("Pipeline: secondary step failed, continuing", "pipeline", p.name, "step", step.Name, "error", stepErr)
		failed = append(failed, step.Name)
		if p.OnSecondaryFailure != nil {
			p.OnSecondaryFailure(ctx, step.Name, stepErr)
		}
	}
	return failed, nil
}

func (p *Pipeline) rollback(ctx context.Context, failedAt int) {
	// Compensação roda mesmo com o ctx do request cancelado.
	ctx = context.WithoutCancel(ctx)
	for i := failedAt - 1; i >= 0; i-- {
		comp := p.steps[i].Compensate
		if comp == nil {
			continue
		}
		if err := comp(ctx); err != nil {
			slog.Error("Pipeline: compensation failed, state may be inconsistent",
				"pipeline", p.name, "step", p.steps[i].Name, "error", err)
		}
	}
}
