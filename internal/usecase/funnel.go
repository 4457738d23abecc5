package usecase

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xavierca1/leadstitch/internal/entity"
)

// FunnelService mantém uma linha por visitor_id. O estágio é sobrescrito a
// cada chamada (last-write-wins, sem checar transição); rdv_rescheduled só
// registra o horário.
type FunnelService struct {
	Repo    entity.FunnelRepositoryInterface
	Metrics MetricsRecorder
	Now     Clock
}

func NewFunnelService(repo entity.FunnelRepositoryInterface, metrics MetricsRecorder, clock Clock) *FunnelService {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &FunnelService{Repo: repo, Metrics: metrics, Now: clock}
}

func (s *FunnelService) Update(ctx context.Context, input UpdateFunnelInput) (p *entity.FunnelProgress, err error) {
	ctx, span := tracer.Start(ctx, "FunnelService.Update")
	defer func() { endSpan(span, err) }()

	visitorID := entity.NormalizeVisitorID(input.VisitorID)
	if visitorID == "" {
		return nil, &DomainError{Code: CodeValidation, Message: "visitor_id is required"}
	}
	stage, ok := entity.ParseStage(string(input.Stage))
	if !ok || stage == entity.StageInitial {
		return nil, &DomainError{Code: CodeValidation, Message: "unknown funnel stage: " + string(input.Stage)}
	}
	span.SetAttributes(attribute.String("funnel.stage", string(stage)))

	now := s.Now()
	stageAt := input.StageAt
	if stageAt.IsZero() {
		stageAt = now
	}

	// Primeiro registro de um visitor que só reagendou fica em "initial".
	p = &entity.FunnelProgress{
		VisitorID:    visitorID,
		CurrentStage: entity.StageInitial,
		UserID:       input.OwnerID,
		CreatedAt:    now,
	}
	p.ApplyStage(stage, stageAt, input.Payment)
	p.UpdatedAt = now

	if err := s.Repo.Upsert(ctx, p, stage.IsTransient()); err != nil {
		return nil, storageError("update funnel progress", err)
	}

	s.Metrics.FunnelUpdated(string(stage))
	return p, nil
}

// Read devolve nil, nil quando o visitor ainda não tem progresso.
func (s *FunnelService) Read(ctx context.Context, visitorID string) (*entity.FunnelProgress, error) {
	p, err := s.Repo.FindByVisitorID(ctx, entity.NormalizeVisitorID(visitorID))
	if errors.Is(err, entity.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("read funnel progress", err)
	}
	return p, nil
}
