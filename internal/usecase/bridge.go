package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xavierca1/leadstitch/internal/entity"
)

// BridgeService guarda associações email↔visitor de curta duração, usadas
// quando o email chega num webhook e o visitor foi visto em outro.
type BridgeService struct {
	Repo    entity.BridgeRepositoryInterface
	Metrics MetricsRecorder
	Now     Clock
}

func NewBridgeService(repo entity.BridgeRepositoryInterface, metrics MetricsRecorder, clock Clock) *BridgeService {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &BridgeService{Repo: repo, Metrics: metrics, Now: clock}
}

// Record sempre insere; nunca atualiza uma associação existente.
func (s *BridgeService) Record(ctx context.Context, input RecordBridgeInput) (a *entity.BridgeAssociation, err error) {
	ctx, span := tracer.Start(ctx, "BridgeService.Record")
	defer func() { endSpan(span, err) }()

	if errs := ValidateRecordBridgeInput(input); len(errs) > 0 {
		return nil, validationFailed(errs)
	}

	a = entity.NewBridgeAssociation(input.Email, input.VisitorID, input.SourceAction, input.EventData, input.OwnerID, s.Now())
	if err := s.Repo.Create(ctx, a); err != nil {
		return nil, storageError("record bridge association", err)
	}
	return a, nil
}

// Consume devolve o visitor_id da associação mais recente, não processada e
// não expirada, marcando-a como processada. ok=false quando não há nenhuma.
func (s *BridgeService) Consume(ctx context.Context, email string) (visitorID string, ok bool, err error) {
	a, err := s.ConsumeAssociation(ctx, email)
	if err != nil || a == nil {
		return "", false, err
	}
	return a.VisitorID, true, nil
}

// ConsumeAssociation é o Consume devolvendo a linha inteira (nil quando não há).
func (s *BridgeService) ConsumeAssociation(ctx context.Context, email string) (a *entity.BridgeAssociation, err error) {
	ctx, span := tracer.Start(ctx, "BridgeService.Consume")
	defer func() { endSpan(span, err) }()

	email = entity.NormalizeEmail(email)
	if email == "" {
		return nil, &DomainError{Code: CodeValidation, Message: "email is required"}
	}

	a, err = s.Repo.ConsumeLatest(ctx, email, s.Now())
	if err != nil {
		return nil, storageError("consume bridge association", err)
	}
	s.Metrics.BridgeConsumed(a != nil)
	if a == nil {
		return nil, nil
	}

	slog.Debug("BridgeService: association consumed", "association_id", a.ID, "source_action", a.SourceAction)
	return a, nil
}

// Release devolve uma associação consumida ao estado não processado, com os
// dados, a origem e a expiração originais.
func (s *BridgeService) Release(ctx context.Context, id string) error {
	if err := s.Repo.Release(ctx, id); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return notFound("bridge association")
		}
		return storageError("release bridge association", err)
	}
	return nil
}

func (s *BridgeService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.Repo.DeleteExpired(ctx, s.Now())
	if err != nil {
		return 0, storageError("purge expired bridge associations", err)
	}
	return n, nil
}
