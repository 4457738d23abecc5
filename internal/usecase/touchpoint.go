package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/xavierca1/leadstitch/internal/entity"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// TouchpointService grava o log imutável de interações. Sem deduplicação:
// entrega duplicada de webhook gera linha duplicada.
type TouchpointService struct {
	Repo    entity.TouchpointRepositoryInterface
	Metrics MetricsRecorder
	Now     Clock
}

func NewTouchpointService(repo entity.TouchpointRepositoryInterface, metrics MetricsRecorder, clock Clock) *TouchpointService {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &TouchpointService{Repo: repo, Metrics: metrics, Now: clock}
}

func (s *TouchpointService) Create(ctx context.Context, input CreateTouchpointInput) (t *entity.Touchpoint, err error) {
	ctx, span := tracer.Start(ctx, "TouchpointService.Create")
	defer func() { endSpan(span, err) }()

	if errs := ValidateCreateTouchpointInput(input); len(errs) > 0 {
		return nil, validationFailed(errs)
	}

	now := s.Now()
	t = entity.NewTouchpoint(input.VisitorID, strings.TrimSpace(input.EventType), input.EventData, now)
	t.LeadID = input.LeadID
	t.OwnerID = input.OwnerID
	t.PageURL = input.PageURL
	t.Referrer = input.Referrer
	t.UserAgent = input.UserAgent

	if err := s.Repo.UpsertVisitor(ctx, &entity.Visitor{
		VisitorID:   t.VisitorID,
		OwnerID:     input.OwnerID,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}); err != nil {
		return nil, storageError("upsert visitor", err)
	}

	if err := s.Repo.Create(ctx, t); err != nil {
		if errors.Is(err, entity.ErrUnknownReference) {
			return nil, &DomainError{Code: CodeValidation, Message: "lead_id does not reference an existing lead"}
		}
		return nil, storageError("create touchpoint", err)
	}

	s.Metrics.TouchpointCreated()
	return t, nil
}

func (s *TouchpointService) Get(ctx context.Context, id string) (*entity.Touchpoint, error) {
	if !isValidID(id) {
		return nil, notFound("touchpoint")
	}
	t, err := s.Repo.FindByID(ctx, id)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, notFound("touchpoint")
	}
	if err != nil {
		return nil, storageError("find touchpoint", err)
	}
	return t, nil
}

// List pagina do mais recente para o mais antigo.
func (s *TouchpointService) List(ctx context.Context, page entity.Page) ([]*entity.Touchpoint, error) {
	page = normalizePage(page)
	list, err := s.Repo.List(ctx, page)
	if err != nil {
		return nil, storageError("list touchpoints", err)
	}
	return list, nil
}

func (s *TouchpointService) ListByVisitor(ctx context.Context, visitorID string) ([]*entity.Touchpoint, error) {
	visitorID = entity.NormalizeVisitorID(visitorID)
	if visitorID == "" {
		return nil, &DomainError{Code: CodeValidation, Message: "visitor_id is required"}
	}
	list, err := s.Repo.ListByVisitor(ctx, visitorID)
	if err != nil {
		return nil, storageError("list visitor touchpoints", err)
	}
	return list, nil
}

func normalizePage(p entity.Page) entity.Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
