package usecase

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xavierca1/leadstitch/internal/entity"
)

// maxCreateAttempts limita o ciclo busca→criação quando outro evento de
// primeira visita ganha o índice único.
const maxCreateAttempts = 3

type IdentityResolver struct {
	LeadRepo entity.LeadRepositoryInterface
	Metrics  MetricsRecorder
	Now      Clock
}

func NewIdentityResolver(leadRepo entity.LeadRepositoryInterface, metrics MetricsRecorder, clock Clock) *IdentityResolver {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &IdentityResolver{
		LeadRepo: leadRepo,
		Metrics:  metrics,
		Now:      clock,
	}
}

// Resolve encontra ou cria o lead canônico. Ordem: email → visitor_id → criação.
func (uc *IdentityResolver) Resolve(ctx context.Context, input ResolveInput) (out *ResolveOutput, err error) {
	ctx, span := tracer.Start(ctx, "IdentityResolver.Resolve")
	defer func() { endSpan(span, err) }()

	email := entity.NormalizeEmail(input.Email)
	visitorID := entity.NormalizeVisitorID(input.VisitorID)
	if email == "" && visitorID == "" {
		return nil, invalidCriteria()
	}
	span.SetAttributes(
		attribute.Bool("lead.has_email", email != ""),
		attribute.Bool("lead.has_visitor", visitorID != ""),
	)

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		out, err = uc.resolveOnce(ctx, email, visitorID, input)
		if !errors.Is(err, entity.ErrIdentityConflict) {
			break
		}
		uc.Metrics.IdentityConflict("create_race")
		slog.Info("IdentityResolver: lost first-sight race, retrying lookup", "attempt", attempt)
	}
	if err != nil {
		if errors.Is(err, entity.ErrIdentityConflict) {
			return nil, storageError("resolve identity: concurrent creation did not settle", err)
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("lead.matched_by", out.MatchedBy), attribute.String("lead.id", out.Lead.ID))
	uc.Metrics.IdentityResolved(out.MatchedBy)
	return out, nil
}

func (uc *IdentityResolver) resolveOnce(ctx context.Context, email, visitorID string, input ResolveInput) (*ResolveOutput, error) {
	if email != "" {
		lead, err := uc.LeadRepo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			out := &ResolveOutput{Lead: lead, MatchedBy: MatchedByEmail}
			if visitorID != "" {
				if err := uc.attachVisitor(ctx, lead, visitorID, input.Source, out); err != nil {
					return nil, err
				}
			}
			return out, nil
		case !errors.Is(err, entity.ErrNotFound):
			return nil, storageError("find lead by email", err)
		}
	}

	if visitorID != "" {
		lead, err := uc.LeadRepo.FindByVisitorID(ctx, visitorID)
		switch {
		case err == nil:
			out := &ResolveOutput{Lead: lead, MatchedBy: MatchedByVisitor}
			if err := uc.touchVisitor(ctx, lead.ID, visitorID); err != nil {
				return nil, err
			}
			if email != "" {
				if err := uc.attachEmail(ctx, lead, email, input.Source, out); err != nil {
					return nil, err
				}
			}
			return out, nil
		case !errors.Is(err, entity.ErrNotFound):
			return nil, storageError("find lead by visitor_id", err)
		}
	}

	return uc.create(ctx, email, visitorID, input)
}

func (uc *IdentityResolver) create(ctx context.Context, email, visitorID string, input ResolveInput) (*ResolveOutput, error) {
	now := uc.Now()
	lead := entity.NewLead(input.OwnerID, now)
	out := &ResolveOutput{Lead: lead, MatchedBy: MatchedByCreated}

	var leadEmail *entity.LeadEmail
	if email != "" {
		leadEmail = &entity.LeadEmail{
			Email:        email,
			IsPrimary:    true,
			SourceSystem: input.Source,
			CreatedAt:    now,
		}
		out.EmailLinked = true
	}

	var leadVisitor *entity.LeadVisitorID
	if visitorID != "" {
		leadVisitor = &entity.LeadVisitorID{
			VisitorID:     visitorID,
			FirstLinkedAt: now,
			LastSeenAt:    now,
			Source:        input.Source,
		}
		out.VisitorLinked = true
	}

	if err := uc.LeadRepo.CreateWithIdentity(ctx, lead, leadEmail, leadVisitor); err != nil {
		if errors.Is(err, entity.ErrIdentityConflict) {
			return nil, err
		}
		return nil, storageError("create lead", err)
	}

	slog.Info("IdentityResolver: lead created", "lead_id", lead.ID, "source", input.Source)
	return out, nil
}

// attachVisitor liga o visitor ao lead encontrado por email, sem nunca
// reatribuir um visitor que já pertence a outro lead.
func (uc *IdentityResolver) attachVisitor(ctx context.Context, lead *entity.Lead, visitorID, source string, out *ResolveOutput) error {
	owner, err := uc.LeadRepo.FindByVisitorID(ctx, visitorID)
	switch {
	case err == nil && owner.ID == lead.ID:
		return uc.touchVisitor(ctx, lead.ID, visitorID)
	case err == nil:
		uc.visitorConflict(lead.ID, owner.ID, out)
		return nil
	case !errors.Is(err, entity.ErrNotFound):
		return storageError("find visitor owner", err)
	}

	now := uc.Now()
	inserted, err := uc.LeadRepo.LinkVisitor(ctx, &entity.LeadVisitorID{
		LeadID:        lead.ID,
		VisitorID:     visitorID,
		FirstLinkedAt: now,
		LastSeenAt:    now,
		Source:        source,
	})
	if err != nil {
		return storageError("link visitor", err)
	}
	if !inserted {
		// Outro request ligou o visitor entre o SELECT e o INSERT.
		owner, err := uc.LeadRepo.FindByVisitorID(ctx, visitorID)
		if err != nil {
			return storageError("find visitor owner", err)
		}
		if owner.ID != lead.ID {
			uc.visitorConflict(lead.ID, owner.ID, out)
		}
		return nil
	}
	out.VisitorLinked = true
	return nil
}

func (uc *IdentityResolver) attachEmail(ctx context.Context, lead *entity.Lead, email, source string, out *ResolveOutput) error {
	owner, err := uc.LeadRepo.FindByEmail(ctx, email)
	switch {
	case err == nil && owner.ID == lead.ID:
		return nil
	case err == nil:
		uc.emailConflict(lead.ID, owner.ID, out)
		return nil
	case !errors.Is(err, entity.ErrNotFound):
		return storageError("find email owner", err)
	}

	inserted, err := uc.LeadRepo.LinkEmail(ctx, &entity.LeadEmail{
		LeadID:       lead.ID,
		Email:        email,
		IsPrimary:    false,
		SourceSystem: source,
		CreatedAt:    uc.Now(),
	})
	if err != nil {
		return storageError("link email", err)
	}
	if !inserted {
		owner, err := uc.LeadRepo.FindByEmail(ctx, email)
		if err != nil {
			return storageError("find email owner", err)
		}
		if owner.ID != lead.ID {
			uc.emailConflict(lead.ID, owner.ID, out)
		}
		return nil
	}
	out.EmailLinked = true
	return nil
}

func (uc *IdentityResolver) touchVisitor(ctx context.Context, leadID, visitorID string) error {
	if err := uc.LeadRepo.TouchVisitor(ctx, leadID, visitorID, uc.Now()); err != nil {
		return storageError("touch visitor", err)
	}
	return nil
}

func (uc *IdentityResolver) visitorConflict(leadID, ownerID string, out *ResolveOutput) {
	out.VisitorConflict = true
	uc.Metrics.IdentityConflict("visitor_owned_elsewhere")
	slog.Warn("IdentityResolver: visitor_id belongs to another lead, left untouched",
		"lead_id", leadID, "owner_lead_id", ownerID)
}

func (uc *IdentityResolver) emailConflict(leadID, ownerID string, out *ResolveOutput) {
	out.EmailConflict = true
	uc.Metrics.IdentityConflict("email_owned_elsewhere")
	slog.Warn("IdentityResolver: email belongs to another lead, left untouched",
		"lead_id", leadID, "owner_lead_id", ownerID)
}

// GetLead devolve o lead com todas as identidades ligadas.
func (uc *IdentityResolver) GetLead(ctx context.Context, id string) (*LeadDetails, error) {
	if !isValidID(id) {
		return nil, notFound("lead")
	}
	lead, err := uc.LeadRepo.FindByID(ctx, id)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, notFound("lead")
	}
	if err != nil {
		return nil, storageError("find lead", err)
	}

	emails, err := uc.LeadRepo.ListEmails(ctx, id)
	if err != nil {
		return nil, storageError("list lead emails", err)
	}
	visitors, err := uc.LeadRepo.ListVisitorIDs(ctx, id)
	if err != nil {
		return nil, storageError("list lead visitors", err)
	}

	return &LeadDetails{Lead: lead, Emails: emails, VisitorIDs: visitors}, nil
}
