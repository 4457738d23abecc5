package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/xavierca1/leadstitch/internal/entity"
)

// LeadMerger reconcilia dois leads que são a mesma pessoa. Só roda quando um
// operador pede; o resolver nunca funde leads sozinho.
type LeadMerger struct {
	LeadRepo entity.LeadRepositoryInterface
	Now      Clock
}

func NewLeadMerger(leadRepo entity.LeadRepositoryInterface, clock Clock) *LeadMerger {
	if clock == nil {
		clock = SystemClock
	}
	return &LeadMerger{LeadRepo: leadRepo, Now: clock}
}

func (uc *LeadMerger) Merge(ctx context.Context, input MergeInput) (merge *entity.LeadMerge, err error) {
	ctx, span := tracer.Start(ctx, "LeadMerger.Merge")
	defer func() { endSpan(span, err) }()

	survivorID := strings.TrimSpace(input.SurvivorID)
	absorbedID := strings.TrimSpace(input.AbsorbedID)
	if survivorID == "" || absorbedID == "" {
		return nil, &DomainError{Code: CodeInvalidMerge, Message: "survivor_id and absorbed_id are required"}
	}
	if survivorID == absorbedID {
		return nil, &DomainError{Code: CodeInvalidMerge, Message: "cannot merge a lead into itself"}
	}

	survivor, err := uc.find(ctx, survivorID)
	if err != nil {
		return nil, err
	}
	absorbed, err := uc.find(ctx, absorbedID)
	if err != nil {
		return nil, err
	}
	if survivor.Status == entity.LeadStatusMerged {
		return nil, &DomainError{Code: CodeAlreadyMerged, Message: "survivor lead was merged into " + survivor.MergedInto}
	}
	if absorbed.Status == entity.LeadStatusMerged {
		return nil, &DomainError{Code: CodeAlreadyMerged, Message: "lead already merged into " + absorbed.MergedInto}
	}

	merge = entity.NewLeadMerge(survivorID, absorbedID, input.Reason, uc.Now())
	if err := uc.LeadRepo.Merge(ctx, merge); err != nil {
		if errors.Is(err, entity.ErrAlreadyMerged) {
			return nil, &DomainError{Code: CodeAlreadyMerged, Message: "lead already merged"}
		}
		return nil, storageError("merge leads", err)
	}

	slog.Info("LeadMerger: leads merged",
		"survivor_id", survivorID,
		"absorbed_id", absorbedID,
		"emails", merge.MovedEmails,
		"visitors", merge.MovedVisitors,
		"touchpoints", merge.MovedTouchpoints,
	)
	return merge, nil
}

func (uc *LeadMerger) find(ctx context.Context, id string) (*entity.Lead, error) {
	if !isValidID(id) {
		return nil, notFound("lead " + id)
	}
	lead, err := uc.LeadRepo.FindByID(ctx, id)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, notFound("lead " + id)
	}
	if err != nil {
		return nil, storageError("find lead", err)
	}
	return lead, nil
}
