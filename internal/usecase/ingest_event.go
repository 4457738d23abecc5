package usecase

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/xavierca1/leadstitch/internal/entity"
)

const (
	StepBridgeConsume = "bridge_consume"
	StepBridgeRecord  = "bridge_record"
	StepResolve       = "resolve_identity"
	StepTouchpoint    = "touchpoint"
	StepFunnel        = "funnel"
)

const skippedNoVisitor = "no visitor_id for event: touchpoint and funnel not recorded"

// IngestEventUseCase é o contrato comum dos adapters de webhook: recebe o
// evento já normalizado e costura lead, bridge, touchpoint e funil.
type IngestEventUseCase struct {
	Resolver    *IdentityResolver
	Bridge      *BridgeService
	Touchpoints *TouchpointService
	Funnel      *FunnelService
	Retry       RetryPublisher
	Metrics     MetricsRecorder
	Now         Clock
}

// NewIngestEventUseCase aceita retry nil: sem fila, falha secundária só é logada.
func NewIngestEventUseCase(
	resolver *IdentityResolver,
	bridge *BridgeService,
	touchpoints *TouchpointService,
	funnel *FunnelService,
	retry RetryPublisher,
	metrics MetricsRecorder,
	clock Clock,
) *IngestEventUseCase {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if clock == nil {
		clock = SystemClock
	}
	return &IngestEventUseCase{
		Resolver:    resolver,
		Bridge:      bridge,
		Touchpoints: touchpoints,
		Funnel:      funnel,
		Retry:       retry,
		Metrics:     metrics,
		Now:         clock,
	}
}

func (uc *IngestEventUseCase) Execute(ctx context.Context, input IngestEventInput) (out *IngestEventOutput, err error) {
	ctx, span := tracer.Start(ctx, "IngestEventUseCase.Execute")
	defer func() { endSpan(span, err) }()

	email := entity.NormalizeEmail(input.Email)
	visitorID, visitorSource := visitorFromEvent(input)
	if email == "" && visitorID == "" {
		return nil, invalidCriteria()
	}
	eventType := strings.TrimSpace(input.EventType)
	if eventType == "" {
		return nil, &DomainError{Code: CodeValidation, Message: "event_type is required"}
	}
	span.SetAttributes(attribute.String("event.type", eventType), attribute.String("event.source", input.Source))

	out = &IngestEventOutput{}
	pending := map[string]RetryJob{}

	p := NewPipeline("ingest:" + eventType)
	p.OnSecondaryFailure = func(ctx context.Context, step string, stepErr error) {
		uc.Metrics.PartialWrite(step)
		job, ok := pending[step]
		if !ok || uc.Retry == nil || !IsTechnicalError(stepErr) {
			return
		}
		job.Reason = stepErr.Error()
		job.FailedAt = uc.Now()
		if err := uc.Retry.PublishRetry(ctx, job); err != nil {
			slog.Error("IngestEventUseCase: could not enqueue retry, write lost", "step", step, "error", err)
		}
	}

	if visitorID == "" {
		var consumed *entity.BridgeAssociation
		p.Critical(StepBridgeConsume, func(ctx context.Context) error {
			a, err := uc.Bridge.ConsumeAssociation(ctx, email)
			if err != nil {
				return err
			}
			if a != nil {
				consumed = a
				visitorID, visitorSource = a.VisitorID, VisitorFromBridge
			}
			return nil
		})
		// A associação já foi marcada como processada; se o evento não for
		// gravado a mesma linha volta a ficar disponível para o reenvio.
		p.WithCompensation(func(ctx context.Context) error {
			if consumed == nil {
				return nil
			}
			return uc.Bridge.Release(ctx, consumed.ID)
		})
	} else if email != "" {
		bridgeInput := RecordBridgeInput{
			Email:        email,
			VisitorID:    visitorID,
			SourceAction: eventType,
			EventData:    input.EventData,
			OwnerID:      input.OwnerID,
		}
		pending[StepBridgeRecord] = RetryJob{Kind: RetryKindBridgeRecord, Bridge: &bridgeInput}
		p.Secondary(StepBridgeRecord, func(ctx context.Context) error {
			_, err := uc.Bridge.Record(ctx, bridgeInput)
			return err
		})
	}

	p.Critical(StepResolve, func(ctx context.Context) error {
		res, err := uc.Resolver.Resolve(ctx, ResolveInput{
			Email:     email,
			VisitorID: visitorID,
			OwnerID:   input.OwnerID,
			Source:    input.Source,
		})
		if err != nil {
			return err
		}
		out.LeadID = res.Lead.ID
		out.MatchedBy = res.MatchedBy
		return nil
	})

	p.Secondary(StepTouchpoint, func(ctx context.Context) error {
		if visitorID == "" {
			return nil
		}
		tpInput := CreateTouchpointInput{
			VisitorID: visitorID,
			EventType: eventType,
			EventData: input.EventData,
			LeadID:    out.LeadID,
			OwnerID:   input.OwnerID,
			PageURL:   input.PageURL,
		}
		pending[StepTouchpoint] = RetryJob{Kind: RetryKindTouchpoint, Touchpoint: &tpInput}
		t, err := uc.Touchpoints.Create(ctx, tpInput)
		if err != nil {
			return err
		}
		out.TouchpointID = t.ID
		return nil
	})

	if stage, ok := entity.ParseStage(eventType); ok && stage != entity.StageInitial {
		p.Critical(StepFunnel, func(ctx context.Context) error {
			if visitorID == "" {
				return nil
			}
			progress, err := uc.Funnel.Update(ctx, UpdateFunnelInput{
				VisitorID: visitorID,
				Stage:     stage,
				StageAt:   input.StageAt,
				OwnerID:   input.OwnerID,
				Payment:   input.Payment,
			})
			if err != nil {
				return err
			}
			out.Funnel = progress
			return nil
		})
	}

	failed, err := p.Execute(ctx)
	if err != nil {
		return nil, err
	}

	out.VisitorID = visitorID
	out.VisitorSource = visitorSource
	out.PartialWrites = failed
	if visitorID == "" {
		out.Skipped = skippedNoVisitor
		slog.Info("IngestEventUseCase: event without visitor_id, attribution skipped",
			"event_type", eventType, "lead_id", out.LeadID, "source", input.Source)
	}
	return out, nil
}

// visitorFromEvent lê só chaves exatas; nunca adivinha a partir de outros campos.
func visitorFromEvent(input IngestEventInput) (string, string) {
	if v := entity.NormalizeVisitorID(input.VisitorID); v != "" {
		return v, VisitorFromInput
	}
	if v := entity.NormalizeVisitorID(input.EventData.String("visitor_id")); v != "" {
		return v, VisitorFromMetadata
	}
	if v := entity.NormalizeVisitorID(input.EventData.String("metadata", "visitor_id")); v != "" {
		return v, VisitorFromMetadata
	}
	return "", ""
}
