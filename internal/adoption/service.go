package adoption

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"idecide/internal/audit"
	"idecide/internal/decision"
	"idecide/internal/decisiontype"
	"idecide/internal/notification"
	"idecide/internal/patient"
	"idecide/internal/platform/kafka"
	"idecide/internal/platform/metrics"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
)

// notifyConcurrency bounds the parallel usage notifications per batch.
const notifyConcurrency = 4

// DecisionStore is the slice of decision persistence the orchestration needs.
type DecisionStore interface {
	FindByID(ctx context.Context, decisionID id.DecisionID) (*decision.Decision, error)
	List(ctx context.Context, f decision.Filter) ([]decision.Decision, error)
}

// PatientStore resolves the owning patient for usage notifications.
type PatientStore interface {
	FindByID(ctx context.Context, patientID id.PatientID) (*patient.Patient, error)
}

// DecisionTypeStore resolves decision type names for usage notifications.
type DecisionTypeStore interface {
	FindByID(ctx context.Context, typeID id.DecisionTypeID) (*decisiontype.DecisionType, error)
}

// ConsumerNamer resolves the calling consumer's display name.
type ConsumerNamer interface {
	Name(ctx context.Context, consumerID id.ConsumerID) (string, error)
}

// Service orchestrates consumer adoption: recording adoption receipts in
// bulk, notifying patients that their decision was ingested, and serving the
// pending-decision feed.
type Service struct {
	adoptions Store
	decisions DecisionStore
	patients  PatientStore
	types     DecisionTypeStore
	consumers ConsumerNamer
	notifier  notification.Sender
	producer  *kafka.Producer
	auditor   *audit.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewService(
	adoptions Store,
	decisions DecisionStore,
	patients PatientStore,
	types DecisionTypeStore,
	consumers ConsumerNamer,
	notifier notification.Sender,
	producer *kafka.Producer,
	auditor *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		adoptions: adoptions,
		decisions: decisions,
		patients:  patients,
		types:     types,
		consumers: consumers,
		notifier:  notifier,
		producer:  producer,
		auditor:   auditor,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("idecide/adoption"),
	}
}

// adoptedEvent is the payload published for downstream consumers of the
// adopted-decisions topic.
type adoptedEvent struct {
	ConsumerID  string    `json:"consumerId"`
	DecisionIDs []string  `json:"decisionIds"`
	AdoptedAt   time.Time `json:"adoptedAt"`
}

// AdoptPatientDecisions records one adoption receipt per decision for the
// calling consumer, then fires one usage notification per adopted decision.
//
// The empty batch is rejected before any storage call. Duplicate (consumer,
// decision) pairs surface as a conflict but never undo the rows that did
// insert, and a failed notification never rolls back its adoption receipt.
func (s *Service) AdoptPatientDecisions(ctx context.Context, decisionIDs []id.DecisionID) ([]ConsumerAdoption, error) {
	ctx, span := s.tracer.Start(ctx, "adoption.AdoptPatientDecisions")
	defer span.End()

	consumerID := requestcontext.ConsumerID(ctx)
	if consumerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no authenticated consumer")
	}
	if len(decisionIDs) == 0 {
		return nil, dErrors.WithFields(dErrors.CodeValidation, "adoption batch is invalid",
			[]dErrors.FieldError{{Field: "decisions", Message: "at least one decision is required"}})
	}
	span.SetAttributes(
		attribute.String("consumer.id", consumerID.String()),
		attribute.Int("adoption.batch_size", len(decisionIDs)),
	)

	now := requestcontext.Now(ctx)
	resolved := make([]decision.Decision, 0, len(decisionIDs))
	rows := make([]ConsumerAdoption, 0, len(decisionIDs))
	for _, decisionID := range decisionIDs {
		d, err := s.decisions.FindByID(ctx, decisionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.WithFields(dErrors.CodeValidation, "adoption batch is invalid",
					[]dErrors.FieldError{{Field: "decisions", Message: fmt.Sprintf("unknown decision %s", decisionID)}})
			}
			return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not resolve decision")
		}
		resolved = append(resolved, *d)
		rows = append(rows, ConsumerAdoption{
			ID:           id.NewAdoptionID(),
			ConsumerID:   consumerID,
			DecisionID:   decisionID,
			AdoptionDate: now,
		})
	}

	inserted, err := s.adoptions.BulkUpsert(ctx, rows)
	if err != nil && !errors.Is(err, sentinel.ErrConflict) {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "adoption bulk upsert failed",
			"consumer_id", consumerID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not store adoptions")
	}
	duplicate := err != nil

	if len(inserted) > 0 {
		s.metrics.DecisionsAdopted.Add(float64(len(inserted)))
		s.notifyUsage(ctx, consumerID, inserted, resolved)
		s.publishAdopted(ctx, consumerID, inserted, now)
		_ = s.auditor.Emit(ctx, audit.Event{
			Action: audit.ActionDecisionsAdopted,
			Detail: fmt.Sprintf("consumer %s adopted %d decisions", consumerID, len(inserted)),
		})
	}

	if duplicate {
		return inserted, dErrors.New(dErrors.CodeConflict, "one or more decisions were already adopted")
	}
	return inserted, nil
}

// PendingDecisions returns the decisions the calling consumer has not yet
// adopted, optionally bounded by creation time and decision type.
func (s *Service) PendingDecisions(ctx context.Context, from *time.Time, typeID *id.DecisionTypeID) ([]decision.Decision, error) {
	consumerID := requestcontext.ConsumerID(ctx)
	if consumerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no authenticated consumer")
	}

	all, err := s.decisions.List(ctx, decision.Filter{From: from, DecisionTypeID: typeID})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not list decisions")
	}
	adopted, err := s.adoptions.ListByConsumer(ctx, consumerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDependency, "could not list adoptions")
	}

	seen := make(map[id.DecisionID]bool, len(adopted))
	for _, row := range adopted {
		seen[row.DecisionID] = true
	}
	pending := make([]decision.Decision, 0, len(all))
	for _, d := range all {
		if !seen[d.ID] {
			pending = append(pending, d)
		}
	}
	return pending, nil
}

// notifyUsage fires one usage notification per adopted decision. Failures
// are logged and counted, never returned; the adoption receipt stands.
func (s *Service) notifyUsage(ctx context.Context, consumerID id.ConsumerID, inserted []ConsumerAdoption, resolved []decision.Decision) {
	byID := make(map[id.DecisionID]decision.Decision, len(resolved))
	for _, d := range resolved {
		byID[d.ID] = d
	}

	consumerName := consumerID.String()
	if s.consumers != nil {
		if name, err := s.consumers.Name(ctx, consumerID); err == nil {
			consumerName = name
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(notifyConcurrency)
	for _, row := range inserted {
		d, ok := byID[row.DecisionID]
		if !ok {
			continue
		}
		g.Go(func() error {
			info, err := s.buildUsageInfo(gctx, d, consumerName)
			if err == nil {
				_, err = s.notifier.SendSubscriberUsageNotification(gctx, *info)
			}
			if err != nil {
				s.metrics.NotificationFailures.Inc()
				s.logger.ErrorContext(gctx, "usage notification failed",
					"decision_id", d.ID,
					"consumer_id", consumerID,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) buildUsageInfo(ctx context.Context, d decision.Decision, consumerName string) (*notification.Info, error) {
	p, err := s.patients.FindByID(ctx, d.PatientID)
	if err != nil {
		return nil, fmt.Errorf("resolve patient %s: %w", d.PatientID, err)
	}
	typeName := ""
	if dt, err := s.types.FindByID(ctx, d.DecisionTypeID); err == nil {
		typeName = dt.Name
	}
	return &notification.Info{
		Patient:        *p,
		DecisionID:     d.ID.String(),
		DecisionType:   typeName,
		DecisionChoice: string(d.Choice),
		ConsumerName:   consumerName,
	}, nil
}

// publishAdopted emits the adopted-decisions event; best effort, log only.
func (s *Service) publishAdopted(ctx context.Context, consumerID id.ConsumerID, inserted []ConsumerAdoption, now time.Time) {
	if s.producer == nil {
		return
	}
	event := adoptedEvent{ConsumerID: consumerID.String(), AdoptedAt: now}
	for _, row := range inserted {
		event.DecisionIDs = append(event.DecisionIDs, row.DecisionID.String())
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "adopted event marshal failed", "error", err)
		return
	}
	s.producer.Publish(ctx, kafka.TopicAdopted, []byte(consumerID.String()), payload, func(err error) {
		s.logger.Error("adopted event publish failed",
			"consumer_id", consumerID,
			"error", err,
		)
	})
}
