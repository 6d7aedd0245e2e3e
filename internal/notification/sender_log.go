package notification

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// LogSender is the no-provider fallback: it logs the dispatch and fabricates
// a correlation id. Used in local development when NOTIFY_ENDPOINT is unset.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendCodeNotification(ctx context.Context, info Info) (string, error) {
	correlationID := uuid.NewString()
	s.logger.InfoContext(ctx, "code notification dispatched (log only)",
		"nhs_number", info.Patient.Redact().NHSNumber,
		"channel", string(info.Patient.NotificationPreference),
		"correlation_id", correlationID,
	)
	return correlationID, nil
}

func (s *LogSender) SendSubscriberUsageNotification(ctx context.Context, info Info) (string, error) {
	correlationID := uuid.NewString()
	s.logger.InfoContext(ctx, "subscriber usage notification dispatched (log only)",
		"decision_id", info.DecisionID,
		"consumer", info.ConsumerName,
		"correlation_id", correlationID,
	)
	return correlationID, nil
}

// MemorySender records sends for tests.
type MemorySender struct {
	mu         sync.Mutex
	CodeSends  []Info
	UsageSends []Info
	FailWith   error
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) SendCodeNotification(_ context.Context, info Info) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return "", s.FailWith
	}
	s.CodeSends = append(s.CodeSends, info)
	return uuid.NewString(), nil
}

func (s *MemorySender) SendSubscriberUsageNotification(_ context.Context, info Info) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return "", s.FailWith
	}
	s.UsageSends = append(s.UsageSends, info)
	return uuid.NewString(), nil
}

// Counts returns the number of code and usage sends so far.
func (s *MemorySender) Counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.CodeSends), len(s.UsageSends)
}
