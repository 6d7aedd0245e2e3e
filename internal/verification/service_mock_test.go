package verification_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"idecide/internal/audit"
	"idecide/internal/notification"
	"idecide/internal/patient"
	"idecide/internal/platform/metrics"
	"idecide/internal/verification"
	"idecide/internal/verification/mocks"
	id "idecide/pkg/domain"
	dErrors "idecide/pkg/domain-errors"
	"idecide/pkg/platform/sentinel"
	"idecide/pkg/requestcontext"
)

func newMockedService(t *testing.T, store *mocks.MockPatientStore) *verification.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return verification.NewService(
		store,
		notification.NewMemorySender(),
		verification.NewLimiter(verification.NewInMemoryLimiterStore(), 100, time.Hour),
		audit.NewPublisher(audit.NewInMemoryStore(), nil, logger),
		metrics.NewWith(prometheus.NewRegistry()),
		logger,
		verification.Config{CodeTTL: 15 * time.Minute, CodeLength: 5, MaxRetries: 3},
	)
}

func TestIssueCodeStoreFailures(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(t.Context(), now)

	t.Run("lookup failure maps to dependency error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPatientStore(ctrl)
		store.EXPECT().FindByNHSNumber(gomock.Any(), "9449304424").Return(nil, errors.New("connection refused"))

		_, err := newMockedService(t, store).IssueCode(ctx, "9449304424", false)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeDependency))
	})

	t.Run("concurrent update maps to locked", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		store := mocks.NewMockPatientStore(ctrl)
		p := &patient.Patient{ID: id.NewPatientID(), NHSNumber: "9449304424", Email: "p@example.com", Version: 3}
		store.EXPECT().FindByNHSNumber(gomock.Any(), "9449304424").Return(p, nil)
		store.EXPECT().Update(gomock.Any(), gomock.Any()).Return(sentinel.ErrLocked)

		_, err := newMockedService(t, store).IssueCode(ctx, "9449304424", false)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeLocked))
	})
}
