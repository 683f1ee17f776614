package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func auditEntry(action domain.AuditAction) *domain.AuditLog {
	username := "alice"
	return &domain.AuditLog{
		ID:        uuid.New(),
		Username:  &username,
		Action:    action,
		IBAN:      ibanA,
		IPAddress: "127.0.0.1",
		CreatedAt: time.Now(),
	}
}

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, zerolog.New(io.Discard))

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, log *domain.AuditLog) error {
			assert.Equal(t, domain.AuditActionTransfer, log.Action)
			assert.Equal(t, ibanA, log.IBAN)
			return nil
		})

	svc.Log(context.Background(), auditEntry(domain.AuditActionTransfer))
	svc.Wait()
}

// The write must not be cut short when the request context ends.
func TestAuditService_Log_SurvivesRequestCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, zerolog.New(io.Discard))

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *domain.AuditLog) error {
			return ctx.Err()
		})

	var buf bytes.Buffer
	svc.log = zerolog.New(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Log(ctx, auditEntry(domain.AuditActionDeposit))
	svc.Wait()

	assert.NotContains(t, buf.String(), "failed to persist")
}

func TestAuditService_Log_RepoErrorIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)

	var buf bytes.Buffer
	svc := NewAuditService(mockRepo, zerolog.New(&buf))

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	svc.Log(context.Background(), auditEntry(domain.AuditActionLogin))
	svc.Wait()

	assert.Contains(t, buf.String(), "failed to persist audit log")
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	var buf bytes.Buffer
	svc := NewAuditService(nil, zerolog.New(&buf))

	svc.Log(context.Background(), auditEntry(domain.AuditActionRegister))
	svc.Wait()

	assert.Contains(t, buf.String(), `"action":"REGISTER"`)
}
