package service

import (
	"context"
	"sync"
	"time"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const auditWriteTimeout = 5 * time.Second

// AuditServiceImpl implements ports.AuditService.
type AuditServiceImpl struct {
	repo ports.AuditRepository
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// NewAuditService creates a new audit service.
// If repo is nil, audit logs are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, log: log}
}

// Log records an audit entry asynchronously (fire-and-forget).
// The write outlives the request but not the audit write timeout.
func (s *AuditServiceImpl) Log(ctx context.Context, entry *domain.AuditLog) {
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		event := s.log.Info().
			Str("action", string(entry.Action)).
			Str("ip", entry.IPAddress)
		if entry.Username != nil {
			event = event.Str("username", *entry.Username)
		}
		if entry.IBAN != "" {
			event = event.Str("iban", entry.IBAN)
		}
		event.Msg("audit")

		if s.repo == nil {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
		defer cancel()
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	}()
}

// Wait blocks until every pending audit write has finished.
func (s *AuditServiceImpl) Wait() {
	s.wg.Wait()
}
