package service

import (
	"context"
	"fmt"

	"bank-ledger/internal/core/domain"
	"bank-ledger/internal/core/ports"
	"bank-ledger/pkg/apperror"

	"golang.org/x/sync/errgroup"
)

// ReportingServiceImpl implements ports.ReportingService.
type ReportingServiceImpl struct {
	accounts ports.AccountRepository
	ledger   ports.LedgerRepository
}

// NewReportingService creates a new reporting service.
func NewReportingService(accounts ports.AccountRepository, ledger ports.LedgerRepository) *ReportingServiceImpl {
	return &ReportingServiceImpl{accounts: accounts, ledger: ledger}
}

// Summary aggregates account count, total balance and entry count over the
// accounts visible to the actor. The queries run concurrently and are not a
// single snapshot.
func (s *ReportingServiceImpl) Summary(ctx context.Context, actor domain.Actor) (*domain.AccountSummary, error) {
	scope := actor.Scope()
	var summary domain.AccountSummary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, total, err := s.accounts.Totals(gctx, scope)
		if err != nil {
			return fmt.Errorf("account totals: %w", err)
		}
		summary.Accounts = n
		summary.TotalBalance = domain.RoundMoney(total)
		return nil
	})
	g.Go(func() error {
		n, err := s.ledger.Count(gctx, scope)
		if err != nil {
			return fmt.Errorf("entry count: %w", err)
		}
		summary.Entries = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, apperror.InternalError(err)
	}
	return &summary, nil
}
