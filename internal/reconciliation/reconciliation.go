// Package reconciliation periodically verifies that wallet balances match
// the signed sum of their ledger entries.
package reconciliation

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meterline/meterline/internal/wallet"
)

// Checker produces a reconciliation report. Satisfied by the wallet service.
type Checker interface {
	Reconcile(ctx context.Context) (*wallet.ReconcileReport, error)
}

// Service runs reconciliation checks and surfaces drift.
type Service struct {
	checker Checker
	logger  *slog.Logger
}

func NewService(checker Checker, logger *slog.Logger) *Service {
	return &Service{checker: checker, logger: logger}
}

// Run executes one reconciliation pass. Drift is logged at error level so
// operators get paged; the report is returned either way.
func (s *Service) Run(ctx context.Context) (*wallet.ReconcileReport, error) {
	timer := prometheus.NewTimer(runDuration)
	defer timer.ObserveDuration()

	report, err := s.checker.Reconcile(ctx)
	if err != nil {
		runErrors.Inc()
		return nil, err
	}

	if report.Consistent {
		lastConsistent.Set(1)
		s.logger.Debug("reconciliation clean",
			"wallets", report.WalletCount, "entries", report.EntryCount)
	} else {
		lastConsistent.Set(0)
		s.logger.Error("wallet ledger drift detected",
			"drift", report.Drift,
			"wallet_total", report.WalletTotal,
			"ledger_total", report.LedgerTotal,
			"wallets", report.WalletCount,
			"entries", report.EntryCount)
	}
	return report, nil
}
