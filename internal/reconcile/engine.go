// Package reconcile proves the projection tables against each other and
// against the audit log. It never writes financial rows.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mmynk/equb/internal/calculator"
	"github.com/mmynk/equb/internal/health"
	"github.com/mmynk/equb/internal/metrics"
	"github.com/mmynk/equb/internal/models"
	"github.com/mmynk/equb/internal/storage"
)

// Engine runs global metrics, integrity checks, replay and drift detection.
type Engine struct {
	store   storage.Store
	status  *health.Status
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates an Engine. status, m and logger may be nil; without a
// status Sweep only reports.
func NewEngine(store storage.Store, status *health.Status, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, status: status, metrics: m, logger: logger}
}

// Figures is a count and an exact amount.
type Figures struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Violation is one round whose settlement does not match its payout.
type Violation struct {
	GroupID     string  `json:"groupId"`
	RoundNumber int     `json:"roundNumber"`
	PayoutID    string  `json:"payoutId,omitempty"`
	Reason      string  `json:"reason"`
	Expected    Figures `json:"expected"`
	Actual      Figures `json:"actual"`
}

// IntegrityReport is the outcome of IntegrityCheck.
type IntegrityReport struct {
	CheckedPayouts   int         `json:"checkedPayouts"`
	DiscrepancyCount int         `json:"discrepancyCount"`
	Violations       []Violation `json:"violations"`
}

// Healthy reports whether no violation was found.
func (r *IntegrityReport) Healthy() bool {
	return r.DiscrepancyCount == 0
}

type roundKey struct {
	groupID string
	round   int
}

// IntegrityCheck re-sums the SETTLED contributions of every executed payout
// and compares them with the payout. It also flags settled contributions
// whose round has no executed payout. It only reads, so repeated calls
// without intervening writes return identical reports.
func (e *Engine) IntegrityCheck(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{Violations: []Violation{}}
	err := e.store.View(ctx, func(r storage.Reader) error {
		payouts, err := r.ListPayoutsByStatus(ctx, models.PayoutExecuted, models.PayoutCompleted)
		if err != nil {
			return err
		}
		settled, err := r.ListContributionsByStatus(ctx, models.ContributionSettled)
		if err != nil {
			return err
		}

		byRound := make(map[roundKey][]*models.Contribution)
		for _, c := range settled {
			k := roundKey{c.GroupID, c.RoundNumber}
			byRound[k] = append(byRound[k], c)
		}
		groups := make(map[string]*models.Group)

		paid := make(map[roundKey]bool, len(payouts))
		for _, p := range payouts {
			report.CheckedPayouts++
			k := roundKey{p.GroupID, p.RoundNumber}
			paid[k] = true

			g, ok := groups[p.GroupID]
			if !ok {
				if g, err = r.GetGroup(ctx, p.GroupID); err != nil {
					return err
				}
				groups[p.GroupID] = g
			}

			actual := calculator.TallyContributions(byRound[k])
			if v, bad := checkPayout(g, p, actual); bad {
				report.Violations = append(report.Violations, v)
			}
		}

		// Settled rows are in (group, round) order, so the orphan scan is
		// deterministic too.
		seen := make(map[roundKey]bool)
		for _, c := range settled {
			k := roundKey{c.GroupID, c.RoundNumber}
			if paid[k] || seen[k] {
				continue
			}
			seen[k] = true
			actual := calculator.TallyContributions(byRound[k])
			report.Violations = append(report.Violations, Violation{
				GroupID:     c.GroupID,
				RoundNumber: c.RoundNumber,
				Reason:      "settled contributions without an executed payout",
				Expected:    Figures{Amount: decimal.Zero},
				Actual:      Figures{Count: actual.Count, Amount: actual.Sum},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.DiscrepancyCount = len(report.Violations)
	e.metrics.IntegrityChecked(report.DiscrepancyCount)
	return report, nil
}

// checkPayout compares a payout with the tally of its settled contributions.
// The expected member count is the one the payout was sized for
// (amount / contributionAmount), not the group's active-member count at
// query time: a member suspended after a payout must not make that payout
// read as a violation.
func checkPayout(g *models.Group, p *models.Payout, actual calculator.Tally) (Violation, bool) {
	v := Violation{
		GroupID:     p.GroupID,
		RoundNumber: p.RoundNumber,
		PayoutID:    p.ID,
		Expected:    Figures{Amount: p.Amount},
		Actual:      Figures{Count: actual.Count, Amount: actual.Sum},
	}

	q, rem := p.Amount.QuoRem(g.ContributionAmount, 0)
	if !rem.IsZero() {
		v.Reason = fmt.Sprintf("payout amount %s is not a multiple of the contribution amount %s", p.Amount, g.ContributionAmount)
		return v, true
	}
	v.Expected.Count = int(q.IntPart())

	switch {
	case actual.Count != v.Expected.Count:
		v.Reason = "settled contribution count does not match payout"
	case !actual.Sum.Equal(p.Amount):
		v.Reason = "settled contribution sum does not match payout"
	default:
		return v, false
	}
	return v, true
}

// Sweep runs IntegrityCheck and updates the degraded flag: any violation,
// or a failure to run the check, blocks financial writes; a clean report
// lifts the block.
func (e *Engine) Sweep(ctx context.Context) (*IntegrityReport, error) {
	report, err := e.IntegrityCheck(ctx)
	if err != nil {
		e.logger.Error("Integrity check failed", "error", err)
		if e.status != nil {
			e.status.MarkDegraded(fmt.Sprintf("integrity check failed: %v", err))
		}
		return nil, err
	}

	if report.Healthy() {
		e.logger.Info("Integrity check passed", "checked_payouts", report.CheckedPayouts)
		if e.status != nil {
			e.status.Restore()
		}
		return report, nil
	}

	for _, v := range report.Violations {
		e.logger.Error("Integrity violation",
			"group_id", v.GroupID,
			"round", v.RoundNumber,
			"payout_id", v.PayoutID,
			"reason", v.Reason,
			"expected_count", v.Expected.Count,
			"actual_count", v.Actual.Count,
			"expected_amount", v.Expected.Amount.String(),
			"actual_amount", v.Actual.Amount.String(),
		)
	}
	if e.status != nil {
		e.status.MarkDegraded(fmt.Sprintf("%d integrity violations", report.DiscrepancyCount))
	}
	return report, nil
}
