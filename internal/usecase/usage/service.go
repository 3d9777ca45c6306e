// Package usage reports embedding token spend against the configured budget.
package usage

import (
	"context"
	"time"
)

// Period selects the reporting window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// Report describes token spend within one budget period. Limit 0 means
// unlimited; Remaining is -1 in that case.
type Report struct {
	Period      Period `json:"period"`
	PeriodStart int64  `json:"period_start_ms"`
	PeriodEnd   int64  `json:"period_end_ms"`
	TokenLimit  int64  `json:"token_limit"`
	TokensUsed  int64  `json:"tokens_used"`
	Remaining   int64  `json:"tokens_remaining"`
	Exhausted   bool   `json:"exhausted"`
	ResetsAt    int64  `json:"resets_at_ms"`
}

// Service handles usage reporting.
type Service struct {
	br BudgetReader
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader) *Service {
	return &Service{br: br}
}

// GetReport builds a usage report for the given period. Unknown periods
// report the month.
func (s *Service) GetReport(_ context.Context, period Period) Report {
	now := time.Now().UTC()

	var r Report
	switch period {
	case PeriodDay:
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.Add(24 * time.Hour)
		r = Report{Period: PeriodDay, PeriodStart: dayStart.UnixMilli(), PeriodEnd: dayEnd.UnixMilli()}
		if s.br != nil {
			r.TokenLimit = s.br.DailyLimit()
			r.TokensUsed = s.br.DailyUsed()
			r.Remaining = s.br.RemainingDaily()
		}
	default:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0)
		r = Report{Period: PeriodMonth, PeriodStart: monthStart.UnixMilli(), PeriodEnd: monthEnd.UnixMilli()}
		if s.br != nil {
			r.TokenLimit = s.br.MonthlyLimit()
			r.TokensUsed = s.br.MonthlyUsed()
			r.Remaining = s.br.RemainingMonthly()
		}
	}

	if s.br == nil {
		r.Remaining = -1
	}
	r.Exhausted = r.TokenLimit > 0 && r.Remaining == 0
	r.ResetsAt = r.PeriodEnd
	return r
}
