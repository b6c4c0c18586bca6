package workflow

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/models"
	"github.com/shopspring/decimal"
)

// ScheduleTerms are the inputs of an amortization computation. They are a
// snapshot: the scheduler never reads product or loan state.
type ScheduleTerms struct {
	Principal        models.MoneyAmount
	MonthlyRate      decimal.Decimal
	TermMonths       int
	FirstPaymentDate time.Time
	Interval         models.PaymentInterval
}

// ScheduleLine is one computed period before persistence.
type ScheduleLine struct {
	PaymentNumber    int                `json:"payment_number"`
	DueDate          time.Time          `json:"due_date"`
	BeginningBalance models.MoneyAmount `json:"beginning_balance"`
	PrincipalDue     models.MoneyAmount `json:"principal_due"`
	InterestDue      models.MoneyAmount `json:"interest_due"`
	TotalDue         models.MoneyAmount `json:"total_due"`
	EndingBalance    models.MoneyAmount `json:"ending_balance"`
}

type ScheduleResult struct {
	Lines             []ScheduleLine     `json:"lines"`
	InstallmentAmount models.MoneyAmount `json:"installment_amount"`
	TotalInterest     models.MoneyAmount `json:"total_interest"`
	TotalPayable      models.MoneyAmount `json:"total_payable"`
}

// ComputeSchedule builds a diminishing-balance repayment schedule: a level
// installment (EMI) from the annuity formula, per-row interest on the
// remaining balance rounded to the centavo, and the final row's principal
// forced to the exact remaining balance so the schedule terminates at zero.
//
// Pure function: no I/O, deterministic, safe for unpersisted previews and for
// concurrent callers.
func ComputeSchedule(terms ScheduleTerms) (*ScheduleResult, error) {
	if !terms.Principal.IsPositive() {
		return nil, fmt.Errorf("compute schedule: principal must be positive, got %s", terms.Principal)
	}
	if terms.TermMonths <= 0 {
		return nil, fmt.Errorf("compute schedule: term must be positive, got %d months", terms.TermMonths)
	}
	if terms.MonthlyRate.IsNegative() {
		return nil, fmt.Errorf("compute schedule: monthly rate must not be negative, got %s", terms.MonthlyRate)
	}
	if terms.FirstPaymentDate.IsZero() {
		return nil, fmt.Errorf("compute schedule: first payment date is required")
	}

	periods, periodRate, err := periodsAndRate(terms.Interval, terms.TermMonths, terms.MonthlyRate)
	if err != nil {
		return nil, err
	}

	emi := installmentAmount(terms.Principal, periodRate, periods)

	lines := make([]ScheduleLine, 0, periods)
	remaining := terms.Principal
	var totalInterest models.MoneyAmount

	for i := 1; i <= periods; i++ {
		interest := remaining.MulRate(periodRate)
		principal := emi.Sub(interest)
		if principal.IsNegative() {
			principal = 0
		}
		if principal > remaining {
			principal = remaining
		}
		if i == periods {
			// Absorb accumulated rounding drift: the last period clears the
			// remaining balance exactly.
			principal = remaining
		}

		ending := remaining.Sub(principal)
		lines = append(lines, ScheduleLine{
			PaymentNumber:    i,
			DueDate:          dueDate(terms.FirstPaymentDate, terms.Interval, i-1),
			BeginningBalance: remaining,
			PrincipalDue:     principal,
			InterestDue:      interest,
			TotalDue:         principal.Add(interest),
			EndingBalance:    ending,
		})
		totalInterest = totalInterest.Add(interest)
		remaining = ending
	}

	return &ScheduleResult{
		Lines:             lines,
		InstallmentAmount: emi,
		TotalInterest:     totalInterest,
		TotalPayable:      terms.Principal.Add(totalInterest),
	}, nil
}

// periodsAndRate derives the per-period rate and the number of periods from
// the monthly rate. Weekly and semi-monthly schedules rescale the rate through
// the yearly equivalent rather than naively dividing the monthly rate.
func periodsAndRate(interval models.PaymentInterval, termMonths int, monthlyRate decimal.Decimal) (int, decimal.Decimal, error) {
	switch interval {
	case models.PaymentIntervalMonthly:
		return termMonths, monthlyRate, nil
	case models.PaymentIntervalSemiMonthly:
		return termMonths * 2, monthlyRate.Div(decimal.NewFromInt(2)), nil
	case models.PaymentIntervalWeekly:
		// 52 weeks per year: n = round(months * 52/12), r = monthly * 12/52.
		periods := (termMonths*52 + 6) / 12
		rate := monthlyRate.Mul(decimal.NewFromInt(12)).Div(decimal.NewFromInt(52))
		return periods, rate, nil
	default:
		return 0, decimal.Zero, fmt.Errorf("compute schedule: unknown payment interval %q", interval)
	}
}

// installmentAmount is the level per-period installment in centavos:
// P * r * (1+r)^n / ((1+r)^n - 1), rounded half-up to the centavo.
// A zero rate degenerates to an even principal split.
func installmentAmount(principal models.MoneyAmount, periodRate decimal.Decimal, periods int) models.MoneyAmount {
	principalDec := decimal.NewFromInt(principal.Centavos())
	n := decimal.NewFromInt(int64(periods))

	if periodRate.IsZero() {
		return models.NewMoneyFromCentavos(principalDec.DivRound(n, 0).IntPart())
	}

	factor := decimal.NewFromInt(1).Add(periodRate).Pow(n)
	emi := principalDec.Mul(periodRate).Mul(factor).
		DivRound(factor.Sub(decimal.NewFromInt(1)), 0)
	return models.NewMoneyFromCentavos(emi.IntPart())
}

// dueDate steps the calendar forward from the first payment date. index is
// 0-based: index 0 is the first payment date itself.
func dueDate(first time.Time, interval models.PaymentInterval, index int) time.Time {
	switch interval {
	case models.PaymentIntervalWeekly:
		return first.AddDate(0, 0, 7*index)
	case models.PaymentIntervalSemiMonthly:
		d := first.AddDate(0, index/2, 0)
		if index%2 == 1 {
			d = d.AddDate(0, 0, 15)
		}
		return d
	default:
		return first.AddDate(0, index, 0)
	}
}
