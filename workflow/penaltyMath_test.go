package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/models"
	"github.com/shopspring/decimal"
)

func TestPenaltyForRow_ProratesByDaysOverThirty(t *testing.T) {
	// 10,000.00 unpaid at 3% monthly penalty, 15 days late: 150.00.
	due := models.NewMoneyFromCentavos(1_000_000)
	rate := decimal.RequireFromString("0.03")

	if got := penaltyForRow(due, rate, 15); got != models.NewMoneyFromCentavos(15_000) {
		t.Fatalf("15 days: %s, want 150.00", got)
	}
	// A full 30-day month charges the whole monthly rate.
	if got := penaltyForRow(due, rate, 30); got != models.NewMoneyFromCentavos(30_000) {
		t.Fatalf("30 days: %s, want 300.00", got)
	}
	// 45 days keeps prorating past one month.
	if got := penaltyForRow(due, rate, 45); got != models.NewMoneyFromCentavos(45_000) {
		t.Fatalf("45 days: %s, want 450.00", got)
	}
}

func TestPenaltyForRow_RoundsHalfUpToTheCentavo(t *testing.T) {
	// 333.33 at 3% for 1 day: 333.33 * 0.001 = 0.33333 -> 0.33.
	due := models.NewMoneyFromCentavos(33_333)
	rate := decimal.RequireFromString("0.03")
	if got := penaltyForRow(due, rate, 1); got != models.NewMoneyFromCentavos(33) {
		t.Fatalf("1 day on 333.33: %s, want 0.33", got)
	}
	// 25.00 at 3% for 1 day: 2.5 centavos, exactly on the half boundary, rounds up.
	due = models.NewMoneyFromCentavos(2_500)
	if got := penaltyForRow(due, rate, 1); got != models.NewMoneyFromCentavos(3) {
		t.Fatalf("1 day on 25.00: %s, want 0.03", got)
	}
}

func TestPenaltyOutstanding_WaiversReduceTheCollectible(t *testing.T) {
	p := &models.LoanPenalty{
		PenaltyAmount: models.NewMoneyFromCentavos(50_000),
		WaivedAmount:  models.NewMoneyFromCentavos(20_000),
		PaidAmount:    models.NewMoneyFromCentavos(10_000),
	}
	if got := p.NetPenalty(); got != models.NewMoneyFromCentavos(30_000) {
		t.Fatalf("net penalty %s, want 300.00", got)
	}
	if got := p.Outstanding(); got != models.NewMoneyFromCentavos(20_000) {
		t.Fatalf("outstanding %s, want 200.00", got)
	}
}

func TestPlanPenalty_ChargesOnlyStrictlyPastDueRows(t *testing.T) {
	loan := &models.Loan{ID: 7, StoreId: "S1", PenaltyRate: decimal.RequireFromString("0.03")}
	asOf := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	row := scheduleRow(1, 1, 800_000, 50_000)
	row.DueDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	p := planPenalty(row, loan, asOf, false)
	if p == nil {
		t.Fatalf("17 days past due, want a penalty")
	}
	if p.DaysOverdue != 17 {
		t.Fatalf("days overdue %d, want 17", p.DaysOverdue)
	}
	if want := penaltyForRow(row.OutstandingDue(), loan.PenaltyRate, 17); p.PenaltyAmount != want {
		t.Fatalf("penalty amount %s, want %s", p.PenaltyAmount, want)
	}
	if p.LoanId != 7 || p.StoreId != "S1" || p.ScheduleRowId != 1 || !p.AppliedDate.Equal(asOf) {
		t.Fatalf("penalty misattributed: %+v", p)
	}

	// Due today is not yet late.
	row.DueDate = asOf
	if p := planPenalty(row, loan, asOf, false); p != nil {
		t.Fatalf("charged %s on a row due today", p.PenaltyAmount)
	}
	// Due tomorrow is not late either.
	row.DueDate = asOf.AddDate(0, 0, 1)
	if p := planPenalty(row, loan, asOf, false); p != nil {
		t.Fatalf("charged %s on a row not yet due", p.PenaltyAmount)
	}
}

func TestPlanPenalty_SameDateRerunChargesNothing(t *testing.T) {
	loan := &models.Loan{ID: 7, StoreId: "S1", PenaltyRate: decimal.RequireFromString("0.03")}
	asOf := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	row := scheduleRow(1, 1, 800_000, 50_000)
	row.DueDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	if p := planPenalty(row, loan, asOf, true); p != nil {
		t.Fatalf("re-run for the same date charged %s again", p.PenaltyAmount)
	}
	// The next day is a fresh charge with one more day overdue.
	p := planPenalty(row, loan, asOf.AddDate(0, 0, 1), false)
	if p == nil || p.DaysOverdue != 18 {
		t.Fatalf("next-day accrual: got %+v, want 18 days overdue", p)
	}
}

func TestPlanPenalty_SkipsSettledRows(t *testing.T) {
	loan := &models.Loan{ID: 7, StoreId: "S1", PenaltyRate: decimal.RequireFromString("0.03")}
	asOf := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	row := scheduleRow(1, 1, 800_000, 50_000)
	row.DueDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	row.PrincipalPaid = row.PrincipalDue
	row.InterestPaid = row.InterestDue
	row.Status = models.ScheduleRowStatusPaid

	if p := planPenalty(row, loan, asOf, false); p != nil {
		t.Fatalf("charged %s on a settled row", p.PenaltyAmount)
	}
}
