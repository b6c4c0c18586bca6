package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. The scheduler is a pure
// function over snapshotted terms, so the amortization semantics can be
// validated without MySQL.

func monthlyTerms(principal int64, rate string, months int) ScheduleTerms {
	return ScheduleTerms{
		Principal:        models.NewMoneyFromCentavos(principal),
		MonthlyRate:      decimal.RequireFromString(rate),
		TermMonths:       months,
		FirstPaymentDate: time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		Interval:         models.PaymentIntervalMonthly,
	}
}

func assertScheduleInvariants(t *testing.T, terms ScheduleTerms, result *ScheduleResult) {
	t.Helper()

	var principalSum, interestSum models.MoneyAmount
	prevEnding := terms.Principal
	for i, line := range result.Lines {
		if line.PaymentNumber != i+1 {
			t.Fatalf("row %d: payment number %d", i, line.PaymentNumber)
		}
		if line.BeginningBalance != prevEnding {
			t.Fatalf("row %d: beginning balance %s does not chain from previous ending %s",
				line.PaymentNumber, line.BeginningBalance, prevEnding)
		}
		if line.EndingBalance != line.BeginningBalance.Sub(line.PrincipalDue) {
			t.Fatalf("row %d: ending balance %s != beginning %s - principal %s",
				line.PaymentNumber, line.EndingBalance, line.BeginningBalance, line.PrincipalDue)
		}
		if line.TotalDue != line.PrincipalDue.Add(line.InterestDue) {
			t.Fatalf("row %d: total due %s != principal %s + interest %s",
				line.PaymentNumber, line.TotalDue, line.PrincipalDue, line.InterestDue)
		}
		if line.PrincipalDue.IsNegative() || line.InterestDue.IsNegative() {
			t.Fatalf("row %d: negative component: principal %s interest %s",
				line.PaymentNumber, line.PrincipalDue, line.InterestDue)
		}
		principalSum = principalSum.Add(line.PrincipalDue)
		interestSum = interestSum.Add(line.InterestDue)
		prevEnding = line.EndingBalance
	}

	if principalSum != terms.Principal {
		t.Fatalf("sum of principal dues %s != principal %s", principalSum, terms.Principal)
	}
	final := result.Lines[len(result.Lines)-1]
	if !final.EndingBalance.IsZero() {
		t.Fatalf("final ending balance %s, want zero", final.EndingBalance)
	}
	if interestSum != result.TotalInterest {
		t.Fatalf("interest sum %s != result total interest %s", interestSum, result.TotalInterest)
	}
	if result.TotalPayable != terms.Principal.Add(result.TotalInterest) {
		t.Fatalf("total payable %s != principal %s + interest %s",
			result.TotalPayable, terms.Principal, result.TotalInterest)
	}
}

func TestComputeSchedule_StandardMonthlyLoan(t *testing.T) {
	// 100,000.00 at 1.5% per month over 12 months.
	terms := monthlyTerms(10_000_000, "0.015", 12)
	result, err := ComputeSchedule(terms)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Lines) != 12 {
		t.Fatalf("got %d rows, want 12", len(result.Lines))
	}
	assertScheduleInvariants(t, terms, result)

	// EMI from the annuity formula: 9,168.00.
	if result.InstallmentAmount != models.NewMoneyFromCentavos(916_800) {
		t.Fatalf("installment %s, want 9168.00", result.InstallmentAmount)
	}
	// First row interest is exactly principal * rate.
	if got := result.Lines[0].InterestDue; got != models.NewMoneyFromCentavos(150_000) {
		t.Fatalf("first row interest %s, want 1500.00", got)
	}
	// Interest decreases as the balance diminishes.
	for i := 1; i < len(result.Lines); i++ {
		if result.Lines[i].InterestDue > result.Lines[i-1].InterestDue {
			t.Fatalf("row %d interest %s exceeds row %d interest %s",
				i+1, result.Lines[i].InterestDue, i, result.Lines[i-1].InterestDue)
		}
	}
}

func TestComputeSchedule_ZeroRate(t *testing.T) {
	terms := monthlyTerms(12_000_000, "0", 12)
	result, err := ComputeSchedule(terms)
	if err != nil {
		t.Fatal(err)
	}
	assertScheduleInvariants(t, terms, result)
	if result.TotalInterest != 0 {
		t.Fatalf("zero-rate total interest %s, want zero", result.TotalInterest)
	}
	for _, line := range result.Lines {
		if line.PrincipalDue != models.NewMoneyFromCentavos(1_000_000) {
			t.Fatalf("row %d principal %s, want 10000.00", line.PaymentNumber, line.PrincipalDue)
		}
	}
}

func TestComputeSchedule_RoundingRemainderAbsorbedInFinalRow(t *testing.T) {
	// An awkward principal that cannot divide evenly.
	terms := monthlyTerms(1_000_001, "0.021", 7)
	result, err := ComputeSchedule(terms)
	if err != nil {
		t.Fatal(err)
	}
	assertScheduleInvariants(t, terms, result)
}

func TestComputeSchedule_SinglePeriodBalloon(t *testing.T) {
	terms := monthlyTerms(10_000_000, "0.015", 1)
	result, err := ComputeSchedule(terms)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Lines) != 1 {
		t.Fatalf("got %d rows, want 1", len(result.Lines))
	}
	assertScheduleInvariants(t, terms, result)

	line := result.Lines[0]
	if line.PrincipalDue != terms.Principal {
		t.Fatalf("balloon principal %s, want the full %s", line.PrincipalDue, terms.Principal)
	}
	if line.InterestDue != models.NewMoneyFromCentavos(150_000) {
		t.Fatalf("balloon interest %s, want 1500.00", line.InterestDue)
	}
}

func TestComputeSchedule_WeeklyPeriodCount(t *testing.T) {
	terms := monthlyTerms(5_200_000, "0.015", 12)
	terms.Interval = models.PaymentIntervalWeekly
	result, err := ComputeSchedule(terms)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Lines) != 52 {
		t.Fatalf("12-month weekly schedule has %d rows, want 52", len(result.Lines))
	}
	assertScheduleInvariants(t, terms, result)

	for i := 1; i < len(result.Lines); i++ {
		gap := result.Lines[i].DueDate.Sub(result.Lines[i-1].DueDate)
		if gap != 7*24*time.Hour {
			t.Fatalf("row %d due %s is not 7 days after row %d due %s",
				i+1, result.Lines[i].DueDate, i, result.Lines[i-1].DueDate)
		}
	}
}

func TestComputeSchedule_SemiMonthlyPeriodCount(t *testing.T) {
	terms := monthlyTerms(10_000_000, "0.02", 6)
	terms.Interval = models.PaymentIntervalSemiMonthly
	result, err := ComputeSchedule(terms)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Lines) != 12 {
		t.Fatalf("6-month semi-monthly schedule has %d rows, want 12", len(result.Lines))
	}
	assertScheduleInvariants(t, terms, result)

	// Odd rows land 15 days after the matching on-cycle date.
	first := terms.FirstPaymentDate
	if got := result.Lines[1].DueDate; !got.Equal(first.AddDate(0, 0, 15)) {
		t.Fatalf("second due date %s, want %s", got, first.AddDate(0, 0, 15))
	}
	if got := result.Lines[2].DueDate; !got.Equal(first.AddDate(0, 1, 0)) {
		t.Fatalf("third due date %s, want %s", got, first.AddDate(0, 1, 0))
	}
}

func TestComputeSchedule_RejectsBadTerms(t *testing.T) {
	cases := []struct {
		name  string
		terms ScheduleTerms
	}{
		{"zero principal", monthlyTerms(0, "0.015", 12)},
		{"negative rate", monthlyTerms(10_000_000, "-0.01", 12)},
		{"zero term", monthlyTerms(10_000_000, "0.015", 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ComputeSchedule(tc.terms); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	terms := monthlyTerms(10_000_000, "0.015", 12)
	terms.FirstPaymentDate = time.Time{}
	if _, err := ComputeSchedule(terms); err == nil {
		t.Fatal("expected an error for a zero first payment date")
	}
}
