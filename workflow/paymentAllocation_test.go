package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/models"
)

// The waterfall core is pure over the loaded rows and penalties, so its
// allocation order and spill behavior are validated without MySQL.

func scheduleRow(id, number int, principalDue, interestDue int64) *models.LoanScheduleRow {
	return &models.LoanScheduleRow{
		ID:            id,
		PaymentNumber: number,
		DueDate:       time.Date(2026, time.Month(number), 15, 0, 0, 0, 0, time.UTC),
		PrincipalDue:  models.NewMoneyFromCentavos(principalDue),
		InterestDue:   models.NewMoneyFromCentavos(interestDue),
		TotalDue:      models.NewMoneyFromCentavos(principalDue + interestDue),
		Status:        models.ScheduleRowStatusPending,
	}
}

func openPenalty(id, rowId int, amount int64) *models.LoanPenalty {
	return &models.LoanPenalty{
		ID:            id,
		ScheduleRowId: rowId,
		AppliedDate:   time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		PenaltyAmount: models.NewMoneyFromCentavos(amount),
	}
}

func totals(allocations []rowAllocation) (principal, interest, penalty models.MoneyAmount) {
	for _, a := range allocations {
		principal = principal.Add(a.PrincipalApplied)
		interest = interest.Add(a.InterestApplied)
		penalty = penalty.Add(a.PenaltyApplied)
	}
	return
}

func TestAllocatePayment_PenaltyThenInterestThenPrincipal(t *testing.T) {
	// One overdue row: 8,168.00 principal, 1,000.00 interest, 500.00 penalty.
	// A 20,000.00 payment clears all of it and spills into the next row.
	row1 := scheduleRow(1, 1, 816_800, 100_000)
	row1.Status = models.ScheduleRowStatusOverdue
	row2 := scheduleRow(2, 2, 1_200_000, 87_700)
	pen := openPenalty(10, 1, 50_000)

	allocations, leftover := allocatePayment(
		models.NewMoneyFromCentavos(2_000_000),
		[]*models.LoanScheduleRow{row1, row2},
		[]*models.LoanPenalty{pen},
	)
	if !leftover.IsZero() {
		t.Fatalf("leftover %s, want zero", leftover)
	}

	principal, interest, penalty := totals(allocations)
	if penalty != models.NewMoneyFromCentavos(50_000) {
		t.Fatalf("penalty portion %s, want 500.00", penalty)
	}
	if interest != models.NewMoneyFromCentavos(100_000+87_700) {
		t.Fatalf("interest portion %s, want 1877.00", interest)
	}
	// 20,000.00 - 500.00 - 1,877.00 = 17,623.00 to principal.
	if principal != models.NewMoneyFromCentavos(1_762_300) {
		t.Fatalf("principal portion %s, want 17623.00", principal)
	}

	// The penalty allocation comes first and is attributed to its penalty.
	if allocations[0].Penalty == nil || allocations[0].Penalty.ID != 10 {
		t.Fatalf("first allocation is not the penalty")
	}
	// Row 1 is touched before row 2.
	if allocations[1].Row.ID != 1 || allocations[2].Row.ID != 2 {
		t.Fatalf("rows allocated out of order: %d then %d", allocations[1].Row.ID, allocations[2].Row.ID)
	}
	// Row 2 takes its full interest before any of its principal.
	if allocations[2].InterestApplied != models.NewMoneyFromCentavos(87_700) {
		t.Fatalf("row 2 interest applied %s, want 877.00", allocations[2].InterestApplied)
	}
	if got := allocations[2].PrincipalApplied; got != models.NewMoneyFromCentavos(1_762_300-816_800) {
		t.Fatalf("row 2 principal applied %s", got)
	}
}

func TestAllocatePayment_PartialPaymentStopsMidInterest(t *testing.T) {
	row := scheduleRow(1, 1, 816_800, 100_000)
	allocations, leftover := allocatePayment(
		models.NewMoneyFromCentavos(40_000),
		[]*models.LoanScheduleRow{row},
		nil,
	)
	if !leftover.IsZero() {
		t.Fatalf("leftover %s, want zero", leftover)
	}
	if len(allocations) != 1 {
		t.Fatalf("got %d allocations, want 1", len(allocations))
	}
	if allocations[0].InterestApplied != models.NewMoneyFromCentavos(40_000) {
		t.Fatalf("interest applied %s, want 400.00", allocations[0].InterestApplied)
	}
	if !allocations[0].PrincipalApplied.IsZero() {
		t.Fatalf("principal applied %s, want zero before interest is cleared", allocations[0].PrincipalApplied)
	}
}

func TestAllocatePayment_SkipsSettledRowsAndPaidPenalties(t *testing.T) {
	paidRow := scheduleRow(1, 1, 816_800, 100_000)
	paidRow.PrincipalPaid = paidRow.PrincipalDue
	paidRow.InterestPaid = paidRow.InterestDue
	paidRow.Status = models.ScheduleRowStatusPaid

	openRow := scheduleRow(2, 2, 829_100, 87_700)

	settled := openPenalty(10, 1, 50_000)
	settled.PaidAmount = settled.PenaltyAmount
	settled.IsPaid = true
	waived := openPenalty(11, 1, 30_000)
	waived.WaivedAmount = waived.PenaltyAmount

	allocations, leftover := allocatePayment(
		models.NewMoneyFromCentavos(100_000),
		[]*models.LoanScheduleRow{paidRow, openRow},
		[]*models.LoanPenalty{settled, waived},
	)
	if !leftover.IsZero() {
		t.Fatalf("leftover %s, want zero", leftover)
	}
	if len(allocations) != 1 {
		t.Fatalf("got %d allocations, want 1", len(allocations))
	}
	if allocations[0].Row.ID != 2 {
		t.Fatalf("allocated to row %d, want the open row", allocations[0].Row.ID)
	}
	if allocations[0].PenaltyApplied != 0 {
		t.Fatalf("penalty applied %s against settled penalties", allocations[0].PenaltyApplied)
	}
}

func TestAllocatePayment_LeftoverWhenEverythingIsSettled(t *testing.T) {
	paidRow := scheduleRow(1, 1, 816_800, 100_000)
	paidRow.PrincipalPaid = paidRow.PrincipalDue
	paidRow.InterestPaid = paidRow.InterestDue
	paidRow.Status = models.ScheduleRowStatusPaid

	allocations, leftover := allocatePayment(
		models.NewMoneyFromCentavos(10_000),
		[]*models.LoanScheduleRow{paidRow},
		nil,
	)
	if len(allocations) != 0 {
		t.Fatalf("got %d allocations, want none", len(allocations))
	}
	if leftover != models.NewMoneyFromCentavos(10_000) {
		t.Fatalf("leftover %s, want the full tender", leftover)
	}
}

func TestAllocatePayment_SnapshotsRowStateBeforeMutation(t *testing.T) {
	paid := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	row := scheduleRow(1, 1, 816_800, 100_000)
	row.InterestPaid = models.NewMoneyFromCentavos(50_000)
	row.Status = models.ScheduleRowStatusPartial
	row.PaidDate = &paid

	allocations, _ := allocatePayment(
		models.NewMoneyFromCentavos(50_000),
		[]*models.LoanScheduleRow{row},
		nil,
	)
	if len(allocations) != 1 {
		t.Fatalf("got %d allocations, want 1", len(allocations))
	}
	if allocations[0].RowStatusBefore != models.ScheduleRowStatusPartial {
		t.Fatalf("snapshot status %q, want Partial", allocations[0].RowStatusBefore)
	}
	if allocations[0].PaidDateBefore == nil || !allocations[0].PaidDateBefore.Equal(paid) {
		t.Fatalf("snapshot paid date %v, want %s", allocations[0].PaidDateBefore, paid)
	}
}

func TestAllocatePayment_RowExhaustedBeforeNextRowsPenalty(t *testing.T) {
	// Two overdue rows, each carrying a 100.00 penalty and 500.00 of interest.
	// A 300.00 payment must stay on row 1: its penalty, then its interest.
	// Row 2's penalty collects nothing until row 1 is fully exhausted.
	row1 := scheduleRow(1, 1, 800_000, 50_000)
	row1.Status = models.ScheduleRowStatusOverdue
	row2 := scheduleRow(2, 2, 800_000, 50_000)
	row2.Status = models.ScheduleRowStatusOverdue
	pen1 := openPenalty(10, 1, 10_000)
	pen2 := openPenalty(11, 2, 10_000)

	allocations, leftover := allocatePayment(
		models.NewMoneyFromCentavos(30_000),
		[]*models.LoanScheduleRow{row1, row2},
		[]*models.LoanPenalty{pen1, pen2},
	)
	if !leftover.IsZero() {
		t.Fatalf("leftover %s, want zero", leftover)
	}
	if len(allocations) != 2 {
		t.Fatalf("got %d allocations, want 2", len(allocations))
	}
	if allocations[0].Penalty == nil || allocations[0].Penalty.ID != 10 {
		t.Fatalf("first allocation is not row 1's penalty")
	}
	if allocations[0].PenaltyApplied != models.NewMoneyFromCentavos(10_000) {
		t.Fatalf("row 1 penalty applied %s, want 100.00", allocations[0].PenaltyApplied)
	}
	if allocations[1].Row.ID != 1 || allocations[1].InterestApplied != models.NewMoneyFromCentavos(20_000) {
		t.Fatalf("row 1 interest applied %s on row %d, want 200.00 on row 1",
			allocations[1].InterestApplied, allocations[1].Row.ID)
	}
	for _, a := range allocations {
		if a.Penalty != nil && a.Penalty.ID == 11 {
			t.Fatalf("row 2's penalty collected %s while row 1 was still owed", a.PenaltyApplied)
		}
	}
}

func TestAllocatePayment_SettledRowPenaltyGoesFirst(t *testing.T) {
	// A penalty left behind on an already-paid row has nothing else to collect
	// on that row, so it is taken before the open rows.
	paidRow := scheduleRow(1, 1, 816_800, 100_000)
	paidRow.PrincipalPaid = paidRow.PrincipalDue
	paidRow.InterestPaid = paidRow.InterestDue
	paidRow.Status = models.ScheduleRowStatusPaid

	openRow := scheduleRow(2, 2, 800_000, 50_000)
	strayPen := openPenalty(10, 1, 10_000)

	allocations, leftover := allocatePayment(
		models.NewMoneyFromCentavos(40_000),
		[]*models.LoanScheduleRow{paidRow, openRow},
		[]*models.LoanPenalty{strayPen},
	)
	if !leftover.IsZero() {
		t.Fatalf("leftover %s, want zero", leftover)
	}
	if len(allocations) != 2 {
		t.Fatalf("got %d allocations, want 2", len(allocations))
	}
	if allocations[0].Penalty == nil || allocations[0].Penalty.ID != 10 {
		t.Fatalf("stray penalty not collected first")
	}
	if allocations[1].Row.ID != 2 || allocations[1].InterestApplied != models.NewMoneyFromCentavos(30_000) {
		t.Fatalf("open row interest applied %s, want 300.00", allocations[1].InterestApplied)
	}
}

func TestApplyAllocation_PenaltyOnlyLeavesRowHistoryAlone(t *testing.T) {
	// Collecting a penalty on a row that was already paid must not rewrite the
	// row's status or its historical paid date.
	paid := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	row := scheduleRow(1, 1, 816_800, 100_000)
	row.PrincipalPaid = row.PrincipalDue
	row.InterestPaid = row.InterestDue
	row.TotalPaid = row.TotalDue
	row.Status = models.ScheduleRowStatusPaid
	row.PaidDate = &paid
	pen := openPenalty(10, 1, 10_000)

	allocations, leftover := allocatePayment(
		models.NewMoneyFromCentavos(10_000),
		[]*models.LoanScheduleRow{row},
		[]*models.LoanPenalty{pen},
	)
	if !leftover.IsZero() || len(allocations) != 1 {
		t.Fatalf("got %d allocations with leftover %s, want 1 with zero", len(allocations), leftover)
	}

	applyAllocation(allocations[0], time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	if !pen.IsPaid || pen.PaidAmount != models.NewMoneyFromCentavos(10_000) {
		t.Fatalf("penalty not settled: paid=%s is_paid=%v", pen.PaidAmount, pen.IsPaid)
	}
	if row.PenaltyPaid != models.NewMoneyFromCentavos(10_000) {
		t.Fatalf("row penalty paid %s, want 100.00", row.PenaltyPaid)
	}
	if row.Status != models.ScheduleRowStatusPaid {
		t.Fatalf("row status %q, want it to stay Paid", row.Status)
	}
	if row.PaidDate == nil || !row.PaidDate.Equal(paid) {
		t.Fatalf("paid date %v, want the original %s", row.PaidDate, paid)
	}
}

func TestApplyThenRevertAllocationsRestoresState(t *testing.T) {
	// Allocate, apply, then walk the persisted records backwards through
	// revertAllocation: every row and penalty field must come back exactly.
	paidAt := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	row1 := scheduleRow(1, 1, 816_800, 100_000)
	row1.InterestPaid = models.NewMoneyFromCentavos(40_000)
	row1.TotalPaid = models.NewMoneyFromCentavos(40_000)
	row1.Status = models.ScheduleRowStatusPartial
	row1.PaidDate = &paidAt
	row2 := scheduleRow(2, 2, 829_100, 87_700)
	pen := openPenalty(10, 1, 50_000)
	pen.PaidAmount = models.NewMoneyFromCentavos(20_000)

	rows := []*models.LoanScheduleRow{row1, row2}
	penalties := []*models.LoanPenalty{pen}
	rowsBefore := []models.LoanScheduleRow{*row1, *row2}
	penBefore := *pen

	allocations, leftover := allocatePayment(
		models.NewMoneyFromCentavos(1_200_000), rows, penalties)
	if !leftover.IsZero() {
		t.Fatalf("leftover %s, want zero", leftover)
	}

	paymentDate := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	records := make([]models.LoanPaymentAllocation, 0, len(allocations))
	for _, a := range allocations {
		applyAllocation(a, paymentDate)
		records = append(records, a.record(1))
	}

	// Both rows must have moved before we trust the revert.
	if row1.Status != models.ScheduleRowStatusPaid || row2.Status != models.ScheduleRowStatusPartial {
		t.Fatalf("apply did not advance the rows: %q / %q", row1.Status, row2.Status)
	}
	if !pen.IsPaid {
		t.Fatalf("apply did not settle the penalty")
	}

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		var row *models.LoanScheduleRow
		for _, r := range rows {
			if r.ID == rec.ScheduleRowId {
				row = r
			}
		}
		var penalty *models.LoanPenalty
		if rec.LoanPenaltyId != 0 {
			for _, p := range penalties {
				if p.ID == rec.LoanPenaltyId {
					penalty = p
				}
			}
		}
		revertAllocation(rec, row, penalty)
	}

	for i, want := range rowsBefore {
		got := *rows[i]
		if got.PrincipalPaid != want.PrincipalPaid || got.InterestPaid != want.InterestPaid ||
			got.PenaltyPaid != want.PenaltyPaid || got.TotalPaid != want.TotalPaid {
			t.Fatalf("row %d amounts not restored: got %+v want %+v", want.ID, got, want)
		}
		if got.Status != want.Status {
			t.Fatalf("row %d status %q, want %q", want.ID, got.Status, want.Status)
		}
		switch {
		case want.PaidDate == nil && got.PaidDate != nil:
			t.Fatalf("row %d paid date %v, want nil", want.ID, got.PaidDate)
		case want.PaidDate != nil && (got.PaidDate == nil || !got.PaidDate.Equal(*want.PaidDate)):
			t.Fatalf("row %d paid date %v, want %v", want.ID, got.PaidDate, want.PaidDate)
		}
	}
	if pen.PaidAmount != penBefore.PaidAmount || pen.IsPaid != penBefore.IsPaid {
		t.Fatalf("penalty not restored: paid=%s is_paid=%v, want paid=%s is_paid=%v",
			pen.PaidAmount, pen.IsPaid, penBefore.PaidAmount, penBefore.IsPaid)
	}
}
