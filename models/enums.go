package models

// LoanStatus is the lifecycle state of a loan aggregate.
type LoanStatus string

const (
	LoanStatusPending     LoanStatus = "Pending"
	LoanStatusUnderReview LoanStatus = "Under Review"
	LoanStatusApproved    LoanStatus = "Approved"
	LoanStatusRejected    LoanStatus = "Rejected"
	LoanStatusDisbursed   LoanStatus = "Disbursed"
	LoanStatusActive      LoanStatus = "Active"
	LoanStatusClosed      LoanStatus = "Closed"
	LoanStatusWrittenOff  LoanStatus = "Written Off"
)

// ScheduleRowStatus tracks one amortization period against actual payments.
type ScheduleRowStatus string

const (
	ScheduleRowStatusPending ScheduleRowStatus = "Pending"
	ScheduleRowStatusPartial ScheduleRowStatus = "Partial"
	ScheduleRowStatusPaid    ScheduleRowStatus = "Paid"
	ScheduleRowStatusOverdue ScheduleRowStatus = "Overdue"
	ScheduleRowStatusWaived  ScheduleRowStatus = "Waived"
)

// PaymentInterval selects the calendar stepping of the amortization schedule.
type PaymentInterval string

const (
	PaymentIntervalWeekly      PaymentInterval = "Weekly"
	PaymentIntervalSemiMonthly PaymentInterval = "SemiMonthly"
	PaymentIntervalMonthly     PaymentInterval = "Monthly"
)

// PaymentMethod is how a loan payment was tendered.
type PaymentMethod string

const (
	PaymentMethodCash            PaymentMethod = "Cash"
	PaymentMethodCheck           PaymentMethod = "Check"
	PaymentMethodBankTransfer    PaymentMethod = "Bank Transfer"
	PaymentMethodSalaryDeduction PaymentMethod = "Salary Deduction"
)

// InterestMethod of a loan product. Only diminishing balance is supported.
type InterestMethod string

const (
	InterestMethodDiminishing InterestMethod = "Diminishing"
)

// StatementEntryType tags entries in a loan statement projection.
type StatementEntryType string

const (
	StatementEntryDisbursement  StatementEntryType = "Disbursement"
	StatementEntryScheduleDue   StatementEntryType = "Schedule Due"
	StatementEntryPayment       StatementEntryType = "Payment"
	StatementEntryReversal      StatementEntryType = "Reversal"
	StatementEntryPenalty       StatementEntryType = "Penalty"
	StatementEntryPenaltyWaiver StatementEntryType = "Penalty Waiver"
)
