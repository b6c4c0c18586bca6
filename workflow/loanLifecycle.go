package workflow

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/models"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"gorm.io/gorm"
)

// illegalTransition builds the business-rule error for a state machine
// violation, naming the expected and actual states so the caller can show a
// useful message.
func illegalTransition(op string, loan *models.Loan, allowed ...models.LoanStatus) error {
	names := make([]string, 0, len(allowed))
	for _, s := range allowed {
		names = append(names, string(s))
	}
	return utils.NewBusinessRuleError("loan."+op,
		"loan %d is %q, expected one of: %s", loan.ID, loan.Status, strings.Join(names, ", "))
}

func loanStatusIn(loan *models.Loan, allowed ...models.LoanStatus) bool {
	for _, s := range allowed {
		if loan.Status == s {
			return true
		}
	}
	return false
}

// ApplyLoan validates an application against the product's limits and creates
// the loan in Pending. Financial terms are snapshotted from the product here
// and never re-read from it afterwards.
func ApplyLoan(ctx context.Context, input models.NewLoanApplication) (*models.Loan, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	storeId, _ := utils.GetStoreIdFromContext(ctx)

	product, err := models.GetLoanProductById(ctx, input.LoanProductId)
	if err != nil {
		config.LogError(logger, "loanLifecycle.go", "ApplyLoan", "GetLoanProduct", input.LoanProductId, err)
		return nil, err
	}
	if product.IsActive != nil && !*product.IsActive {
		return nil, utils.NewBusinessRuleError("loan.apply", "loan product %q is no longer offered", product.Code)
	}

	principal := models.NewMoneyFromCentavos(input.PrincipalAmount)
	if principal < product.MinPrincipal || principal > product.MaxPrincipal {
		return nil, utils.NewBusinessRuleError("loan.apply",
			"principal %s is outside product range %s - %s",
			principal, product.MinPrincipal, product.MaxPrincipal)
	}
	if input.TermMonths > product.MaxTermMonths {
		return nil, utils.NewBusinessRuleError("loan.apply",
			"term %d months exceeds product maximum of %d", input.TermMonths, product.MaxTermMonths)
	}

	customer, err := models.GetCustomerById(ctx, input.CustomerId)
	if err != nil {
		config.LogError(logger, "loanLifecycle.go", "ApplyLoan", "GetCustomer", input.CustomerId, err)
		return nil, err
	}
	if customer.IsActive != nil && !*customer.IsActive {
		return nil, utils.NewBusinessRuleError("loan.apply", "member %s is inactive", customer.MemberNumber)
	}
	if input.RestructuredFromLoanId != nil {
		if _, err := models.GetLoanById(ctx, *input.RestructuredFromLoanId); err != nil {
			config.LogError(logger, "loanLifecycle.go", "ApplyLoan", "GetRestructuredFromLoan", *input.RestructuredFromLoanId, err)
			return nil, err
		}
	}

	loan := models.Loan{
		StoreId:                storeId,
		CustomerId:             input.CustomerId,
		LoanProductId:          product.ID,
		PrincipalAmount:        principal,
		MonthlyInterestRate:    product.MonthlyInterestRate,
		PenaltyRate:            product.PenaltyRate,
		ProcessingFeeRate:      product.ProcessingFeeRate,
		ServiceFee:             product.ServiceFee,
		TermMonths:             input.TermMonths,
		PaymentInterval:        input.PaymentInterval,
		Purpose:                input.Purpose,
		CollateralDescription:  input.CollateralDescription,
		RestructuredFromLoanId: input.RestructuredFromLoanId,
		ApplicationDate:        time.Now().UTC(),
		Status:                 models.LoanStatusPending,
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&loan).Error; err != nil {
			return err
		}
		loan.LoanNumber = models.NextLoanNumber(storeId, loan.ID)
		return tx.Model(&models.Loan{}).Where("id = ?", loan.ID).
			Update("loan_number", loan.LoanNumber).Error
	})
	if err != nil {
		config.LogError(logger, "loanLifecycle.go", "ApplyLoan", "CreateLoan", loan, err)
		return nil, err
	}
	return &loan, nil
}

// ReviewLoan moves a pending application into Under Review.
func ReviewLoan(ctx context.Context, loanId int) (*models.Loan, error) {
	return transitionLoan(ctx, loanId, "review", func(tx *gorm.DB, loan *models.Loan) error {
		if !loanStatusIn(loan, models.LoanStatusPending) {
			return illegalTransition("review", loan, models.LoanStatusPending)
		}
		loan.Status = models.LoanStatusUnderReview
		return nil
	})
}

// ApproveLoan stamps the approver and approval date. Schedule rows are not
// created yet; that happens at disbursement.
func ApproveLoan(ctx context.Context, loanId int) (*models.Loan, error) {
	approverId, _ := utils.GetUserIdFromContext(ctx)
	return transitionLoan(ctx, loanId, "approve", func(tx *gorm.DB, loan *models.Loan) error {
		if !loanStatusIn(loan, models.LoanStatusPending, models.LoanStatusUnderReview) {
			return illegalTransition("approve", loan, models.LoanStatusPending, models.LoanStatusUnderReview)
		}
		now := time.Now().UTC()
		loan.Status = models.LoanStatusApproved
		loan.ApprovedBy = approverId
		loan.ApprovalDate = &now
		return nil
	})
}

// RejectLoan is a terminal transition and requires a reason.
func RejectLoan(ctx context.Context, loanId int, reason string) (*models.Loan, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, utils.NewBusinessRuleError("loan.reject", "a rejection reason is required")
	}
	return transitionLoan(ctx, loanId, "reject", func(tx *gorm.DB, loan *models.Loan) error {
		if !loanStatusIn(loan, models.LoanStatusPending, models.LoanStatusUnderReview) {
			return illegalTransition("reject", loan, models.LoanStatusPending, models.LoanStatusUnderReview)
		}
		loan.Status = models.LoanStatusRejected
		loan.RejectionReason = reason
		return nil
	})
}

// EditLoan updates the non-financial fields of an application. Once applied,
// principal, rate, term and interval are immutable; a different deal is a new
// (possibly restructured) loan.
func EditLoan(ctx context.Context, loanId int, input models.EditLoanApplication) (*models.Loan, error) {
	return transitionLoan(ctx, loanId, "edit", func(tx *gorm.DB, loan *models.Loan) error {
		if !loanStatusIn(loan, models.LoanStatusPending, models.LoanStatusUnderReview) {
			return illegalTransition("edit", loan, models.LoanStatusPending, models.LoanStatusUnderReview)
		}
		if input.Purpose != nil {
			loan.Purpose = *input.Purpose
		}
		if input.CollateralDescription != nil {
			loan.CollateralDescription = *input.CollateralDescription
		}
		return nil
	})
}

// DisburseLoan releases the money: it computes fees and net proceeds, runs the
// amortization scheduler on the snapshotted terms, persists every schedule row
// and the updated loan in one transaction, and activates the loan. Disbursing
// twice fails on the status check.
func DisburseLoan(ctx context.Context, loanId int, firstPaymentDate time.Time) (*models.Loan, error) {
	logger := config.GetLogger()
	return transitionLoan(ctx, loanId, "disburse", func(tx *gorm.DB, loan *models.Loan) error {
		if !loanStatusIn(loan, models.LoanStatusApproved) {
			return illegalTransition("disburse", loan, models.LoanStatusApproved)
		}

		now := time.Now().UTC()
		if firstPaymentDate.IsZero() {
			firstPaymentDate = defaultFirstPaymentDate(now, loan.PaymentInterval)
		}
		if !firstPaymentDate.After(now) {
			return utils.NewBusinessRuleError("loan.disburse",
				"first payment date %s must be in the future", firstPaymentDate.Format("2006-01-02"))
		}

		result, err := ComputeSchedule(ScheduleTerms{
			Principal:        loan.PrincipalAmount,
			MonthlyRate:      loan.MonthlyInterestRate,
			TermMonths:       loan.TermMonths,
			FirstPaymentDate: firstPaymentDate,
			Interval:         loan.PaymentInterval,
		})
		if err != nil {
			config.LogError(logger, "loanLifecycle.go", "DisburseLoan", "ComputeSchedule", loan.ID, err)
			return err
		}

		rows := make([]models.LoanScheduleRow, 0, len(result.Lines))
		for _, line := range result.Lines {
			rows = append(rows, models.LoanScheduleRow{
				StoreId:          loan.StoreId,
				LoanId:           loan.ID,
				PaymentNumber:    line.PaymentNumber,
				DueDate:          line.DueDate,
				BeginningBalance: line.BeginningBalance,
				PrincipalDue:     line.PrincipalDue,
				InterestDue:      line.InterestDue,
				TotalDue:         line.TotalDue,
				EndingBalance:    line.EndingBalance,
				Status:           models.ScheduleRowStatusPending,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			config.LogError(logger, "loanLifecycle.go", "DisburseLoan", "CreateScheduleRows", loan.ID, err)
			return err
		}

		maturity := rows[len(rows)-1].DueDate
		loan.ProcessingFee = loan.PrincipalAmount.MulRate(loan.ProcessingFeeRate)
		loan.NetProceeds = loan.PrincipalAmount.Sub(loan.ProcessingFee).Sub(loan.ServiceFee)
		loan.TotalInterest = result.TotalInterest
		loan.TotalPayable = result.TotalPayable
		loan.AmortizationAmount = result.InstallmentAmount
		loan.OutstandingBalance = loan.PrincipalAmount
		loan.DisbursementDate = &now
		loan.FirstPaymentDate = &firstPaymentDate
		loan.MaturityDate = &maturity
		loan.Status = models.LoanStatusActive
		return nil
	})
}

// WriteOffLoan is the terminal transition for uncollectible loans. The
// schedule and ledger stay as they are; only the status and audit fields move.
func WriteOffLoan(ctx context.Context, loanId int, reason string) (*models.Loan, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, utils.NewBusinessRuleError("loan.writeoff", "a write-off reason is required")
	}
	return transitionLoan(ctx, loanId, "writeoff", func(tx *gorm.DB, loan *models.Loan) error {
		if !loanStatusIn(loan, models.LoanStatusActive, models.LoanStatusDisbursed) {
			return illegalTransition("writeoff", loan, models.LoanStatusActive, models.LoanStatusDisbursed)
		}
		now := time.Now().UTC()
		loan.Status = models.LoanStatusWrittenOff
		loan.WriteOffReason = reason
		loan.WriteOffDate = &now
		return nil
	})
}

// transitionLoan wraps a state transition in the standard posting envelope:
// one transaction, the per-loan advisory lock, a row lock on the loan, the
// mutation, a full save, and the consistency assertion.
func transitionLoan(ctx context.Context, loanId int, op string, mutate func(tx *gorm.DB, loan *models.Loan) error) (*models.Loan, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	var loan *models.Loan
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireLoanPostingLock(tx, loanId); err != nil {
			return err
		}
		defer ReleaseLoanPostingLock(tx, loanId)

		var err error
		loan, err = models.GetLoanForUpdate(tx, loanId)
		if err != nil {
			return err
		}
		if err := mutate(tx, loan); err != nil {
			return err
		}
		if err := tx.Save(loan).Error; err != nil {
			return err
		}
		return AssertLoanConsistency(tx, loan)
	})
	if err != nil {
		if !utils.IsBusinessRuleError(err) {
			config.LogError(logger, "loanLifecycle.go", "transitionLoan", op, loanId, err)
		}
		return nil, err
	}
	return loan, nil
}

func defaultFirstPaymentDate(from time.Time, interval models.PaymentInterval) time.Time {
	switch interval {
	case models.PaymentIntervalWeekly:
		return from.AddDate(0, 0, 7)
	case models.PaymentIntervalSemiMonthly:
		return from.AddDate(0, 0, 15)
	default:
		return from.AddDate(0, 1, 0)
	}
}
