package main

import (
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/models"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"bitbucket.org/mmdatafocus/coop_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// registerValidators installs the custom binding validators on gin's
// validator engine. Must run before the first request.
func registerValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("payment_interval", func(fl validator.FieldLevel) bool {
			switch models.PaymentInterval(fl.Field().String()) {
			case models.PaymentIntervalWeekly, models.PaymentIntervalSemiMonthly, models.PaymentIntervalMonthly:
				return true
			}
			return false
		})
	}
}

// respondError translates the error taxonomy to HTTP statuses: business rule
// violations are the caller's problem (422), consistency failures already
// rolled back and are ours (500), unknown records are 404.
func respondError(c *gin.Context, err error) {
	switch {
	case err == utils.ErrorRecordNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
	case utils.IsBusinessRuleError(err):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case utils.IsConsistencyError(err):
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal consistency check failed; the operation was rolled back"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func createLoanProductHandler(c *gin.Context) {
	var input models.NewLoanProduct
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	storeId, _ := utils.GetStoreIdFromContext(c.Request.Context())
	product, err := models.CreateLoanProduct(c.Request.Context(), storeId, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func listLoanProductsHandler(c *gin.Context) {
	products, err := models.ListLoanProducts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func getLoanProductHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	product, err := models.GetLoanProductById(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

type schedulePreviewRequest struct {
	PrincipalAmount     int64                  `json:"principal_amount" binding:"required,gt=0"`
	MonthlyInterestRate decimal.Decimal        `json:"monthly_interest_rate" binding:"required"`
	TermMonths          int                    `json:"term_months" binding:"required,gt=0"`
	PaymentInterval     models.PaymentInterval `json:"payment_interval" binding:"required,payment_interval"`
	FirstPaymentDate    time.Time              `json:"first_payment_date" binding:"required"`
}

// previewScheduleHandler runs the scheduler on ad-hoc terms without touching
// any loan. Loan officers use it to quote terms during an interview.
func previewScheduleHandler(c *gin.Context) {
	var req schedulePreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := workflow.ComputeSchedule(workflow.ScheduleTerms{
		Principal:        models.NewMoneyFromCentavos(req.PrincipalAmount),
		MonthlyRate:      req.MonthlyInterestRate,
		TermMonths:       req.TermMonths,
		FirstPaymentDate: req.FirstPaymentDate,
		Interval:         req.PaymentInterval,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func applyLoanHandler(c *gin.Context) {
	var input models.NewLoanApplication
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loan, err := workflow.ApplyLoan(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func listLoansHandler(c *gin.Context) {
	statuses := []models.LoanStatus{}
	if s := c.Query("status"); s != "" {
		statuses = append(statuses, models.LoanStatus(s))
	} else {
		statuses = append(statuses,
			models.LoanStatusPending, models.LoanStatusUnderReview, models.LoanStatusApproved,
			models.LoanStatusActive, models.LoanStatusDisbursed)
	}
	page, _ := strconv.Atoi(c.Query("page"))
	loans, err := models.ListLoansByStatus(c.Request.Context(), page, statuses...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loans)
}

func getLoanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	loan, err := models.GetLoanById(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func editLoanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.EditLoanApplication
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loan, err := workflow.EditLoan(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func reviewLoanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	loan, err := workflow.ReviewLoan(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func approveLoanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	loan, err := workflow.ApproveLoan(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func rejectLoanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loan, err := workflow.RejectLoan(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

type disburseRequest struct {
	FirstPaymentDate *time.Time `json:"first_payment_date"`
}

func disburseLoanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req disburseRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var firstPayment time.Time
	if req.FirstPaymentDate != nil {
		firstPayment = *req.FirstPaymentDate
	}
	loan, err := workflow.DisburseLoan(c.Request.Context(), id, firstPayment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func writeOffLoanHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loan, err := workflow.WriteOffLoan(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

func loanScheduleHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	loan, err := models.GetLoanById(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan.ScheduleRows)
}

func loanStatementHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var from, to time.Time
	if v := c.Query("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date, want YYYY-MM-DD"})
			return
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date, want YYYY-MM-DD"})
			return
		}
		to = parsed
	}
	statement, err := workflow.GetLoanStatement(c.Request.Context(), id, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statement)
}

func recordPaymentHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input workflow.NewPayment
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, err := workflow.RecordPayment(c.Request.Context(), id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func reversePaymentHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payment, err := workflow.ReversePayment(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

type accrueRequest struct {
	AsOf *time.Time `json:"as_of"`
}

func accruePenaltiesHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req accrueRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	asOf := time.Now().UTC()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	penalties, err := workflow.AccruePenalties(c.Request.Context(), id, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accrued": len(penalties), "penalties": penalties})
}

type waiveRequest struct {
	Amount int64  `json:"amount" binding:"required,gt=0"`
	Reason string `json:"reason" binding:"required"`
}

func waivePenaltyHandler(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var req waiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	penalty, err := workflow.WaivePenalty(c.Request.Context(), id, req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, penalty)
}
