package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// BusinessRuleError is a caller-recoverable violation of a business rule:
// an illegal state transition, an overpayment, waiving more than remains.
// Handlers translate it to HTTP 422; it is never a crash.
type BusinessRuleError struct {
	Rule   string
	Reason string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Reason)
}

func NewBusinessRuleError(rule, format string, args ...any) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

func IsBusinessRuleError(err error) bool {
	var bre *BusinessRuleError
	return errors.As(err, &bre)
}

// ConsistencyError indicates the ledger projection no longer reconciles against
// its source rows. It is fatal for the operation: the transaction must roll back
// and the error propagates unmodified to force visibility.
type ConsistencyError struct {
	Check  string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency check %s failed: %s", e.Check, e.Detail)
}

func NewConsistencyError(check, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Check: check, Detail: fmt.Sprintf(format, args...)}
}

func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}
