package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// AcquireLoanPostingLock serializes mutating operations per loan across
// instances using MySQL advisory locks. Operations against different loans are
// independent and proceed in parallel.
// NOTE: GET_LOCK is connection-scoped, so this must be called on the same
// *gorm.DB that will do the posting transaction.
func AcquireLoanPostingLock(tx *gorm.DB, loanId int) error {
	lockName := fmt.Sprintf("loan-posting:%d", loanId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock for loan_id=%d", loanId)
	}
	return nil
}

func ReleaseLoanPostingLock(tx *gorm.DB, loanId int) {
	lockName := fmt.Sprintf("loan-posting:%d", loanId)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
