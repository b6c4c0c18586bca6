package models

import (
	"log"

	"bitbucket.org/mmdatafocus/coop_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Customer{},
		&LoanProduct{},
		&Loan{}, &LoanScheduleRow{},
		&LoanPayment{}, &LoanPaymentAllocation{},
		&LoanPenalty{},
		&ReconciliationReport{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
