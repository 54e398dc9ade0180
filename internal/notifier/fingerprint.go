// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package notifier

import "fmt"

// Fingerprints identify the real-world notification an event asks for,
// independent of broker redelivery. Two events with the same fingerprint
// describe the same notification; the dedup gate suppresses the second
// one inside the window.
//
// The overdue fingerprint includes days_late so each escalation day
// produces a fresh notification. The due reminder includes the due date
// so an extended loan reminds again.

func fingerprintLoanDue(loanID int64, dueDate string) string {
	return fmt.Sprintf("loan_due_%d_%s", loanID, dueDate)
}

func fingerprintLoanOverdue(loanID, daysLate int64) string {
	return fmt.Sprintf("loan_overdue_%d_%d", loanID, daysLate)
}

func fingerprintLoanBorrowed(loanID int64) string {
	return fmt.Sprintf("loan_borrowed_%d", loanID)
}

func fingerprintLoanReturned(loanID int64) string {
	return fmt.Sprintf("loan_returned_%d", loanID)
}

func fingerprintReservationCreated(reservationID int64) string {
	return fmt.Sprintf("reservation_created_%d", reservationID)
}

func fingerprintReservationReady(reservationID int64) string {
	return fmt.Sprintf("reservation_ready_%d", reservationID)
}

func fingerprintReservationExpired(reservationID int64) string {
	return fmt.Sprintf("reservation_expired_%d", reservationID)
}

func fingerprintFineCreated(fineID int64) string {
	return fmt.Sprintf("fine_created_%d", fineID)
}

func fingerprintUserBlocked(userID int64) string {
	return fmt.Sprintf("user_blocked_%d", userID)
}
