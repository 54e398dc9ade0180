// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

// Package notifier turns integration events into user notifications:
// each bound event is deduplicated against the notification log,
// rendered from its template, delivered by the mailer, and recorded with
// its outcome. A delivery failure is a recorded outcome, not a processing
// failure; only payload defects and log errors reject the event.
package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/biblioteka/eventsvc/internal/dispatch"
	"github.com/biblioteka/eventsvc/internal/event"
	"github.com/biblioteka/eventsvc/internal/logging"
	"github.com/biblioteka/eventsvc/internal/store"
)

const channelEmail = "email"

// outcomeLog is the slice of store.OutcomeLog the handlers need.
type outcomeLog interface {
	Append(ctx context.Context, rec *store.OutcomeRecord) error
	HasRecentDelivery(ctx context.Context, fingerprint string, since time.Time) (bool, error)
}

// Handlers processes notification events against the outcome log and
// the mail transport.
type Handlers struct {
	log         outcomeLog
	mailer      Mailer
	dedupWindow time.Duration
	now         func() time.Time
}

// NewHandlers wires the notification pipeline. Repeated fingerprints
// with a SENT or PENDING outcome inside dedupWindow are skipped.
func NewHandlers(log outcomeLog, mailer Mailer, dedupWindow time.Duration) *Handlers {
	return &Handlers{
		log:         log,
		mailer:      mailer,
		dedupWindow: dedupWindow,
		now:         time.Now,
	}
}

// Registry returns the routing keys this service binds, each mapped to
// its handler.
func (h *Handlers) Registry() *dispatch.Registry {
	r := dispatch.NewRegistry()
	r.Register("loan.borrowed", h.handleLoanBorrowed)
	r.Register("loan.returned", h.handleLoanReturned)
	r.Register("loan.overdue", h.handleLoanOverdue)
	r.Register("loan.due_reminder", h.handleLoanDueReminder)
	r.Register("reservation.created", h.handleReservationCreated)
	r.Register("reservation.fulfilled", h.handleReservationFulfilled)
	r.Register("reservation.expired", h.handleReservationExpired)
	r.Register("fine.created", h.handleFineCreated)
	r.Register("user.blocked", h.handleUserBlocked)
	return r
}

// delivery is one notification ready for the common pipeline tail.
type delivery struct {
	userID      int64
	eventKind   string
	fingerprint string
	recipient   string
	message     Message
}

// process runs dedup, delivery and outcome recording. An error return
// rejects the event to the dead-letter queue.
func (h *Handlers) process(ctx context.Context, p event.Payload, d delivery) error {
	since := h.now().UTC().Add(-h.dedupWindow)
	dup, err := h.log.HasRecentDelivery(ctx, d.fingerprint, since)
	if err != nil {
		return fmt.Errorf("dedup lookup for %s: %w", d.fingerprint, err)
	}
	if dup {
		logging.Info().
			Str("fingerprint", d.fingerprint).
			Str("event_kind", d.eventKind).
			Msg("Duplicate notification skipped")
		return nil
	}

	result := h.mailer.Send(ctx, d.recipient, d.message)

	status := store.StatusSent
	if !result.Success {
		status = store.StatusFailed
		logging.Warn().
			Str("recipient", d.recipient).
			Str("event_kind", d.eventKind).
			Str("error_code", result.ErrorCode).
			Str("error", result.ErrorMessage).
			Msg("Notification delivery failed")
	}

	rec := &store.OutcomeRecord{
		UserID:       d.userID,
		EventKind:    d.eventKind,
		Channel:      channelEmail,
		Fingerprint:  d.fingerprint,
		Payload:      p.Raw(),
		Status:       status,
		ErrorMessage: result.ErrorMessage,
		SentAt:       result.DeliveredAt,
	}
	if err := h.log.Append(ctx, rec); err != nil {
		return fmt.Errorf("record outcome for %s: %w", d.fingerprint, err)
	}

	if result.Success {
		logging.Info().
			Str("recipient", d.recipient).
			Str("event_kind", d.eventKind).
			Str("subject", d.message.Subject).
			Msg("Notification sent")
	}
	return nil
}

func (h *Handlers) handleLoanDueReminder(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	loanID, err := p.RequireInt("loan_id")
	if err != nil {
		return err
	}
	userName := p.StringOr("user_name", defaultSalutation)
	bookTitle := p.StringOr("book_title", "")
	dueDate := p.StringOr("due_date", "")

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "loan_due",
		fingerprint: fingerprintLoanDue(loanID, dueDate),
		recipient:   p.StringOr("user_email", ""),
		message:     loanDueMessage(userName, bookTitle, dueDate),
	})
}

func (h *Handlers) handleLoanOverdue(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	loanID, err := p.RequireInt("loan_id")
	if err != nil {
		return err
	}
	userName := p.StringOr("user_name", defaultSalutation)
	bookTitle := p.StringOr("book_title", "")
	dueDate := p.StringOr("due_date", "")
	daysLate := p.IntOr("days_late", 1)

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "loan_overdue",
		fingerprint: fingerprintLoanOverdue(loanID, daysLate),
		recipient:   p.StringOr("user_email", ""),
		message:     loanOverdueMessage(userName, bookTitle, dueDate, daysLate),
	})
}

func (h *Handlers) handleLoanBorrowed(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	loanID, err := p.RequireInt("loan_id")
	if err != nil {
		return err
	}
	userName := p.StringOr("user_name", defaultSalutation)
	bookTitle := p.StringOr("book_title", "")
	dueDate := p.StringOr("due_date", "")

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "loan_borrowed",
		fingerprint: fingerprintLoanBorrowed(loanID),
		recipient:   p.StringOr("user_email", ""),
		message:     loanBorrowedMessage(userName, bookTitle, dueDate),
	})
}

func (h *Handlers) handleLoanReturned(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	loanID, err := p.RequireInt("loan_id")
	if err != nil {
		return err
	}
	userName := p.StringOr("user_name", defaultSalutation)
	bookTitle := p.StringOr("book_title", "")

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "loan_returned",
		fingerprint: fingerprintLoanReturned(loanID),
		recipient:   p.StringOr("user_email", ""),
		message:     loanReturnedMessage(userName, bookTitle),
	})
}

func (h *Handlers) handleReservationCreated(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	reservationID, err := p.RequireInt("reservation_id")
	if err != nil {
		return err
	}
	userName := p.StringOr("user_name", defaultSalutation)
	bookTitle := p.StringOr("book_title", "")

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "reservation_created",
		fingerprint: fingerprintReservationCreated(reservationID),
		recipient:   p.StringOr("user_email", ""),
		message:     reservationCreatedMessage(userName, bookTitle),
	})
}

func (h *Handlers) handleReservationFulfilled(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	reservationID, err := p.RequireInt("reservation_id")
	if err != nil {
		return err
	}
	userName := p.StringOr("user_name", defaultSalutation)
	bookTitle := p.StringOr("book_title", "")
	expiresAt := p.StringOr("expires_at", "")

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "reservation_ready",
		fingerprint: fingerprintReservationReady(reservationID),
		recipient:   p.StringOr("user_email", ""),
		message:     reservationReadyMessage(userName, bookTitle, expiresAt),
	})
}

func (h *Handlers) handleReservationExpired(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	reservationID := p.IntOr("reservation_id", 0)
	userName := p.StringOr("user_name", defaultSalutation)
	bookTitle := p.StringOr("book_title", "")

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "reservation_expired",
		fingerprint: fingerprintReservationExpired(reservationID),
		recipient:   p.StringOr("user_email", ""),
		message:     reservationExpiredMessage(userName, bookTitle),
	})
}

func (h *Handlers) handleFineCreated(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	fineID := p.IntOr("fine_id", 0)
	userName := p.StringOr("user_name", defaultSalutation)
	amount := fineAmount(p)
	reason := p.StringOr("reason", defaultFineReason)

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "fine_created",
		fingerprint: fingerprintFineCreated(fineID),
		recipient:   p.StringOr("user_email", ""),
		message:     fineCreatedMessage(userName, amount, reason),
	})
}

// fineAmount renders the fine amount whether the producer sent it as a
// string or a number.
func fineAmount(p event.Payload) string {
	if s, ok := p.String("amount"); ok {
		return s
	}
	if f, ok := p.Float("amount"); ok {
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
	return "0.00"
}

func (h *Handlers) handleUserBlocked(ctx context.Context, p event.Payload) error {
	userID, err := p.RequireInt("user_id")
	if err != nil {
		return err
	}
	reason := p.StringOr("reason", defaultBlockReason)

	return h.process(ctx, p, delivery{
		userID:      userID,
		eventKind:   "user_blocked",
		fingerprint: fingerprintUserBlocked(userID),
		recipient:   p.StringOr("user_email", ""),
		message:     userBlockedMessage(reason),
	})
}
