// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/biblioteka/eventsvc/internal/event"
	"github.com/biblioteka/eventsvc/internal/store"
)

type fakeLog struct {
	records   []*store.OutcomeRecord
	lookupErr error
	appendErr error
}

func (f *fakeLog) Append(_ context.Context, rec *store.OutcomeRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeLog) HasRecentDelivery(_ context.Context, fingerprint string, _ time.Time) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	for _, rec := range f.records {
		if rec.Fingerprint == fingerprint &&
			(rec.Status == store.StatusSent || rec.Status == store.StatusPending) {
			return true, nil
		}
	}
	return false, nil
}

type fakeMailer struct {
	sent []struct {
		to  string
		msg Message
	}
	fail bool
}

func (f *fakeMailer) Send(_ context.Context, to string, msg Message) SendResult {
	f.sent = append(f.sent, struct {
		to  string
		msg Message
	}{to, msg})
	if f.fail {
		return SendResult{ErrorMessage: "connection refused", ErrorCode: ErrorCodeConnectionFailed}
	}
	now := time.Now().UTC()
	return SendResult{Success: true, DeliveredAt: &now}
}

func mustPayload(t *testing.T, body string) event.Payload {
	t.Helper()
	p, err := event.ParsePayload([]byte(body))
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	return p
}

func newTestHandlers(log *fakeLog, mailer *fakeMailer) *Handlers {
	return NewHandlers(log, mailer, 6*time.Hour)
}

func TestHandleLoanBorrowed(t *testing.T) {
	t.Run("sends and records outcome", func(t *testing.T) {
		log := &fakeLog{}
		mailer := &fakeMailer{}
		h := newTestHandlers(log, mailer)

		p := mustPayload(t, `{"user_id": 7, "loan_id": 42, "user_email": "jan@example.com", "user_name": "Jan", "book_title": "Lalka", "due_date": "2026-09-15"}`)
		if err := h.handleLoanBorrowed(context.Background(), p); err != nil {
			t.Fatalf("handleLoanBorrowed() error = %v", err)
		}

		if len(mailer.sent) != 1 {
			t.Fatalf("sent %d mails, want 1", len(mailer.sent))
		}
		if mailer.sent[0].to != "jan@example.com" {
			t.Errorf("recipient = %q", mailer.sent[0].to)
		}
		if !strings.Contains(mailer.sent[0].msg.TextBody, "Jan") {
			t.Errorf("body missing user name: %q", mailer.sent[0].msg.TextBody)
		}

		if len(log.records) != 1 {
			t.Fatalf("recorded %d outcomes, want 1", len(log.records))
		}
		rec := log.records[0]
		if rec.Status != store.StatusSent {
			t.Errorf("status = %s, want SENT", rec.Status)
		}
		if rec.SentAt == nil {
			t.Error("sent_at not set on successful delivery")
		}
		if rec.Fingerprint != "loan_borrowed_42" {
			t.Errorf("fingerprint = %q", rec.Fingerprint)
		}
		if rec.UserID != 7 {
			t.Errorf("user_id = %d", rec.UserID)
		}
	})

	t.Run("missing loan_id rejects the event", func(t *testing.T) {
		h := newTestHandlers(&fakeLog{}, &fakeMailer{})
		p := mustPayload(t, `{"user_id": 7}`)
		if err := h.handleLoanBorrowed(context.Background(), p); err == nil {
			t.Fatal("expected error for missing loan_id")
		}
	})

	t.Run("defaults salutation when name missing", func(t *testing.T) {
		mailer := &fakeMailer{}
		h := newTestHandlers(&fakeLog{}, mailer)
		p := mustPayload(t, `{"user_id": 7, "loan_id": 42, "user_email": "jan@example.com"}`)
		if err := h.handleLoanBorrowed(context.Background(), p); err != nil {
			t.Fatalf("handleLoanBorrowed() error = %v", err)
		}
		if !strings.Contains(mailer.sent[0].msg.TextBody, "Czytelniku") {
			t.Errorf("body missing default salutation: %q", mailer.sent[0].msg.TextBody)
		}
	})
}

func TestDeduplication(t *testing.T) {
	t.Run("second event with same fingerprint is skipped", func(t *testing.T) {
		log := &fakeLog{}
		mailer := &fakeMailer{}
		h := newTestHandlers(log, mailer)
		p := mustPayload(t, `{"user_id": 7, "loan_id": 42, "user_email": "jan@example.com"}`)

		for i := 0; i < 2; i++ {
			if err := h.handleLoanBorrowed(context.Background(), p); err != nil {
				t.Fatalf("handleLoanBorrowed() attempt %d error = %v", i+1, err)
			}
		}

		if len(mailer.sent) != 1 {
			t.Errorf("sent %d mails, want 1", len(mailer.sent))
		}
		if len(log.records) != 1 {
			t.Errorf("recorded %d outcomes, want 1", len(log.records))
		}
	})

	t.Run("escalating overdue days are distinct notifications", func(t *testing.T) {
		log := &fakeLog{}
		mailer := &fakeMailer{}
		h := newTestHandlers(log, mailer)

		for _, days := range []int{1, 2} {
			body := fmt.Sprintf(`{"user_id": 7, "loan_id": 42, "user_email": "jan@example.com", "days_late": %d}`, days)
			if err := h.handleLoanOverdue(context.Background(), mustPayload(t, body)); err != nil {
				t.Fatalf("handleLoanOverdue() days=%d error = %v", days, err)
			}
		}

		if len(mailer.sent) != 2 {
			t.Errorf("sent %d mails, want 2", len(mailer.sent))
		}
	})

	t.Run("failed outcome does not suppress retry", func(t *testing.T) {
		log := &fakeLog{}
		mailer := &fakeMailer{fail: true}
		h := newTestHandlers(log, mailer)
		p := mustPayload(t, `{"user_id": 7, "loan_id": 42, "user_email": "jan@example.com"}`)

		if err := h.handleLoanBorrowed(context.Background(), p); err != nil {
			t.Fatalf("handleLoanBorrowed() error = %v", err)
		}
		mailer.fail = false
		if err := h.handleLoanBorrowed(context.Background(), p); err != nil {
			t.Fatalf("handleLoanBorrowed() error = %v", err)
		}
		if len(mailer.sent) != 2 {
			t.Errorf("sent %d mails, want 2", len(mailer.sent))
		}
	})

	t.Run("lookup error rejects the event", func(t *testing.T) {
		log := &fakeLog{lookupErr: errors.New("db gone")}
		h := newTestHandlers(log, &fakeMailer{})
		p := mustPayload(t, `{"user_id": 7, "loan_id": 42}`)
		if err := h.handleLoanBorrowed(context.Background(), p); err == nil {
			t.Fatal("expected error when dedup lookup fails")
		}
	})
}

func TestDeliveryFailure(t *testing.T) {
	log := &fakeLog{}
	mailer := &fakeMailer{fail: true}
	h := newTestHandlers(log, mailer)
	p := mustPayload(t, `{"user_id": 7, "loan_id": 42, "user_email": "jan@example.com"}`)

	if err := h.handleLoanBorrowed(context.Background(), p); err != nil {
		t.Fatalf("delivery failure must not reject the event, got %v", err)
	}

	if len(log.records) != 1 {
		t.Fatalf("recorded %d outcomes, want 1", len(log.records))
	}
	rec := log.records[0]
	if rec.Status != store.StatusFailed {
		t.Errorf("status = %s, want FAILED", rec.Status)
	}
	if rec.SentAt != nil {
		t.Error("sent_at set on failed delivery")
	}
	if rec.ErrorMessage == "" {
		t.Error("error_message empty on failed delivery")
	}
}

func TestAppendFailureRejectsEvent(t *testing.T) {
	log := &fakeLog{appendErr: errors.New("disk full")}
	h := newTestHandlers(log, &fakeMailer{})
	p := mustPayload(t, `{"user_id": 7, "loan_id": 42, "user_email": "jan@example.com"}`)
	if err := h.handleLoanBorrowed(context.Background(), p); err == nil {
		t.Fatal("expected error when outcome append fails")
	}
}

func TestRegistryBindsAllEvents(t *testing.T) {
	h := newTestHandlers(&fakeLog{}, &fakeMailer{})
	keys := h.Registry().Keys()

	want := []string{
		"fine.created",
		"loan.borrowed",
		"loan.due_reminder",
		"loan.overdue",
		"loan.returned",
		"reservation.created",
		"reservation.expired",
		"reservation.fulfilled",
		"user.blocked",
	}
	if len(keys) != len(want) {
		t.Fatalf("registry has %d keys, want %d: %v", len(keys), len(want), keys)
	}
	for i, key := range want {
		if keys[i] != key {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], key)
		}
	}
}

func TestFineAmount(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "string amount", body: `{"amount": "12.50"}`, want: "12.50"},
		{name: "numeric amount", body: `{"amount": 12.5}`, want: "12.50"},
		{name: "missing amount", body: `{}`, want: "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fineAmount(mustPayload(t, tt.body)); got != tt.want {
				t.Errorf("fineAmount() = %q, want %q", got, tt.want)
			}
		})
	}
}
