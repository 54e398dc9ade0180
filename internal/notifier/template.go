// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package notifier

import "fmt"

// Message is a rendered notification ready for delivery.
type Message struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// Recipient defaults applied when the event payload omits them.
const (
	defaultSalutation  = "Czytelniku"
	defaultFineReason  = "kara biblioteczna"
	defaultBlockReason = "naruszenie regulaminu"
)

const signature = "Pozdrawiamy,\nTwoja Biblioteka"

func loanDueMessage(userName, bookTitle, dueDate string) Message {
	return Message{
		Subject: fmt.Sprintf("Przypomnienie: zwrot %q do %s", bookTitle, dueDate),
		TextBody: fmt.Sprintf(
			"Cześć %s!\n\nPrzypominamy o terminie zwrotu książki %q. Termin mija %s.\n\n%s",
			userName, bookTitle, dueDate, signature),
	}
}

func loanOverdueMessage(userName, bookTitle, dueDate string, daysLate int64) Message {
	return Message{
		Subject: fmt.Sprintf("Pilne: przeterminowane wypożyczenie %q", bookTitle),
		TextBody: fmt.Sprintf(
			"Cześć %s!\n\nWypożyczona książka %q powinna zostać zwrócona %s i jest spóźniona o %d dni.\n\n%s",
			userName, bookTitle, dueDate, daysLate, signature),
	}
}

func loanBorrowedMessage(userName, bookTitle, dueDate string) Message {
	return Message{
		Subject: fmt.Sprintf("Potwierdzenie wypożyczenia: %q", bookTitle),
		TextBody: fmt.Sprintf(
			"Cześć %s!\n\nWypożyczyłeś/aś książkę %q. Termin zwrotu: %s.\n\n%s",
			userName, bookTitle, dueDate, signature),
	}
}

func loanReturnedMessage(userName, bookTitle string) Message {
	return Message{
		Subject: fmt.Sprintf("Potwierdzenie zwrotu: %q", bookTitle),
		TextBody: fmt.Sprintf(
			"Cześć %s!\n\nKsiążka %q została zwrócona. Dziękujemy!\n\n%s",
			userName, bookTitle, signature),
	}
}

func reservationCreatedMessage(userName, bookTitle string) Message {
	return Message{
		Subject: fmt.Sprintf("Potwierdzenie rezerwacji: %q", bookTitle),
		TextBody: fmt.Sprintf(
			"Cześć %s!\n\nTwoja rezerwacja książki %q została przyjęta. Powiadomimy Cię, gdy egzemplarz będzie gotowy do odbioru.\n\n%s",
			userName, bookTitle, signature),
	}
}

func reservationReadyMessage(userName, bookTitle, expiresAt string) Message {
	return Message{
		Subject: fmt.Sprintf("Rezerwacja %q gotowa do odbioru", bookTitle),
		TextBody: fmt.Sprintf(
			"Cześć %s!\n\nTwoja rezerwacja książki %q jest gotowa do odbioru. Odbierz egzemplarz przed %s.\n\n%s",
			userName, bookTitle, expiresAt, signature),
	}
}

func reservationExpiredMessage(userName, bookTitle string) Message {
	return Message{
		Subject: fmt.Sprintf("Rezerwacja wygasła: %q", bookTitle),
		TextBody: fmt.Sprintf(
			"Cześć %s!\n\nTwoja rezerwacja książki %q wygasła, ponieważ nie została odebrana w wyznaczonym terminie.\nMożesz ponownie złożyć rezerwację.\n\n%s",
			userName, bookTitle, signature),
	}
}

func fineCreatedMessage(userName, amount, reason string) Message {
	return Message{
		Subject: fmt.Sprintf("Nowa kara: %s zł (%s)", amount, reason),
		TextBody: fmt.Sprintf(
			"Cześć %s!\n\nZostała naliczona kara w wysokości %s zł.\nPowód: %s\n\nProsimy o uregulowanie należności.\n\n%s",
			userName, amount, reason, signature),
	}
}

func userBlockedMessage(reason string) Message {
	return Message{
		Subject: "Twoje konto zostało zablokowane",
		TextBody: fmt.Sprintf(
			"Informujemy, że Twoje konto w systemie bibliotecznym zostało zablokowane.\n\nPowód: %s\n\nW celu wyjaśnienia prosimy o kontakt z biblioteką.\n\n%s",
			reason, signature),
	}
}
