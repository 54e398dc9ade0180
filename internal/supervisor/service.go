// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package supervisor

import "context"

// Service is a named blocking run function adapted to suture.Service.
// The function must return promptly once ctx is cancelled.
type Service struct {
	name string
	run  func(context.Context) error
}

// NewService wraps a run function for supervision.
func NewService(name string, run func(context.Context) error) *Service {
	return &Service{name: name, run: run}
}

// Serve implements suture.Service.
func (s *Service) Serve(ctx context.Context) error {
	return s.run(ctx)
}

// String names the service in supervisor logs.
func (s *Service) String() string {
	return s.name
}
