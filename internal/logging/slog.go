// Biblioteka Platform - Event-Driven Library Services
// Copyright 2026 Biblioteka Platform Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/biblioteka/eventsvc

package logging

import (
	"log/slog"
	"os"

	"github.com/rs/zerolog"
)

// Slog returns a stdlib slog logger at the global log level, for
// libraries that take *slog.Logger (the supervisor's event hook).
func Slog() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slogLevel(zerolog.GlobalLevel()),
	}))
}

func slogLevel(level zerolog.Level) slog.Level {
	switch {
	case level <= zerolog.DebugLevel:
		return slog.LevelDebug
	case level == zerolog.InfoLevel:
		return slog.LevelInfo
	case level == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
