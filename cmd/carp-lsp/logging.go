package main

import (
	"io"
	"log"
	"log/slog"
	"strings"
)

func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// newLogger writes to w, which must not be the protocol stream.
func newLogger(w io.Writer, levelName string, verbose, json bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	} else {
		var ok bool
		level, ok = parseLevel(levelName)
		if !ok {
			log.Printf("unknown --log-level=%q (expected debug|info|warn|error); defaulting to info", levelName)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
