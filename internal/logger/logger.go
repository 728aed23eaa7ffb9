// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package logger configures the process-wide zerolog logger: a pretty
// console writer when no log file is set, otherwise a rotating file writer
// via lumberjack, at the level named in configuration.
package logger

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Params holds the subset of configuration the logger needs.
type Params struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Configure sets zerolog's global logger per params and returns it. Called
// once at process startup, before any other package logs.
func Configure(p Params) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(p.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer = os.Stderr
	var out zerolog.ConsoleWriter

	if p.Path == "" {
		out = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
		logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
		log.Logger = logger
		return logger
	}

	rotator := &lumberjack.Logger{
		Filename:   p.Path,
		MaxSize:    maxOr(p.MaxSizeMB, 50),
		MaxBackups: maxOr(p.MaxBackups, 3),
		Compress:   true,
	}

	logger := zerolog.New(rotator).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

func maxOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
